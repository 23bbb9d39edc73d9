// Package updater drives one end-to-end update of a target file.
//
// An Updater looks the project up in the provider registry, makes sure the
// target exists, compares the stored change token with the provider's current
// one, and only then downloads the artifact and atomically replaces the target.
// Every run ends with exactly one update.Outcome; failures never escape Run.
package updater
