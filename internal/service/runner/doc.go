// Package runner executes update rounds over the configured targets.
//
// Run is the entry point of the update command: it loads the settings, builds
// the provider registry, takes the working directory lock and updates every
// target. Env is shared with the watch daemon, which runs rounds periodically.
package runner
