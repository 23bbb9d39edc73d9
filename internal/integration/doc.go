// Package integration holds end-to-end tests that run the updater against fake upstream servers.
package integration
