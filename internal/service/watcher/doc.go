// Package watcher runs update rounds periodically and serves their outcomes
// through the gRPC health service.
package watcher
