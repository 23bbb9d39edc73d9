// Package version exposes build metadata injected via ldflags:
//
//	go build -ldflags "-X github.com/oshokin/server-updater/internal/version.Version=1.2.3"
//
// Short and Full render it for the CLI; UserAgent identifies upstream requests.
package version
