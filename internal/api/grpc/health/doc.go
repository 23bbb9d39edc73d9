// Package health exposes update outcomes through the standard gRPC health service.
//
// The empty service name reports the daemon itself. Every target is reported
// under its lower-cased project name: SERVING while the target is current or a
// newer build was merely detected, NOT_SERVING after a failed round.
package health
