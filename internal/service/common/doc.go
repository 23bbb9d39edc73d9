// Package common holds helpers shared by several services.
//
// It provides the retrying HTTP client used for every upstream request and a
// lightweight gRPC health client with timeouts used to query the watch daemon.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
