// Package jenkins implements providers backed by a Jenkins artifact server.
//
// A provider resolves the requested version, then the job's last successful build
// number at construction time, and only resolves the artifact file name when the
// artifact is actually fetched. The change token is derived from version, build,
// job and server URL, never from the artifact bytes.
package jenkins
