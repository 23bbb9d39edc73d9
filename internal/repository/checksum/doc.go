// Package checksum persists change tokens between update runs.
//
// FileStore keeps the raw token text in a single file and treats a missing file
// as an empty token. MemoryStore is used by embedding callers and tests.
package checksum
