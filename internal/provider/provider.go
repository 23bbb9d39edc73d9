//go:generate mockgen -destination=./mocks/provider.go -package=mocks . Provider,Checksummer,Verifier

package provider

import (
	"context"
	"crypto"
	"io"
	"net/http"

	"github.com/oshokin/server-updater/internal/domain/update"
)

// DebugFunc receives human-readable progress lines. It never affects control flow.
type DebugFunc func(message string)

// Artifact is a resolved download ready to be consumed.
type Artifact struct {
	// Name is the artifact file name as published upstream.
	Name string
	// Size is the content length in bytes, -1 when unknown.
	Size int64
	// Body is the artifact byte stream; the caller closes it.
	Body io.ReadCloser
}

// Digest is a content hash published by the upstream alongside the artifact.
type Digest struct {
	// Hash is the algorithm the sum was computed with.
	Hash crypto.Hash
	// Sum is the raw digest bytes.
	Sum []byte
}

// Fetcher resolves the artifact and opens its byte stream.
type Fetcher interface {
	Fetch(ctx context.Context) (*Artifact, error)
}

// Checksummer reports the change token of what the provider would install.
// Two tokens are equal iff the install is identical from the provider's perspective.
type Checksummer interface {
	Checksum(ctx context.Context) (string, error)
}

// Verifier reports a digest the downloaded bytes must match.
type Verifier interface {
	Digest(ctx context.Context) (*Digest, error)
}

// Provider is one upstream distribution channel resolved for a single version query.
// Instances are created per run and never reused.
type Provider interface {
	Fetcher

	// Checksummer returns the change token capability when the provider supports it.
	Checksummer() (Checksummer, bool)
	// Verifier returns the content digest capability when the provider supports it.
	Verifier() (Verifier, bool)
}

// Request carries everything a constructor needs to build a provider for one run.
type Request struct {
	// Query is the requested version.
	Query update.VersionQuery
	// Client performs every upstream request.
	Client *http.Client
	// Debug receives diagnostic lines; nil is allowed.
	Debug DebugFunc
}

// Debugf formats and forwards a diagnostic line when a sink is configured.
func (r Request) Debugf(format string, args ...any) {
	if r.Debug == nil {
		return
	}

	r.Debug(sprintf(format, args...))
}

// HTTPClient returns the configured client or http.DefaultClient.
func (r Request) HTTPClient() *http.Client {
	if r.Client == nil {
		return http.DefaultClient
	}

	return r.Client
}

// Constructor builds a provider for one run. Returned errors are unexpected failures.
type Constructor func(ctx context.Context, req Request) (Provider, error)
