package update

import "strings"

// DefaultVersion is the reserved version string meaning "whatever the provider considers latest".
const DefaultVersion = "default"

// VersionQuery is the caller's request for a concrete or latest version.
type VersionQuery struct {
	// Version is the requested version string, DefaultVersion when Latest is set.
	Version string
	// Latest is true iff the provider's own notion of latest must be used.
	Latest bool
}

// NewVersionQuery builds a query from a user-supplied version string.
// An empty string is treated as DefaultVersion.
func NewVersionQuery(version string) VersionQuery {
	version = strings.TrimSpace(version)
	if version == "" {
		version = DefaultVersion
	}

	return VersionQuery{
		Version: version,
		Latest:  version == DefaultVersion,
	}
}

// Resolve returns the concrete version to use: fallback for latest queries, Version otherwise.
func (q VersionQuery) Resolve(fallback string) string {
	if q.Latest {
		return fallback
	}

	return q.Version
}
