// Package update holds the domain values shared by providers and the orchestrator:
// the version query a run is started with and the outcome it terminates with.
package update
