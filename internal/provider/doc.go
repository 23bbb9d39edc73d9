// Package provider defines the contract every upstream distribution channel implements
// and the case-insensitive Registry that maps project names to provider constructors.
//
// A Provider always fetches. The change token (Checksummer) and content digest (Verifier)
// are optional capabilities a provider declares through typed accessors.
package provider
