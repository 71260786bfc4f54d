// Package perr classifies pipeline errors per the taxonomy: input
// validation failures are rejected before any work is done; single-backend
// failures are recovered via provider fallback and never surfaced;
// all-providers-failed degrades the response instead of erroring;
// deadline expiry aborts the request; internal invariant violations are
// logged with full context and surfaced generically.
package perr

import "errors"

var (
	// ErrInputInvalid means the query was empty or k was out of [1,20].
	ErrInputInvalid = errors.New("input invalid")

	// ErrProviderUnavailable means one backend in a priority chain failed.
	// Callers MUST recover via fallback or skip; this error should never
	// reach the caller of a public pipeline method.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrAllProvidersUnavailable means every backend in a priority list
	// failed; the caller degrades (zero vector / empty context / apology
	// answer) instead of propagating this error further.
	ErrAllProvidersUnavailable = errors.New("all providers unavailable")

	// ErrDeadlineExceeded means the request context was cancelled.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrInternalInvariant means an invariant assumed to always hold was
	// violated (e.g. an embedding dimension mismatch after every provider
	// reported success). Surfaced to the caller as a generic failure.
	ErrInternalInvariant = errors.New("internal invariant violated")
)
