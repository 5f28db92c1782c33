// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and workers to distinguish between different failure
// scenarios without string matching. Note that a lost optimistic
// concurrency race is not an error at all: TryTransition reports it as
// a false boolean because another process acting first is expected
// behaviour, not a failure.
package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist.
// Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")
