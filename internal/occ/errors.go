package occ

import "errors"

var (
	// ErrConcurrentModification is returned when every attempt of a mutation
	// lost against a concurrent writer.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrBackendUnavailable is returned when a backend call failed or timed out.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
