package manifest

import "errors"

var (
	// ErrIncompatibleVersion is returned when the envelope format version is not supported.
	ErrIncompatibleVersion = errors.New("incompatible manifest version")

	// ErrCorrupt is returned when an encoded manifest fails validation.
	ErrCorrupt = errors.New("corrupt manifest")

	// ErrDuplicateSplit is returned when a staged split id already exists.
	ErrDuplicateSplit = errors.New("duplicate split")

	// ErrSplitNotFound is returned when a referenced split id is absent.
	ErrSplitNotFound = errors.New("split not found")

	// ErrInvalidStateTransition is returned when a split is not in a state from
	// which the requested transition is legal.
	ErrInvalidStateTransition = errors.New("invalid split state transition")
)
