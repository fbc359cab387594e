package metastore

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/hupe1980/metastore/backend"
	"github.com/hupe1980/metastore/internal/manifest"
	"github.com/hupe1980/metastore/internal/occ"
)

var (
	// ErrNotFound is returned when an index does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSplitNotFound is returned when a referenced split is not in the catalog.
	// It also matches ErrNotFound.
	ErrSplitNotFound = fmt.Errorf("split %w", ErrNotFound)

	// ErrAlreadyExists is returned when creating an index whose id is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrDuplicateSplit is returned when staging a split id the index already knows.
	ErrDuplicateSplit = errors.New("duplicate split")

	// ErrInvalidStateTransition is returned when a split is not in the state an
	// operation requires.
	ErrInvalidStateTransition = errors.New("invalid split state transition")

	// ErrIndexNotEmpty is returned when deleting an index that still has splits.
	ErrIndexNotEmpty = errors.New("index not empty")

	// ErrConcurrentModification is returned when a mutation kept losing against
	// concurrent writers until its retries ran out.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrBackendUnavailable is returned when the backend cannot be reached in time.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrInvalidArgument is returned for malformed ids, splits and queries.
	ErrInvalidArgument = errors.New("invalid argument")
)

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Split-level errors first: ErrSplitNotFound wraps ErrNotFound.
	if errors.Is(err, manifest.ErrSplitNotFound) {
		return fmt.Errorf("%w: %w", ErrSplitNotFound, err)
	}
	if errors.Is(err, manifest.ErrDuplicateSplit) {
		return fmt.Errorf("%w: %w", ErrDuplicateSplit, err)
	}
	if errors.Is(err, manifest.ErrInvalidStateTransition) {
		return fmt.Errorf("%w: %w", ErrInvalidStateTransition, err)
	}

	if errors.Is(err, backend.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, occ.ErrConcurrentModification) {
		return fmt.Errorf("%w: %w", ErrConcurrentModification, err)
	}
	if errors.Is(err, occ.ErrBackendUnavailable) || errors.Is(err, backend.ErrUnavailable) {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return err
}
