package cerr

import (
	"errors"
	"fmt"

	"github.com/agentgate/agentgate/pkg/storage"
)

// WrapStorageReadError maps a storage read failure to a coded error. A
// missing document surfaces as NotFound naming the target; anything else is
// an internal error with the cause preserved for the log.
func WrapStorageReadError(target string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	}
	return NewError(Internal, "server error", fmt.Errorf("failed to load %s: %w", target, err))
}

// WrapStorageListError maps a prefix-listing failure. A missing prefix is an
// empty listing, not an absence, so NotFound never comes out of here.
func WrapStorageListError(target string, err error) error {
	return NewError(Internal, "server error", fmt.Errorf("failed to list %s: %w", target, err))
}

func WrapStorageWriteError(target string, err error) error {
	return NewError(Internal, "server error", fmt.Errorf("failed to write %s: %w", target, err))
}

func WrapStorageDeleteError(target string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	}
	return NewError(Internal, "server error", fmt.Errorf("failed to delete %s: %w", target, err))
}
