package content

import "errors"

// Standard content store errors. Implementations wrap them with the content
// ID so callers can match with errors.Is:
//
//	if !exists {
//	    return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound)
//	}
var (
	// ErrContentNotFound indicates the requested content does not exist.
	ErrContentNotFound = errors.New("content not found")

	// ErrInvalidOffset indicates a negative offset or size.
	ErrInvalidOffset = errors.New("invalid offset")

	// ErrStorageFull indicates the store's capacity limit was reached.
	ErrStorageFull = errors.New("storage full")

	// ErrUnavailable indicates the storage backend cannot be reached.
	// This is a transient error; retrying may succeed.
	ErrUnavailable = errors.New("storage unavailable")
)
