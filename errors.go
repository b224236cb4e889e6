package divisions

import (
	"errors"
	"fmt"
)

var (
	ErrNoGalleryItems     = errors.New("no gallery items")
	ErrInvalidConcurrency = errors.New("max concurrency must be at least 1")
	ErrNoClassifications  = errors.New("no usable classifications")
	ErrEmptyCluster       = errors.New("empty clustering input")
	ErrMalformedListing   = errors.New("malformed listing")
	ErrParseResponse      = errors.New("no JSON object in model response")
)

// wrapError keeps the sentinel kind reachable through errors.Is while adding
// operation context.
func wrapError(kind error, operation string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", operation, kind)
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}
