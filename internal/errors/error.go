package errors

import (
	"errors"
	"fmt"
)

var (
	ErrMissingRequiredFields = errors.New("granule record is missing required fields")
	ErrMalformedTitle        = errors.New("granule title is not well formed")
	ErrRedirectLoop          = errors.New("redirect loop detected, check earthdata credentials")
	ErrRetriesExhausted      = errors.New("connection retries exhausted")
	ErrMalformedETag         = errors.New("malformed etag")
	ErrWalkDone              = errors.New("directory walk complete")
)

// BadStatusError generates a formatted error for a terminal HTTP status.
func BadStatusError(url string, status int) error {
	return fmt.Errorf("unexpected status %d fetching %s", status, url)
}

func ConfigNotSetError(config string) error {
	return fmt.Errorf("The %s configuration value must be set", config)
}
