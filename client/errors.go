package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTooManyRedirects is returned when a transfer bounces between nodes
	// more times than the hop cap allows.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrMissingLocation is returned when a 307 arrives without a Location
	// header to follow.
	ErrMissingLocation = errors.New("redirect missing Location header")
)

// UnexpectedStatusError is returned for any response status outside the set a
// call expects. The response body is kept verbatim for diagnostics.
type UnexpectedStatusError struct {
	Code int
	Body string
}

func (e *UnexpectedStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.Code, e.Body)
}

// IsRedirectRefused reports whether err is the failure produced by receiving
// a 307 while redirect following was disabled.
func IsRedirectRefused(err error) bool {
	var statusErr *UnexpectedStatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusTemporaryRedirect
}
