package gtfsrt

import (
	"fmt"
	"net/http"
)

// FetchError describes one failed fetch attempt.
// StatusCode is zero when the request never produced a response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether retrying the request may succeed: transport failures,
// timeouts, 429 and 5xx responses. Any other status is permanent.
func (e *FetchError) Transient() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// FetchExhaustedError is returned when every allowed attempt failed transiently.
type FetchExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *FetchExhaustedError) Unwrap() error { return e.LastErr }

// DecodeError wraps a payload that is not a valid FeedMessage. It is never retried.
type DecodeError struct {
	Size int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode feed message (%d bytes): %v", e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
