package httpclient

import "fmt"

// RetryableError reports that the retry budget for a request was exhausted.
type RetryableError struct {
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *RetryableError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *RetryableError) Unwrap() error {
	return e.Err
}
