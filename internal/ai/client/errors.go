package client

import "fmt"

// NonRetryableError marks API failures that retrying cannot fix
// (auth, quota exhausted, malformed request).
type NonRetryableError struct {
	StatusCode int
	Message    string
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("API fatal error %d: %s", e.StatusCode, e.Message)
}
