package archive

import "fmt"

// apiError represents an HTTP error from the archive.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("archive: %s (status %d)", e.Message, e.StatusCode)
}

// retryable reports whether the status is worth another attempt.
func (e *apiError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// ClientError wraps an archive failure for external consumers.
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("archive client: %s", e.Message)
}
