package apiclient

import (
	"errors"
	"fmt"
)

// FallbackMessage is shown when the backend gave no usable message.
const FallbackMessage = "Request failed"

// ErrUnauthorized marks a 401 from the backend.
var ErrUnauthorized = errors.New("authentication required")

// ErrResponseTooLarge is returned when a reply exceeds the client's read limit.
var ErrResponseTooLarge = errors.New("response body too large")

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// UserMessage derives the single user-facing message for err: the backend's
// message when it sent one, otherwise FallbackMessage.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return FallbackMessage
}
