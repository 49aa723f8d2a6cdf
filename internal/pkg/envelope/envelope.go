// internal/pkg/envelope/envelope.go
package envelope

import (
	"encoding/json"
	"time"
)

// Response is the uniform wrapper returned by every backend endpoint
type Response[T any] struct {
	Success   bool      `json:"success"`
	Data      *T        `json:"data"`
	Message   string    `json:"message"`
	Errors    []string  `json:"errors"`
	Timestamp time.Time `json:"timestamp"`
}

// OK builds a successful envelope
func OK[T any](data T, message string) Response[T] {
	return Response[T]{
		Success:   true,
		Data:      &data,
		Message:   message,
		Errors:    []string{},
		Timestamp: time.Now().UTC(),
	}
}

// Failure synthesizes a failed envelope without going to the network
func Failure[T any](message string, errs ...string) Response[T] {
	if errs == nil {
		errs = []string{}
	}
	return Response[T]{
		Success:   false,
		Message:   message,
		Errors:    errs,
		Timestamp: time.Now().UTC(),
	}
}

// Unwrap returns the payload of a successful envelope, or the envelope as an *Error.
// status is the HTTP status the envelope arrived with (0 for local envelopes).
func (r Response[T]) Unwrap(status int) (*T, error) {
	if !r.Success {
		kind := KindRejected
		if status != 0 {
			kind = KindFromStatus(status)
		}
		return nil, &Error{
			Kind:    kind,
			Status:  status,
			Message: r.Message,
			Errors:  r.Errors,
		}
	}
	return r.Data, nil
}

// Decode parses raw envelope bytes
func Decode[T any](raw []byte) (Response[T], error) {
	var resp Response[T]
	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}
