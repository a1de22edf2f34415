package jupiter

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned for HTTP 429. It is the only retried condition.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrRetriesExhausted is returned when every attempt was rate limited.
	ErrRetriesExhausted = errors.New("exceeded maximum retry attempts")
)

// ValidationError reports a malformed request argument. No request is sent.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// TransactionError reports a non-2xx, non-429 response from the routing service.
type TransactionError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("failed to %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
