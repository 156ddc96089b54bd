package telemetry

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors
var (
	// ErrNotRegistered is returned when an operation needs credentials that are absent
	ErrNotRegistered = errors.New("client not registered")

	ErrEmptyURL = errors.New("url must not be empty")
)

// ProtocolError is a non-success HTTP status on a telemetry call
type ProtocolError struct {
	Op         string
	StatusCode int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsProtocolError reports whether err carries a ProtocolError with the given status.
// A zero status matches any ProtocolError.
func IsProtocolError(err error, status int) bool {
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		return false
	}
	return status == 0 || pe.StatusCode == status
}
