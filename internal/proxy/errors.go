package proxy

import (
	"errors"
	"fmt"
)

// Machine-readable error codes surfaced to clients.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeTokenInvalid      = "TOKEN_INVALID"
	CodeTokenExpired      = "TOKEN_EXPIRED"
	CodeUpstreamExhausted = "UPSTREAM_EXHAUSTED"
)

var (
	ErrMissingURL = errors.New("url parameter is required")
	ErrInvalidURL = errors.New("url must be an absolute http(s) URL")
)

// UpstreamError reports total exhaustion of the identity strategy table.
// Individual attempt failures are never surfaced, only the last one.
type UpstreamError struct {
	URL        string
	Attempts   int
	LastStatus int
	LastErr    error
}

func (e *UpstreamError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("upstream exhausted after %d attempts: %v", e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("upstream exhausted after %d attempts: last status %d", e.Attempts, e.LastStatus)
}

func (e *UpstreamError) Unwrap() error { return e.LastErr }
