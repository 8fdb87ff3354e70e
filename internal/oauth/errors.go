package oauth

import (
	"errors"
	"fmt"
)

// ErrorCode covers the RFC 6749 protocol error vocabulary the server emits.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "invalid_request"
	ErrInvalidClient      ErrorCode = "invalid_client"
	ErrInvalidGrant       ErrorCode = "invalid_grant"
	ErrInvalidScope       ErrorCode = "invalid_scope"
	ErrUnauthorizedClient ErrorCode = "unauthorized_client"
	ErrAccessDenied       ErrorCode = "access_denied"
	ErrLoginRequired      ErrorCode = "login_required"
	ErrServerError        ErrorCode = "server_error"

	// RFC 7591 registration error codes.
	ErrInvalidRedirectURI    ErrorCode = "invalid_redirect_uri"
	ErrInvalidClientMetadata ErrorCode = "invalid_client_metadata"
)

// ProtocolError is a client-recoverable OAuth error, surfaced as the standard
// error/error_description/state JSON shape or as redirect parameters. It is
// distinct from domain errors, which signal server-side bugs or infrastructure
// failures and never leak protocol detail.
type ProtocolError struct {
	Code        ErrorCode
	Description string
	State       string
}

func (e *ProtocolError) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError builds a protocol error.
func NewError(code ErrorCode, description string) *ProtocolError {
	return &ProtocolError{Code: code, Description: description}
}

// AsProtocolError extracts a protocol error from a chain, if present.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
