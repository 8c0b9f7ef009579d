package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a run failure.
type ErrorKind string

const (
	ErrMissingCredentials  ErrorKind = "missing_credentials"
	ErrMissingMailConfig   ErrorKind = "missing_mail_config"
	ErrUpstreamRejected    ErrorKind = "upstream_rejected"
	ErrExtractionTimeout   ErrorKind = "extraction_timeout"
	ErrUnsupportedLogin    ErrorKind = "unsupported_login_form"
	ErrMailDelivery        ErrorKind = "mail_delivery_failure"
	ErrMalformedCredential ErrorKind = "malformed_stored_credential"
)

// sampleLimit bounds how much upstream response body is carried in a
// failure outcome.
const sampleLimit = 300

// RunError is a classified failure of one pipeline stage.
type RunError struct {
	Kind ErrorKind
	Msg  string

	// Upstream HTTP failure details, zero-valued otherwise.
	Status int
	Sample string
	API    string

	cause error
}

// NewRunError builds a RunError wrapping an optional cause.
func NewRunError(kind ErrorKind, cause error, format string, args ...any) *RunError {
	return &RunError{Kind: kind, Msg: fmt.Sprintf(format, args...), cause: cause}
}

func (e *RunError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Kind, e.Msg, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *RunError) Unwrap() error { return e.cause }

// WithUpstream attaches upstream HTTP failure details, truncating the body
// sample to the contract limit.
func (e *RunError) WithUpstream(status int, body, api string) *RunError {
	if len(body) > sampleLimit {
		body = body[:sampleLimit]
	}
	e.Status = status
	e.Sample = body
	e.API = api
	return e
}

// AsRunError unwraps err to a RunError if one is in the chain.
func AsRunError(err error) (*RunError, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// KindOf returns the classification of err, or empty for unclassified
// errors.
func KindOf(err error) ErrorKind {
	if re, ok := AsRunError(err); ok {
		return re.Kind
	}
	return ""
}
