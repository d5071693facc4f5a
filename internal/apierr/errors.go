// Package apierr holds the error taxonomy shared by every layer that talks
// to the device. Errors are classified once, at the HTTP client or the
// message bridge, and are passed upward unchanged.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// User-facing messages.
const (
	MsgNetwork          = "Network connection failed. Please check your connection."
	MsgTimeout          = "Request timed out. Please try again."
	MsgNotFound         = "Resource not found"
	MsgPermissionDenied = "Operation not permitted."
	MsgServer           = "Server error occurred"
	MsgUnknown          = "An unknown error occurred. Please try again."
)

// NetworkError means the device could not be reached at all.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return "network error: " + e.URL
	}
	return fmt.Sprintf("network error: %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError means a deadline passed before an answer arrived. It is used
// by both the HTTP client and the message bridge.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	if e.Op == "" {
		return "timeout"
	}
	return e.Op + ": timeout"
}

// HTTPError is a response with a non-2xx status.
type HTTPError struct {
	Status     int
	StatusText string
}

func (e *HTTPError) Error() string {
	text := e.StatusText
	if text == "" {
		text = http.StatusText(e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, text)
}

// FieldError names one rejected input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is raised before any network call when input is rejected.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Message)
	}
	return strings.Join(parts, ", ")
}

// Field reports whether the named field was rejected.
func (e *ValidationError) Field(name string) bool {
	for _, f := range e.Fields {
		if f.Field == name {
			return true
		}
	}
	return false
}

// InvalidURLError is returned when a base URL cannot be parsed.
type InvalidURLError struct {
	URL string
	Err error
}

func (e *InvalidURLError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid URL %q", e.URL)
	}
	return fmt.Sprintf("invalid URL %q: %v", e.URL, e.Err)
}

func (e *InvalidURLError) Unwrap() error { return e.Err }

// RemoteError carries the error string returned by the host relay for a
// bridged call.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "Unknown error"
	}
	return e.Message
}

// Retryable reports whether the UI should offer a retry for err.
func Retryable(err error) bool {
	var netErr *NetworkError
	var toErr *TimeoutError
	return errors.As(err, &netErr) || errors.As(err, &toErr)
}

// Message maps err to the text shown to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var (
		netErr  *NetworkError
		toErr   *TimeoutError
		httpErr *HTTPError
		valErr  *ValidationError
	)
	switch {
	case errors.As(err, &netErr):
		return MsgNetwork
	case errors.As(err, &toErr):
		return MsgTimeout
	case errors.As(err, &valErr):
		return valErr.Error()
	case errors.As(err, &httpErr):
		switch {
		case httpErr.Status == http.StatusNotFound:
			return MsgNotFound
		case httpErr.Status == http.StatusForbidden:
			return MsgPermissionDenied
		case httpErr.Status >= 500:
			return MsgServer
		}
		return httpErr.Error()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return MsgUnknown
}
