package common

import (
	"errors"
	"maps"

	"github.com/streamkit/segmented/logging"
)

// StreamError represents stream-related errors with integrated logging
type StreamError struct {
	Type    StreamType     `json:"type"`
	URL     string         `json:"url"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Cause   error          `json:"-"`
	Fields  logging.Fields `json:"fields,omitempty"`
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Log logs this error using the global logger
func (e *StreamError) Log() {
	fields := logging.Fields{
		"stream_type": string(e.Type),
		"url":         e.URL,
		"error_code":  e.Code,
	}

	maps.Copy(fields, e.Fields)

	logging.Error(e.Cause, e.Message, fields)
}

// Error codes. Resolve, parse and DRM failures are terminal; segment
// failures are retried locally before they surface with SEGMENT_FAILED.
const (
	ErrCodeResolve    = "RESOLVE_FAILED"
	ErrCodeParse      = "PARSE_FAILED"
	ErrCodeDRM        = "DRM_PROTECTED"
	ErrCodeSegment    = "SEGMENT_FAILED"
	ErrCodeStalled    = "STALLED"
	ErrCodeCancelled  = "CANCELLED"
	ErrCodeConnection = "CONNECTION_FAILED"
	ErrCodeTimeout    = "TIMEOUT"
)

// NewStreamError creates a new stream error
func NewStreamError(streamType StreamType, url, code, message string, cause error) *StreamError {
	return &StreamError{
		Type:    streamType,
		URL:     url,
		Code:    code,
		Message: message,
		Cause:   cause,
		Fields:  make(logging.Fields),
	}
}

// NewStreamErrorWithFields creates a new stream error with additional fields
func NewStreamErrorWithFields(streamType StreamType, url, code, message string, cause error, fields logging.Fields) *StreamError {
	return &StreamError{
		Type:    streamType,
		URL:     url,
		Code:    code,
		Message: message,
		Cause:   cause,
		Fields:  fields,
	}
}

// HasCode reports whether err is a StreamError carrying the given code
func HasCode(err error, code string) bool {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsDRMError reports whether err signals encrypted content the runtime
// cannot play
func IsDRMError(err error) bool { return HasCode(err, ErrCodeDRM) }

// IsStallError reports whether err signals a reader timeout with no data
func IsStallError(err error) bool { return HasCode(err, ErrCodeStalled) }

// IsCancelled reports whether err came from a user-initiated close
func IsCancelled(err error) bool { return HasCode(err, ErrCodeCancelled) }
