package openweather

import (
	"fmt"
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents terminal 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors where no
	// response was received.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents response body decoding errors.
	ErrorClassDecode ErrorClass = "decode"
)

// classifyStatus maps a terminal HTTP status code to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// ConfigError reports invalid construction or call inputs. It is fatal:
// the caller must fix the configuration before retrying.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("openweather: invalid %s: %s", e.Field, e.Reason)
}

// HTTPError is a terminal non-2xx provider response, either a
// non-retryable status on first occurrence or a qualifying status after
// the retry budget was exhausted.
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("openweather: http status %d", e.StatusCode)
	}
	return fmt.Sprintf("openweather: http status %d: %s", e.StatusCode, e.Body)
}

// UnexpectedError wraps transport-level, decoding, or programming faults
// that are neither configuration nor terminal HTTP failures.
type UnexpectedError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("openweather: %s: %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UnexpectedError) Unwrap() error {
	return e.Err
}
