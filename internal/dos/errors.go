package dos

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the device refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a host name resolution failure
	ErrTypeDNS
	// ErrTypeHTTP indicates a non-200 status code
	ErrTypeHTTP
	// ErrTypeParse indicates a body that is not valid JSON
	ErrTypeParse
	// ErrTypeValidation indicates a JSON body that does not match the expected schema
	ErrTypeValidation
	// ErrTypeDevice indicates the device answered with a DOS error document
	ErrTypeDevice
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeValidation:
		return "Validation Error"
	case ErrTypeDevice:
		return "Device Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// APIError is returned by every Client call that fails
type APIError struct {
	Type       ErrorType // Category of error
	Message    string    // Human-readable error message
	Endpoint   string    // Path that was requested
	StatusCode int       // HTTP status code (if applicable)
	Code       string    // DOS error code (ErrTypeDevice only)
	Err        error     // Underlying error (if any)
	Retryable  bool      // Whether retrying the same call may succeed
}

// Error implements the error interface
func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Endpoint != "" {
		msg = fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Endpoint)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport error and returns a typed APIError
func ClassifyNetworkError(err error, endpoint string) *APIError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &APIError{
			Type:      ErrTypeTimeout,
			Message:   "request timed out",
			Endpoint:  endpoint,
			Err:       err,
			Retryable: true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &APIError{
			Type:      ErrTypeDNS,
			Message:   fmt.Sprintf("cannot resolve %s", dnsErr.Name),
			Endpoint:  endpoint,
			Err:       err,
			Retryable: false,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return &APIError{
				Type:      ErrTypeConnectionRefused,
				Message:   "device refused connection",
				Endpoint:  endpoint,
				Err:       err,
				Retryable: true,
			}
		}
		if errors.Is(opErr.Err, syscall.EHOSTUNREACH) || errors.Is(opErr.Err, syscall.ENETUNREACH) {
			return &APIError{
				Type:      ErrTypeNetwork,
				Message:   "device unreachable",
				Endpoint:  endpoint,
				Err:       err,
				Retryable: true,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return ClassifyNetworkError(urlErr.Err, endpoint)
	}

	return &APIError{
		Type:      ErrTypeNetwork,
		Message:   "request failed",
		Endpoint:  endpoint,
		Err:       err,
		Retryable: true,
	}
}

// NewHTTPError creates an error for an unexpected status code
func NewHTTPError(statusCode int, endpoint string) *APIError {
	return &APIError{
		Type:       ErrTypeHTTP,
		Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Retryable:  statusCode >= 500,
	}
}

// NewParseError creates an error for a body that is not JSON
func NewParseError(endpoint string, err error) *APIError {
	return &APIError{
		Type:     ErrTypeParse,
		Message:  "malformed response body",
		Endpoint: endpoint,
		Err:      err,
	}
}

// NewValidationError creates an error for a body that does not match its schema
func NewValidationError(endpoint string, message string) *APIError {
	return &APIError{
		Type:     ErrTypeValidation,
		Message:  message,
		Endpoint: endpoint,
	}
}

// NewDeviceError wraps a DOS error document returned by the device
func NewDeviceError(endpoint string, body ErrorBody) *APIError {
	return &APIError{
		Type:     ErrTypeDevice,
		Message:  body.Message,
		Code:     body.Code,
		Endpoint: endpoint,
	}
}

func errorType(err error) (ErrorType, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Type, true
	}
	return 0, false
}

// IsNetworkError checks if an error is a transport error (timeout, refused, DNS, etc.)
func IsNetworkError(err error) bool {
	t, ok := errorType(err)
	return ok && (t == ErrTypeNetwork || t == ErrTypeTimeout || t == ErrTypeConnectionRefused || t == ErrTypeDNS)
}

// IsHTTPError checks if an error is an unexpected status code
func IsHTTPError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeHTTP
}

// IsParseError checks if an error is a malformed body
func IsParseError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeParse
}

// IsValidationError checks if an error is a schema mismatch
func IsValidationError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeValidation
}

// IsDeviceError checks if the device answered with a DOS error document
func IsDeviceError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeDevice
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return false
}

// ShortMessage returns a concise, user-facing error message
func ShortMessage(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}

	switch apiErr.Type {
	case ErrTypeTimeout:
		return "Device not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Device refused connection"
	case ErrTypeDNS:
		return "Cannot resolve device host name"
	case ErrTypeNetwork:
		return "Network error - check connection"
	case ErrTypeHTTP:
		return fmt.Sprintf("Device error (HTTP %d)", apiErr.StatusCode)
	case ErrTypeParse, ErrTypeValidation:
		return "Unexpected response from device"
	case ErrTypeDevice:
		return fmt.Sprintf("Device reported %s: %s", apiErr.Code, apiErr.Message)
	default:
		return apiErr.Message
	}
}
