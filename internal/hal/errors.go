package hal

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"syscall"
)

// ErrorType represents the category of a failed backend request
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error (no route, reset, etc.)
	ErrTypeNetwork ErrorType = iota
	// ErrTypeAuth indicates the backend rejected the API key
	ErrTypeAuth
	// ErrTypeHTTP indicates a non-2xx status code
	ErrTypeHTTP
	// ErrTypeParse indicates a malformed response body
	ErrTypeParse
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the backend refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// RequestError is the failure value of every HTTP call on the board.
type RequestError struct {
	Type           ErrorType
	Message        string
	StatusCode     int
	Err            error
	NetworkSubtype NetworkErrorSubtype
	URL            string
	Retryable      bool
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError maps a transport error onto the taxonomy.
func ClassifyNetworkError(err error, target string) *RequestError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &RequestError{
			Type:           ErrTypeTimeout,
			Message:        "Request timed out",
			Err:            err,
			NetworkSubtype: NetworkErrorTimeout,
			URL:            target,
			Retryable:      true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &RequestError{
			Type:           ErrTypeDNS,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			URL:            target,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &RequestError{
				Type:           ErrTypeConnectionRefused,
				Message:        "Backend refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				URL:            target,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &RequestError{
				Type:           ErrTypeNetwork,
				Message:        "Host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				URL:            target,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &RequestError{
				Type:           ErrTypeNetwork,
				Message:        "Network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				URL:            target,
				Retryable:      true,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ClassifyNetworkError(urlErr.Err, target)
	}

	return &RequestError{
		Type:           ErrTypeNetwork,
		Message:        "Network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		URL:            target,
		Retryable:      true,
	}
}

// NewHTTPError creates an error for a non-2xx response.
// 401 and 403 are reported as authentication errors.
func NewHTTPError(statusCode int, target string) *RequestError {
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return &RequestError{
			Type:       ErrTypeAuth,
			Message:    "backend rejected the API key",
			StatusCode: statusCode,
			URL:        target,
		}
	}
	return &RequestError{
		Type:       ErrTypeHTTP,
		Message:    fmt.Sprintf("unexpected status %d", statusCode),
		StatusCode: statusCode,
		URL:        target,
		Retryable:  statusCode >= 500,
	}
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *RequestError {
	return &RequestError{
		Type:    ErrTypeParse,
		Message: message,
		Err:     err,
	}
}

func asRequestError(err error) (*RequestError, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr, true
	}
	return nil, false
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS)
func IsNetworkError(err error) bool {
	if reqErr, ok := asRequestError(err); ok {
		return reqErr.Type == ErrTypeNetwork ||
			reqErr.Type == ErrTypeTimeout ||
			reqErr.Type == ErrTypeConnectionRefused ||
			reqErr.Type == ErrTypeDNS
	}
	return false
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	reqErr, ok := asRequestError(err)
	return ok && reqErr.Type == ErrTypeAuth
}

// IsHTTPError checks if an error is an HTTP status error
func IsHTTPError(err error) bool {
	reqErr, ok := asRequestError(err)
	return ok && reqErr.Type == ErrTypeHTTP
}

// IsParseError checks if an error is a parse error
func IsParseError(err error) bool {
	reqErr, ok := asRequestError(err)
	return ok && reqErr.Type == ErrTypeParse
}

// IsRetryable checks if an error may succeed on the next poll
func IsRetryable(err error) bool {
	reqErr, ok := asRequestError(err)
	return ok && reqErr.Retryable
}

// ShortErrorMessage returns a concise message suited to the status panel.
func ShortErrorMessage(err error) string {
	reqErr, ok := asRequestError(err)
	if !ok {
		return err.Error()
	}

	switch reqErr.Type {
	case ErrTypeTimeout:
		return "Backend not responding"
	case ErrTypeConnectionRefused:
		return "Backend refused connection"
	case ErrTypeDNS:
		return "Cannot resolve backend"
	case ErrTypeAuth:
		return "API key rejected"
	case ErrTypeNetwork:
		switch reqErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			return "Backend unreachable"
		case NetworkErrorNetworkUnreachable:
			return "No network"
		default:
			return "Network error"
		}
	case ErrTypeHTTP:
		return fmt.Sprintf("Backend error (HTTP %d)", reqErr.StatusCode)
	case ErrTypeParse:
		return "Bad backend response"
	default:
		return reqErr.Message
	}
}
