package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrorClass partitions provider failures by how the pipeline must react.
type ErrorClass int

const (
	// ClassTransient errors are safe to retry: rate limits, 5xx, network
	// faults, and malformed provider output that a fresh call may fix.
	ClassTransient ErrorClass = iota
	// ClassFatalPolicy errors will fail identically on retry: content
	// blocked by the provider, invalid request shape, auth failures.
	ClassFatalPolicy
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassFatalPolicy:
		return "fatal_policy"
	default:
		return "unknown"
	}
}

// TransientError wraps an error that is safe to retry (429, 5xx, network
// timeout, unparseable model output).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP
// status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// PolicyError wraps an error that retrying cannot fix: the provider
// refused the content or the request itself is invalid.
type PolicyError struct {
	Err        error
	StatusCode int
}

func (e *PolicyError) Error() string { return e.Err.Error() }
func (e *PolicyError) Unwrap() error { return e.Err }

// NewPolicyError wraps an error as a permanent policy failure.
func NewPolicyError(err error, statusCode int) *PolicyError {
	return &PolicyError{Err: err, StatusCode: statusCode}
}

// IsPolicy returns true if the error chain contains a PolicyError.
func IsPolicy(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe)
}

// Classify maps an error to its class. PolicyError wins over everything
// else in the chain; anything not explicitly fatal is treated as
// transient so the escalation loop gets another shot at it.
func Classify(err error) ErrorClass {
	if IsPolicy(err) {
		return ClassFatalPolicy
	}
	return ClassTransient
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or matches common transient network patterns. A
// PolicyError anywhere in the chain makes the whole error non-transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsPolicy(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	patterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether the status code indicates a
// server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504, 529:
		return true
	default:
		return false
	}
}
