package runner

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrorClass is the closed set of failure variants the retry policy
// dispatches on. Classification happens once, at the boundary where the
// error enters the runner.
type ErrorClass int

const (
	ClassFatal ErrorClass = iota
	ClassRateLimited
	ClassServerUnavailable
	ClassNetworkReset
)

func (c ErrorClass) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassServerUnavailable:
		return "server_unavailable"
	case ClassNetworkReset:
		return "network_reset"
	default:
		return "fatal"
	}
}

// Retryable reports whether the class is a transient failure.
func (c ErrorClass) Retryable() bool {
	return c != ClassFatal
}

// ClassifiedError tags an underlying error with its class.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// RateLimited tags err as a rate-limit rejection.
func RateLimited(err error) error {
	return &ClassifiedError{Class: ClassRateLimited, Err: err}
}

// ServerUnavailable tags err as a transient upstream outage.
func ServerUnavailable(err error) error {
	return &ClassifiedError{Class: ClassServerUnavailable, Err: err}
}

// NetworkReset tags err as a dropped connection.
func NetworkReset(err error) error {
	return &ClassifiedError{Class: ClassNetworkReset, Err: err}
}

// Fatal tags err as non-retryable.
func Fatal(err error) error {
	return &ClassifiedError{Class: ClassFatal, Err: err}
}

// FromHTTPStatus tags err according to an upstream HTTP status code.
func FromHTTPStatus(status int, err error) error {
	switch status {
	case 429:
		return RateLimited(err)
	case 500, 503:
		return ServerUnavailable(err)
	default:
		return Fatal(err)
	}
}

// Classify returns the class of an error. Untagged errors are fatal except
// for connection resets surfacing from the I/O layer.
func Classify(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return ClassNetworkReset
	}
	return ClassFatal
}
