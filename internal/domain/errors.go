package domain

import (
	"errors"
	"fmt"
	"time"
)

type FailureKind int

const (
	FailureNetwork FailureKind = iota
	FailureDecode
	FailureNotFound
	FailureRateLimited
	FailureUnauthorized
)

func (k FailureKind) String() string {
	switch k {
	case FailureNetwork:
		return "network"
	case FailureDecode:
		return "decode"
	case FailureNotFound:
		return "not found"
	case FailureRateLimited:
		return "rate limited"
	case FailureUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// FetchError is the typed failure returned by a RemoteClient.
type FetchError struct {
	Kind       FailureKind
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	msg := "gitlab: " + e.Kind.String()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (%d)", e.Status)
	}
	if e.Kind == FailureRateLimited && e.RetryAfter > 0 {
		msg += ", retry after " + e.RetryAfter.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// FailureOf classifies any error. Errors that are not a *FetchError
// count as network failures.
func FailureOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FailureNetwork
}

// IsAuthFailure reports whether err needs operator intervention.
func IsAuthFailure(err error) bool {
	return err != nil && FailureOf(err) == FailureUnauthorized
}

// RetryAfter returns the server requested delay, or zero.
func RetryAfter(err error) time.Duration {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Kind == FailureRateLimited {
		return fe.RetryAfter
	}
	return 0
}

var ErrUnknownEntity = errors.New("snapshot references unknown entity")
