package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindQuota       ErrorKind = "quota"
	KindMalformed   ErrorKind = "malformed"
	KindUnavailable ErrorKind = "unavailable"
)

var ErrEmptyResponse = errors.New("empty response")

// Error is the single failure type callers of Complete see.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ai %s", e.Kind)
	}
	return fmt.Sprintf("ai %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}

	if errors.Is(err, ErrEmptyResponse) {
		return &Error{Kind: KindMalformed, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate_limit"), strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "quota"):
		return &Error{Kind: KindQuota, Err: err}
	case strings.Contains(msg, "unmarshal"), strings.Contains(msg, "invalid character"):
		return &Error{Kind: KindMalformed, Err: err}
	default:
		return &Error{Kind: KindUnavailable, Err: err}
	}
}
