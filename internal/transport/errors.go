package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionLost marks failures that mean the link itself is gone.
	ErrConnectionLost = errors.New("connection lost")
	ErrNotConnected   = fmt.Errorf("not connected: %w", ErrConnectionLost)
	ErrUnsupported    = errors.New("not supported by transport")
)

// Error is a transport-level failure for one operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
