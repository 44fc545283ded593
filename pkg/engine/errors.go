package engine

import (
	"errors"
	"fmt"
)

// ErrAbortTransfer may be returned by a ReadFunc to stop the transfer. The
// transfer then completes with AbortedByCallback.
var ErrAbortTransfer = errors.New("transfer aborted by callback")

var (
	errTooManyRedirects = errors.New("maximum redirects followed")
	errWriteCallback    = errors.New("write callback consumed a short count")
	errHandleClosed     = errors.New("handle cleaned up")
	errInMulti          = errors.New("handle is owned by a multi handle")
	errMissingURL       = errors.New("no URL set")
)

func errUnsupportedScheme(scheme string) error {
	return fmt.Errorf("protocol %q not supported", scheme)
}

// Error describes a rejected engine call.
type Error struct {
	Op   string
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the engine code carried by err, or OK when err is nil.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Code
	}
	return BadFunctionArgument
}
