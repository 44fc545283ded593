package errors

import "errors"

var (
	ErrAlreadyAttached   = errors.New("session already attached to a coordinator")
	ErrNotAttached       = errors.New("session not attached to this coordinator")
	ErrSessionAttached   = errors.New("session is attached to a coordinator")
	ErrSessionClosed     = errors.New("session closed")
	ErrCoordinatorClosed = errors.New("coordinator closed")
	ErrNilSession        = errors.New("nil session")
	ErrInvalidOption     = errors.New("invalid option value")
)

// IsAttachmentError reports whether err came from coordinator bookkeeping.
func IsAttachmentError(err error) bool {
	return errors.Is(err, ErrAlreadyAttached) ||
		errors.Is(err, ErrNotAttached) ||
		errors.Is(err, ErrSessionAttached)
}
