package buffer

import "errors"

var (
	// ErrBufferFull indicates that the buffer has reached its maximum capacity.
	ErrBufferFull = errors.New("buffer is full")

	// ErrInvalidCapacity indicates that the specified capacity is invalid.
	ErrInvalidCapacity = errors.New("invalid buffer capacity")
)

// IsCapacityError checks if an error indicates capacity limits were exceeded.
func IsCapacityError(err error) bool {
	return errors.Is(err, ErrBufferFull)
}
