package buffer

import (
	"bytes"
	"fmt"
	"sync"
)

// Buffer accumulates streamed response bytes in arrival order.
type Buffer interface {
	// Write appends data. A write that would exceed the configured maximum
	// capacity stores nothing and returns ErrBufferFull.
	Write(data []byte) (int, error)

	// Bytes returns a copy of the accumulated contents.
	Bytes() []byte

	// String returns the accumulated contents as a string.
	String() string

	// Len returns the current size in bytes.
	Len() int

	// Cap returns the maximum capacity in bytes (0 = unlimited).
	Cap() int

	// Clear removes all data but keeps the configuration.
	Clear()
}

// Config contains configuration options for buffers.
type Config struct {
	// InitialCapacity preallocated on first write, in bytes.
	InitialCapacity int `yaml:"initial_capacity" json:"initial_capacity"`

	// MaxCapacity limits buffer growth (0 = unlimited).
	MaxCapacity int `yaml:"max_capacity" json:"max_capacity"`
}

// Validate checks the capacity settings.
func (c Config) Validate() error {
	if c.InitialCapacity < 0 || c.MaxCapacity < 0 {
		return ErrInvalidCapacity
	}
	if c.MaxCapacity > 0 && c.InitialCapacity > c.MaxCapacity {
		return fmt.Errorf("%w: initial %d exceeds max %d", ErrInvalidCapacity, c.InitialCapacity, c.MaxCapacity)
	}
	return nil
}

// New creates an in-memory buffer. Invalid capacities fall back to unlimited.
func New(config Config) Buffer {
	if config.Validate() != nil {
		config = Config{}
	}
	return &memoryBuffer{config: config}
}

// memoryBuffer is a bytes.Buffer guarded for concurrent readers.
type memoryBuffer struct {
	mu     sync.RWMutex
	data   bytes.Buffer
	config Config
}

func (b *memoryBuffer) Write(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.config.MaxCapacity > 0 && b.data.Len()+len(data) > b.config.MaxCapacity {
		return 0, ErrBufferFull
	}

	if b.data.Cap() == 0 && b.config.InitialCapacity > 0 {
		b.data.Grow(b.config.InitialCapacity)
	}

	return b.data.Write(data)
}

func (b *memoryBuffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// Create a copy to prevent external mutations
	data := make([]byte, b.data.Len())
	copy(data, b.data.Bytes())
	return data
}

func (b *memoryBuffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data.String()
}

func (b *memoryBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data.Len()
}

func (b *memoryBuffer) Cap() int {
	return b.config.MaxCapacity
}

func (b *memoryBuffer) Clear() {
	b.mu.Lock()
	b.data.Reset()
	b.mu.Unlock()
}
