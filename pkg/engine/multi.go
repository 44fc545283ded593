package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"xfer/pkg/logger"
)

// Message reports a transfer finished by MultiHandle.Perform.
type Message struct {
	Handle *Handle
	Result Code
}

// MultiHandle runs the transfers of several handles concurrently.
//
// Remove reports MultiOK for a handle that was never added; callers that
// need to detect that must track membership themselves.
type MultiHandle struct {
	mu             sync.Mutex
	handles        []*Handle
	messages       []Message
	maxConcurrency int
	closed         bool
	log            *logger.Logger
}

// MultiOption configures a MultiHandle at construction.
type MultiOption func(*MultiHandle)

// WithMaxConcurrency caps the number of transfers running at once (0 = no cap).
func WithMaxConcurrency(n int) MultiOption {
	return func(m *MultiHandle) {
		if n > 0 {
			m.maxConcurrency = n
		}
	}
}

// WithMultiLogger sets the multi handle logger.
func WithMultiLogger(log *logger.Logger) MultiOption {
	return func(m *MultiHandle) {
		if log != nil {
			m.log = log
		}
	}
}

func NewMultiHandle(opts ...MultiOption) *MultiHandle {
	m := &MultiHandle{log: logger.Default()}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithField("component", "engine-multi")
	return m
}

// Add registers h. A handle can belong to one multi handle at a time.
func (m *MultiHandle) Add(h *Handle) MultiCode {
	if h == nil || h.closed {
		return MultiBadEasyHandle
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return MultiBadHandle
	}
	if !h.multi.CompareAndSwap(nil, m) {
		return MultiAddedAlready
	}
	h.done = false
	m.handles = append(m.handles, h)
	return MultiOK
}

// Remove unregisters h. Removing a handle owned by another multi handle, or
// by none, is a no-op that still reports MultiOK.
func (m *MultiHandle) Remove(h *Handle) MultiCode {
	if h == nil {
		return MultiBadEasyHandle
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return MultiBadHandle
	}
	if h.multi.Load() != m {
		return MultiOK
	}

	for i, candidate := range m.handles {
		if candidate == h {
			m.handles = append(m.handles[:i], m.handles[i+1:]...)
			break
		}
	}
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.Handle != h {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	h.done = false
	h.multi.Store(nil)
	return MultiOK
}

// Perform runs every added handle that has not completed yet and blocks
// until all of them finished. It returns the number of transfers still
// running, which is always 0 once the round is over.
func (m *MultiHandle) Perform(ctx context.Context) (int, MultiCode) {
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, MultiBadHandle
	}
	pending := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		if !h.done {
			pending = append(pending, h)
		}
	}
	m.mu.Unlock()

	if len(pending) == 0 {
		return 0, MultiOK
	}

	m.log.Debug("multi round starting", "transfers", len(pending), "maxConcurrency", m.maxConcurrency)

	var g errgroup.Group
	if m.maxConcurrency > 0 {
		g.SetLimit(m.maxConcurrency)
	}
	results := make([]Code, len(pending))
	for i, h := range pending {
		g.Go(func() error {
			results[i] = h.perform(ctx)
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, h := range pending {
		if h.multi.Load() != m {
			continue
		}
		h.done = true
		m.messages = append(m.messages, Message{Handle: h, Result: results[i]})
	}

	m.log.Debug("multi round finished", "transfers", len(pending))
	return 0, MultiOK
}

// InfoRead pops the oldest completion message.
func (m *MultiHandle) InfoRead() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.messages) == 0 {
		return Message{}, false
	}
	msg := m.messages[0]
	m.messages = m.messages[1:]
	return msg, true
}

// Len returns the number of registered handles.
func (m *MultiHandle) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Cleanup releases every registered handle and invalidates m.
func (m *MultiHandle) Cleanup() MultiCode {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return MultiBadHandle
	}
	for _, h := range m.handles {
		h.done = false
		h.multi.Store(nil)
	}
	m.handles = nil
	m.messages = nil
	m.closed = true
	return MultiOK
}
