package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"xfer/pkg/engine"
	xerrors "xfer/pkg/errors"
	"xfer/pkg/logger"
	"xfer/pkg/metrics"
)

// Multi drives several sessions concurrently. A session belongs to at most
// one Multi at a time; the session's back-reference is the source of truth
// for that, since the engine accepts removals of handles it never held.
type Multi struct {
	mu       sync.Mutex
	handle   *engine.MultiHandle
	sessions map[*engine.Handle]*Easy
	order    []*Easy
	done     map[*Easy]bool
	closed   bool

	log     *logger.Logger
	metrics *metrics.Metrics
}

type MultiOption func(*multiOptions)

type multiOptions struct {
	log            *logger.Logger
	maxConcurrency int
	metrics        *metrics.Metrics
}

func WithMultiLogger(log *logger.Logger) MultiOption {
	return func(o *multiOptions) { o.log = log }
}

// WithMaxConcurrency caps the transfers running at once during Perform.
func WithMaxConcurrency(n int) MultiOption {
	return func(o *multiOptions) { o.maxConcurrency = n }
}

func WithMultiMetrics(m *metrics.Metrics) MultiOption {
	return func(o *multiOptions) { o.metrics = m }
}

func NewMulti(opts ...MultiOption) *Multi {
	var o multiOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Default()
	}

	return &Multi{
		handle: engine.NewMultiHandle(
			engine.WithMaxConcurrency(o.maxConcurrency),
			engine.WithMultiLogger(o.log),
		),
		sessions: make(map[*engine.Handle]*Easy),
		done:     make(map[*Easy]bool),
		log:      o.log.WithField("component", "multi"),
		metrics:  o.metrics,
	}
}

// AddHandle attaches e. It fails with ErrAlreadyAttached when e belongs to
// any coordinator, this one included, and leaves both sides unchanged.
func (m *Multi) AddHandle(e *Easy) error {
	if e == nil {
		return xerrors.ErrNilSession
	}
	if e.closed {
		return fmt.Errorf("add session %s: %w", e.id, xerrors.ErrSessionClosed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return xerrors.ErrCoordinatorClosed
	}
	if !e.coordinator.CompareAndSwap(nil, m) {
		m.metrics.IncRejected("add")
		m.log.Warn("add rejected", "session", e.id, "error", xerrors.ErrAlreadyAttached)
		return fmt.Errorf("add session %s: %w", e.id, xerrors.ErrAlreadyAttached)
	}
	if code := m.handle.Add(e.handle); code != engine.MultiOK {
		e.coordinator.Store(nil)
		return fmt.Errorf("add session %s: %s", e.id, code)
	}

	m.sessions[e.handle] = e
	m.order = append(m.order, e)
	m.metrics.SessionAttached()
	m.log.Debug("session attached", "session", e.id, "sessions", len(m.order))
	return nil
}

// RemoveHandle detaches e. It fails with ErrNotAttached, without consulting
// the engine, when e is not attached to m.
func (m *Multi) RemoveHandle(e *Easy) error {
	if e == nil {
		return xerrors.ErrNilSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return xerrors.ErrCoordinatorClosed
	}
	if e.coordinator.Load() != m {
		m.metrics.IncRejected("remove")
		m.log.Warn("remove rejected", "session", e.id, "error", xerrors.ErrNotAttached)
		return fmt.Errorf("remove session %s: %w", e.id, xerrors.ErrNotAttached)
	}
	if code := m.handle.Remove(e.handle); code != engine.MultiOK {
		return fmt.Errorf("remove session %s: %s", e.id, code)
	}

	m.detach(e)
	m.log.Debug("session detached", "session", e.id, "sessions", len(m.order))
	return nil
}

func (m *Multi) detach(e *Easy) {
	delete(m.sessions, e.handle)
	delete(m.done, e)
	for i, candidate := range m.order {
		if candidate == e {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	e.coordinator.Store(nil)
	m.metrics.SessionDetached()
}

type finished struct {
	easy *Easy
	code engine.Code
	err  error
}

// Perform runs every attached session that has not completed yet and blocks
// until all of them finished. Each session's status is updated exactly as by
// Easy.Perform. A session stays completed until it is removed and added
// again; one whose upload source could not be opened is retried next round.
func (m *Multi) Perform(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return xerrors.ErrCoordinatorClosed
	}

	started := time.Now()
	var results, skipped []finished
	runnable := 0
	for _, e := range m.order {
		if m.done[e] {
			continue
		}
		e.Clear()
		if code, err := e.prepare(); err != nil {
			m.handle.Remove(e.handle)
			skipped = append(skipped, finished{easy: e, code: code, err: err})
			continue
		}
		runnable++
	}

	m.log.Debug("perform starting", "sessions", runnable, "skipped", len(skipped))
	_, code := m.handle.Perform(ctx)

	for _, s := range skipped {
		m.handle.Add(s.easy.handle)
	}
	if code != engine.MultiOK {
		m.mu.Unlock()
		return fmt.Errorf("multi perform: %s", code)
	}

	for {
		msg, ok := m.handle.InfoRead()
		if !ok {
			break
		}
		e := m.sessions[msg.Handle]
		if e == nil {
			continue
		}
		m.done[e] = true
		results = append(results, finished{easy: e, code: msg.Result})
	}
	m.mu.Unlock()

	for _, r := range append(skipped, results...) {
		r.easy.complete(r.code, r.err, started)
	}
	m.log.Debug("perform finished", "sessions", len(results), "elapsed", time.Since(started))
	return nil
}

// Handles returns the attached sessions in attachment order.
func (m *Multi) Handles() []*Easy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Easy(nil), m.order...)
}

func (m *Multi) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Close detaches every session and releases the engine multi handle.
// Sessions stay usable on their own afterwards.
func (m *Multi) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	for _, e := range append([]*Easy(nil), m.order...) {
		m.handle.Remove(e.handle)
		m.detach(e)
	}
	m.handle.Cleanup()
	m.closed = true
	m.log.Debug("coordinator closed")
	return nil
}
