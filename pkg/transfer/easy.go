package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"

	"xfer/pkg/buffer"
	"xfer/pkg/engine"
	xerrors "xfer/pkg/errors"
	"xfer/pkg/logger"
	"xfer/pkg/metrics"
)

// Easy configures and runs one request. It owns its engine handle and its
// upload source; the response is streamed into the header and body sinks.
//
// An Easy is not safe for concurrent use. While attached to a Multi it is
// driven by Multi.Perform and its own Perform is rejected.
type Easy struct {
	id      string
	handle  *engine.Handle
	log     *logger.Logger
	metrics *metrics.Metrics

	headerSink io.Writer
	bodySink   io.Writer
	header     buffer.Buffer
	body       buffer.Buffer

	headers []string
	source  uploadSource

	status      Status
	statusCode  int
	result      engine.Code
	errorString string

	onPerformed func(*Easy)
	coordinator atomic.Pointer[Multi]
	closed      bool
}

// EasyOption configures an Easy at construction.
type EasyOption func(*easyOptions)

type easyOptions struct {
	log         *logger.Logger
	fs          billy.Filesystem
	headerSink  io.Writer
	bodySink    io.Writer
	bufferLimit int
	onPerformed func(*Easy)
	metrics     *metrics.Metrics
}

func WithLogger(log *logger.Logger) EasyOption {
	return func(o *easyOptions) { o.log = log }
}

// WithFilesystem sets the filesystem used for file:// targets and upload paths.
func WithFilesystem(fs billy.Filesystem) EasyOption {
	return func(o *easyOptions) { o.fs = fs }
}

// WithHeaderSink streams header lines to w instead of accumulating them;
// Header then stays empty.
func WithHeaderSink(w io.Writer) EasyOption {
	return func(o *easyOptions) { o.headerSink = w }
}

// WithBodySink streams the body to w instead of accumulating it; Content
// then stays empty.
func WithBodySink(w io.Writer) EasyOption {
	return func(o *easyOptions) { o.bodySink = w }
}

// WithBufferLimit caps each accumulated response part at n bytes. A response
// that outgrows the cap ends the transfer with StatusError.
func WithBufferLimit(n int) EasyOption {
	return func(o *easyOptions) { o.bufferLimit = n }
}

// WithPerformedHook registers fn to run after every Perform, once the status
// has been updated.
func WithPerformedHook(fn func(*Easy)) EasyOption {
	return func(o *easyOptions) { o.onPerformed = fn }
}

func WithMetrics(m *metrics.Metrics) EasyOption {
	return func(o *easyOptions) { o.metrics = m }
}

// NewEasy creates a session holding default settings.
func NewEasy(opts ...EasyOption) *Easy {
	var o easyOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Default()
	}

	id := uuid.NewString()
	log := o.log.WithFields("component", "easy", "session", id)

	handleOpts := []engine.HandleOption{engine.WithLogger(o.log.WithField("session", id))}
	if o.fs != nil {
		handleOpts = append(handleOpts, engine.WithFilesystem(o.fs))
	}

	bufCfg := buffer.Config{MaxCapacity: o.bufferLimit}
	return &Easy{
		id:          id,
		handle:      engine.NewHandle(handleOpts...),
		log:         log,
		metrics:     o.metrics,
		headerSink:  o.headerSink,
		bodySink:    o.bodySink,
		header:      buffer.New(bufCfg),
		body:        buffer.New(bufCfg),
		onPerformed: o.onPerformed,
	}
}

// ID returns the session identifier used in logs.
func (e *Easy) ID() string { return e.id }

// Handle exposes the underlying engine handle.
func (e *Easy) Handle() *engine.Handle { return e.handle }

// Coordinator returns the Multi the session is attached to, or nil.
func (e *Easy) Coordinator() *Multi { return e.coordinator.Load() }

// Header returns the header lines accumulated by the last Perform.
func (e *Easy) Header() string { return e.header.String() }

// Content returns the body accumulated by the last Perform.
func (e *Easy) Content() string { return e.body.String() }

// ContentBytes returns a copy of the accumulated body.
func (e *Easy) ContentBytes() []byte { return e.body.Bytes() }

func (e *Easy) Status() Status { return e.status }

// StatusCode returns the protocol response code of the last Perform, 0 when
// none was received.
func (e *Easy) StatusCode() int { return e.statusCode }

// Result returns the raw engine code of the last Perform.
func (e *Easy) Result() engine.Code { return e.result }

// ErrorString describes the last failure, empty after a success.
func (e *Easy) ErrorString() string { return e.errorString }

// Settings is a read-back snapshot of a session's configuration.
type Settings struct {
	engine.Settings
	Source SourceKind
}

func (e *Easy) Settings() Settings {
	s := e.handle.Settings()
	s.Headers = append([]string(nil), e.headers...)
	return Settings{Settings: s, Source: e.source.kind}
}

// Clear drops the accumulated response and returns the status to
// StatusNone. Configuration is untouched.
func (e *Easy) Clear() {
	e.header.Clear()
	e.body.Clear()
	e.status = StatusNone
	e.statusCode = 0
	e.result = engine.OK
	e.errorString = ""
}

// Reset restores every setting to its default and releases the upload
// source. The last response stays readable until Clear or Perform.
func (e *Easy) Reset() {
	if err := e.source.close(); err != nil {
		e.log.Warn("failed to close upload source", "error", err)
	}
	e.headers = nil
	e.handle.Reset()
}

// Close detaches the session from its coordinator, releases the upload
// source and the engine handle. A closed session rejects further use.
func (e *Easy) Close() error {
	if e.closed {
		return nil
	}
	if m := e.coordinator.Load(); m != nil {
		if err := m.RemoveHandle(e); err != nil {
			e.log.Warn("failed to detach from coordinator", "error", err)
		}
	}
	err := e.source.close()
	e.handle.Cleanup()
	e.closed = true
	return err
}

// Perform runs the configured request and blocks until it finishes. It
// reports whether the transfer completed; the outcome is also available
// from Status, StatusCode and ErrorString.
func (e *Easy) Perform(ctx context.Context) bool {
	e.Clear()
	started := time.Now()

	switch {
	case e.closed:
		e.complete(engine.BadFunctionArgument, xerrors.ErrSessionClosed, started)
		return false
	case e.coordinator.Load() != nil:
		e.log.Warn("perform rejected", "error", xerrors.ErrSessionAttached)
		e.complete(engine.FailedInit, xerrors.ErrSessionAttached, started)
		return false
	}

	if code, err := e.prepare(); err != nil {
		e.complete(code, err, started)
		return false
	}

	e.log.Debug("perform starting", "url", e.handle.Settings().URL)
	code := e.handle.Perform(ctx)
	e.complete(code, nil, started)
	return code == engine.OK
}

// prepare hands the engine everything that is installed per transfer: the
// header list, the callbacks and the rewound upload source.
func (e *Easy) prepare() (engine.Code, error) {
	if err := e.handle.SetOpt(engine.OptHTTPHeader, e.headers); err != nil {
		return engine.CodeOf(err), err
	}

	var read engine.ReadFunc
	if e.source.active() {
		size, err := e.source.prepare(e.handle.Filesystem())
		if err != nil {
			if errors.Is(err, errSourceOpen) {
				return engine.FileCouldntReadFile, err
			}
			return engine.ReadError, err
		}
		if err := e.handle.SetOpt(engine.OptInFileSize, size); err != nil {
			return engine.CodeOf(err), err
		}
		read = e.readUpload
	}

	if err := e.handle.SetOpt(engine.OptReadFunction, read); err != nil {
		return engine.CodeOf(err), err
	}
	if err := e.handle.SetOpt(engine.OptWriteFunction, engine.WriteFunc(e.onContent)); err != nil {
		return engine.CodeOf(err), err
	}
	if err := e.handle.SetOpt(engine.OptHeaderFunction, engine.HeaderFunc(e.onHeader)); err != nil {
		return engine.CodeOf(err), err
	}
	return engine.OK, nil
}

// complete records the outcome of one Perform and runs the performed hook.
func (e *Easy) complete(code engine.Code, err error, started time.Time) {
	e.updateStatus(code)
	switch {
	case err != nil:
		e.errorString = err.Error()
	case code != engine.OK:
		e.errorString = e.handle.ErrorString()
	}

	e.metrics.ObserveTransfer(e.status.String(), e.scheme(), time.Since(started))
	if e.status == StatusCompleted {
		e.log.Debug("perform finished", "status", e.status, "statusCode", e.statusCode)
	} else {
		e.log.Debug("perform failed", "status", e.status, "code", int(code), "error", e.errorString)
	}

	if e.onPerformed != nil {
		e.onPerformed(e)
	}
}

// updateStatus maps an engine result onto the session status and picks up
// the response code. It runs exactly once per Perform.
func (e *Easy) updateStatus(code engine.Code) {
	e.result = code
	e.status = statusFromCode(code)
	e.statusCode = e.handle.ResponseCode()
}

func (e *Easy) scheme() string {
	raw := e.handle.Settings().URL
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		return "http"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

func (e *Easy) readUpload(p []byte) (int, error) {
	n, err := e.source.read(p)
	e.metrics.AddBytesSent(n)
	return n, err
}

func (e *Easy) onHeader(p []byte) int {
	w := e.headerSink
	if w == nil {
		w = e.header
	}
	n, err := w.Write(p)
	if err != nil {
		e.log.Debug("header sink rejected data", "error", err)
	}
	return n
}

func (e *Easy) onContent(p []byte) int {
	w := e.bodySink
	if w == nil {
		w = e.body
	}
	n, err := w.Write(p)
	if err != nil {
		e.log.Debug("body sink rejected data", "error", err)
	}
	e.metrics.AddBytesReceived(n)
	return n
}

// setopt forwards one option to the engine. Rejected values are logged and
// returned wrapped in ErrInvalidOption.
func (e *Easy) setopt(opt engine.Option, value any) error {
	if e.closed {
		return xerrors.ErrSessionClosed
	}
	if err := e.handle.SetOpt(opt, value); err != nil {
		return e.reject(opt.String(), err)
	}
	return nil
}

func (e *Easy) reject(what string, err error) error {
	e.log.Warn("option rejected", "option", what, "error", err)
	return fmt.Errorf("%w: %s: %w", xerrors.ErrInvalidOption, what, err)
}
