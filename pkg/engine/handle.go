package engine

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"xfer/pkg/logger"
)

// Handle is a single transfer handle. A handle is not safe for concurrent
// use; callbacks run on the goroutine that calls Perform.
type Handle struct {
	settings Settings

	read   ReadFunc
	write  WriteFunc
	header HeaderFunc

	fs  billy.Filesystem
	log *logger.Logger

	transport    *http.Transport
	transportKey string
	wire         *headerRecorder

	responseCode int
	errorString  string

	multi  atomic.Pointer[MultiHandle]
	done   bool
	closed bool
}

// HandleOption configures a Handle at construction.
type HandleOption func(*Handle)

// WithFilesystem sets the filesystem used by the file:// backend.
func WithFilesystem(fs billy.Filesystem) HandleOption {
	return func(h *Handle) {
		if fs != nil {
			h.fs = fs
		}
	}
}

// WithLogger sets the handle logger.
func WithLogger(log *logger.Logger) HandleOption {
	return func(h *Handle) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHandle creates a handle holding default settings.
func NewHandle(opts ...HandleOption) *Handle {
	h := &Handle{
		settings: DefaultSettings(),
		wire:     newHeaderRecorder(),
		fs:       osfs.New("/"),
		log:      logger.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.WithField("component", "engine")
	return h
}

// Settings returns a copy of the current settings.
func (h *Handle) Settings() Settings {
	return h.settings.clone()
}

// Filesystem returns the filesystem used for file:// transfers.
func (h *Handle) Filesystem() billy.Filesystem {
	return h.fs
}

// ResponseCode returns the last protocol response code, 0 when none was received.
func (h *Handle) ResponseCode() int {
	return h.responseCode
}

// ErrorString returns a detailed description of the last failure.
func (h *Handle) ErrorString() string {
	return h.errorString
}

// Reset restores default settings and drops every callback. Cached
// connections are kept.
func (h *Handle) Reset() {
	h.settings = DefaultSettings()
	h.read = nil
	h.write = nil
	h.header = nil
	h.responseCode = 0
	h.errorString = ""
}

// Cleanup releases the handle, detaching it from any multi handle first.
func (h *Handle) Cleanup() {
	if h.closed {
		return
	}
	if m := h.multi.Load(); m != nil {
		m.Remove(h)
	}
	if h.transport != nil {
		h.transport.CloseIdleConnections()
		h.transport = nil
	}
	h.closed = true
}

// Perform runs one transfer and blocks until it completes. Handles owned
// by a multi handle are driven through MultiHandle.Perform instead.
func (h *Handle) Perform(ctx context.Context) Code {
	if h.multi.Load() != nil {
		return h.fail(FailedInit, errInMulti)
	}
	return h.perform(ctx)
}

func (h *Handle) perform(ctx context.Context) Code {
	h.responseCode = 0
	h.errorString = ""

	if h.closed {
		return h.fail(BadFunctionArgument, errHandleClosed)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	target, code, err := h.targetURL()
	if err != nil {
		return h.fail(code, err)
	}

	h.log.Debug("transfer starting", "url", target.Redacted(), "method", h.settings.Method())

	switch target.Scheme {
	case "http", "https":
		code, err = h.performHTTP(ctx, target)
	case "file":
		code, err = h.performFile(ctx, target)
	default:
		code, err = UnsupportedProtocol, &url.Error{Op: "perform", URL: target.Redacted(), Err: errUnsupportedScheme(target.Scheme)}
	}

	if code != OK {
		return h.fail(code, err)
	}
	h.log.Debug("transfer finished", "url", target.Redacted(), "responseCode", h.responseCode)
	return OK
}

func (h *Handle) fail(code Code, err error) Code {
	if err != nil {
		h.errorString = err.Error()
	} else {
		h.errorString = code.String()
	}
	h.log.Debug("transfer failed", "code", int(code), "error", h.errorString)
	return code
}

// targetURL parses the configured URL, assuming http:// when no scheme is
// given and applying the port override.
func (h *Handle) targetURL() (*url.URL, Code, error) {
	raw := strings.TrimSpace(h.settings.URL)
	if raw == "" {
		return nil, URLMalformat, errMissingURL
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, URLMalformat, err
	}
	u.Scheme = strings.ToLower(u.Scheme)

	if h.settings.Port > 0 && u.Scheme != "file" {
		u.Host = joinHostPort(u.Hostname(), h.settings.Port)
	}
	return u, OK, nil
}
