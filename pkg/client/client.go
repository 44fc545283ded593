package client

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"

	"xfer/pkg/config"
	"xfer/pkg/engine"
	"xfer/pkg/logger"
	"xfer/pkg/metrics"
	"xfer/pkg/transfer"
)

// Client builds sessions preconfigured from a Config and runs one-shot
// transfers with them.
type Client struct {
	cfg     config.Config
	log     *logger.Logger
	fs      billy.Filesystem
	metrics *metrics.Metrics
}

type Option func(*Client)

// WithFilesystem sets the filesystem for file:// targets and uploads.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(c *Client) { c.fs = fs }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(cfg *config.Config, log *logger.Logger, opts ...Option) *Client {
	c := &Client{cfg: config.DefaultConfig, log: log}
	if cfg != nil {
		c.cfg = *cfg
	}
	if c.log == nil {
		c.log = logger.Default()
	}
	c.log = c.log.WithField("component", "client")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is the outcome of one transfer. Err is set when the transfer did
// not complete; a completed transfer may still carry an HTTP error status.
type Result struct {
	URL        string
	Status     transfer.Status
	StatusCode int
	Code       engine.Code
	Header     string
	Body       []byte
	Elapsed    time.Duration
	Err        error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// RequestOption adjusts a session for a single request.
type RequestOption func(*transfer.Easy) error

// WithHeader adds a raw "Name: Value" header line.
func WithHeader(line string) RequestOption {
	return func(e *transfer.Easy) error { return e.SetHeaderLine(line) }
}

func WithTimeout(d time.Duration) RequestOption {
	return func(e *transfer.Easy) error { return e.SetTimeout(d) }
}

func WithFollowLocation(follow bool) RequestOption {
	return func(e *transfer.Easy) error { return e.SetFollowLocation(follow) }
}

func WithVerifyPeer(verify bool) RequestOption {
	return func(e *transfer.Easy) error { return e.SetVerifyPeer(verify) }
}

func WithMaxRedirects(n int) RequestOption {
	return func(e *transfer.Easy) error { return e.SetMaxRedirects(n) }
}

func WithProxy(proxyURL string) RequestOption {
	return func(e *transfer.Easy) error { return e.SetProxy(proxyURL) }
}

// NewSession returns a session carrying the configured transfer defaults.
// The caller owns it and must Close it.
func (c *Client) NewSession(opts ...transfer.EasyOption) (*transfer.Easy, error) {
	base := []transfer.EasyOption{
		transfer.WithLogger(c.log),
		transfer.WithMetrics(c.metrics),
		transfer.WithBufferLimit(c.cfg.Transfer.MaxResponseBytes),
	}
	if c.fs != nil {
		base = append(base, transfer.WithFilesystem(c.fs))
	}
	e := transfer.NewEasy(append(base, opts...)...)

	if err := c.applyDefaults(e); err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("failed to configure session: %w", err)
	}
	return e, nil
}

func (c *Client) applyDefaults(e *transfer.Easy) error {
	t := c.cfg.Transfer
	setters := []func() error{
		func() error { return e.SetTimeout(t.Timeout) },
		func() error { return e.SetUserAgent(t.UserAgent) },
		func() error { return e.SetFollowLocation(t.FollowLocation) },
		func() error { return e.SetMaxRedirects(t.MaxRedirects) },
		func() error { return e.SetVerifyPeer(t.VerifyPeer) },
		func() error { return e.SetTCPNoDelay(t.TCPNoDelay) },
		func() error { return e.SetBufferSize(t.BufferSize) },
	}
	if t.Proxy.URL != "" {
		setters = append(setters, func() error { return e.SetProxyWithPort(t.Proxy.URL, t.Proxy.Port) })
	}
	if t.Proxy.Username != "" || t.Proxy.Password != "" {
		setters = append(setters, func() error { return e.SetProxyAuth(t.Proxy.Username, t.Proxy.Password) })
	}
	for _, line := range t.Headers {
		setters = append(setters, func() error { return e.SetHeaderLine(line) })
	}

	for _, set := range setters {
		if err := set(); err != nil {
			return err
		}
	}
	return nil
}

// Get fetches url.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (Result, error) {
	return c.do(ctx, url, nil, nil, opts)
}

// Head fetches only the response headers of url.
func (c *Client) Head(ctx context.Context, url string, opts ...RequestOption) (Result, error) {
	return c.do(ctx, url, nil, func(e *transfer.Easy) error { return e.SetNoBody(true) }, opts)
}

// Post sends body with POST. body is read in place and must not change
// until Post returns.
func (c *Client) Post(ctx context.Context, url string, body []byte, opts ...RequestOption) (Result, error) {
	return c.do(ctx, url, nil, func(e *transfer.Easy) error {
		return e.SetPostContent(body, transfer.ContentByRef)
	}, opts)
}

// Put uploads the file at path.
func (c *Client) Put(ctx context.Context, url, path string, opts ...RequestOption) (Result, error) {
	if c.fs == nil {
		abs, err := filepath.Abs(path)
		if err != nil {
			return Result{}, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		path = abs
	}
	return c.do(ctx, url, nil, func(e *transfer.Easy) error { return e.SetUploadPath(path) }, opts)
}

// Download streams the body of url into w. The returned Result has no Body.
func (c *Client) Download(ctx context.Context, url string, w io.Writer, opts ...RequestOption) (Result, error) {
	return c.do(ctx, url, []transfer.EasyOption{transfer.WithBodySink(w)}, nil, opts)
}

func (c *Client) do(ctx context.Context, url string, sessionOpts []transfer.EasyOption, setup func(*transfer.Easy) error, opts []RequestOption) (Result, error) {
	e, err := c.newRequest(url, sessionOpts, setup, opts)
	if err != nil {
		return Result{}, err
	}
	defer e.Close()

	started := time.Now()
	e.Perform(ctx)
	return resultOf(url, e, time.Since(started)), nil
}

func (c *Client) newRequest(url string, sessionOpts []transfer.EasyOption, setup func(*transfer.Easy) error, opts []RequestOption) (*transfer.Easy, error) {
	e, err := c.NewSession(sessionOpts...)
	if err != nil {
		return nil, err
	}

	if err := e.SetURL(url); err != nil {
		_ = e.Close()
		return nil, err
	}
	if setup != nil {
		if err := setup(e); err != nil {
			_ = e.Close()
			return nil, err
		}
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			_ = e.Close()
			return nil, err
		}
	}
	return e, nil
}

// Batch fetches every URL concurrently through one coordinator. Results are
// returned in the order of urls.
func (c *Client) Batch(ctx context.Context, urls []string, opts ...RequestOption) ([]Result, error) {
	multi := transfer.NewMulti(
		transfer.WithMultiLogger(c.log),
		transfer.WithMaxConcurrency(c.cfg.Multi.MaxConcurrency),
		transfer.WithMultiMetrics(c.metrics),
	)
	defer multi.Close()

	sessions := make([]*transfer.Easy, 0, len(urls))
	defer func() {
		for _, e := range sessions {
			_ = e.Close()
		}
	}()

	for _, url := range urls {
		e, err := c.newRequest(url, nil, nil, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", url, err)
		}
		sessions = append(sessions, e)
		if err := multi.AddHandle(e); err != nil {
			return nil, fmt.Errorf("%s: %w", url, err)
		}
	}

	c.log.Debug("batch starting", "transfers", len(sessions))
	started := time.Now()
	if err := multi.Perform(ctx); err != nil {
		return nil, err
	}
	elapsed := time.Since(started)

	results := make([]Result, len(sessions))
	for i, e := range sessions {
		results[i] = resultOf(urls[i], e, elapsed)
	}
	return results, nil
}

func resultOf(url string, e *transfer.Easy, elapsed time.Duration) Result {
	r := Result{
		URL:        url,
		Status:     e.Status(),
		StatusCode: e.StatusCode(),
		Code:       e.Result(),
		Header:     e.Header(),
		Body:       e.ContentBytes(),
		Elapsed:    elapsed,
	}
	if r.Status != transfer.StatusCompleted {
		r.Err = fmt.Errorf("%s: %s: %s", url, r.Status, e.ErrorString())
	}
	return r
}
