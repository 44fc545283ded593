package transfer

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"xfer/pkg/engine"
	xerrors "xfer/pkg/errors"
)

func (e *Easy) SetURL(rawURL string) error {
	return e.setopt(engine.OptURL, rawURL)
}

// SetProtocolURL sets the URL, adding the protocol prefix when rawURL does
// not already start with it. A URL carrying a different scheme is rejected.
func (e *Easy) SetProtocolURL(proto Protocol, rawURL string) error {
	prefix := proto.Prefix()
	if prefix == "" || strings.HasPrefix(strings.ToLower(rawURL), prefix) {
		return e.SetURL(rawURL)
	}
	if strings.Contains(rawURL, "://") {
		return e.reject("url", fmt.Errorf("%q does not use %s", rawURL, prefix))
	}
	return e.SetURL(prefix + rawURL)
}

// SetPort overrides the port of the URL. 0 restores the URL's own port.
func (e *Easy) SetPort(port int) error {
	return e.setopt(engine.OptPort, port)
}

// SetMethod sends method verbatim as the request method. An empty name
// restores the method implied by the other settings.
func (e *Easy) SetMethod(method string) error {
	if method != "" && !httpguts.ValidHeaderFieldName(method) {
		return e.reject("method", fmt.Errorf("invalid method %q", method))
	}
	return e.setopt(engine.OptCustomRequest, method)
}

// SetHTTPMethod selects GET, PUT or POST and drops any custom method name.
func (e *Easy) SetHTTPMethod(method HTTPMethod) error {
	var opt engine.Option
	switch method {
	case MethodGet:
		opt = engine.OptHTTPGet
	case MethodPut:
		opt = engine.OptPut
	case MethodPost:
		opt = engine.OptPost
	default:
		return e.reject("method", fmt.Errorf("unknown method %d", method))
	}
	if err := e.setopt(engine.OptCustomRequest, ""); err != nil {
		return err
	}
	return e.setopt(opt, true)
}

// SetHeaderLine adds a raw "Name: Value" request header. An empty value
// removes a header the engine would otherwise send.
func (e *Easy) SetHeaderLine(line string) error {
	name, value, ok := engine.SplitHeaderLine(line)
	if !ok {
		return e.reject("header", fmt.Errorf("malformed header line %q", line))
	}
	return e.SetHeader(name, value)
}

func (e *Easy) SetHeader(name, value string) error {
	if e.closed {
		return xerrors.ErrSessionClosed
	}
	if !httpguts.ValidHeaderFieldName(name) {
		return e.reject("header", fmt.Errorf("invalid header name %q", name))
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return e.reject("header", fmt.Errorf("invalid value for header %s", name))
	}
	e.headers = append(e.headers, name+": "+value)
	return nil
}

// SetHeaders adds every field in order and stops at the first invalid one.
func (e *Easy) SetHeaders(fields ...Field) error {
	for _, f := range fields {
		if err := e.SetHeader(f.Name, f.Value); err != nil {
			return err
		}
	}
	return nil
}

func (e *Easy) SetUserAgent(userAgent string) error {
	return e.setopt(engine.OptUserAgent, userAgent)
}

// SetTimeout bounds the whole transfer. Zero disables the limit.
func (e *Easy) SetTimeout(d time.Duration) error {
	if d < 0 {
		return e.reject("timeout", fmt.Errorf("negative timeout %s", d))
	}
	ms := d.Milliseconds()
	if d > 0 && ms == 0 {
		ms = 1
	}
	return e.setopt(engine.OptTimeoutMs, ms)
}

func (e *Easy) SetTimeoutMs(ms int) error {
	return e.setopt(engine.OptTimeoutMs, ms)
}

func (e *Easy) SetTimeoutSec(sec int) error {
	if sec > math.MaxInt32/1000 {
		return e.reject("timeout", fmt.Errorf("timeout of %ds too large", sec))
	}
	return e.setopt(engine.OptTimeoutMs, sec*1000)
}

// SetMaxRedirects caps followed redirects; -1 means unlimited.
func (e *Easy) SetMaxRedirects(n int) error {
	return e.setopt(engine.OptMaxRedirs, n)
}

func (e *Easy) SetNoBody(enable bool) error {
	return e.setopt(engine.OptNoBody, enable)
}

func (e *Easy) SetTCPNoDelay(enable bool) error {
	return e.setopt(engine.OptTCPNoDelay, enable)
}

func (e *Easy) SetVerifyPeer(enable bool) error {
	return e.setopt(engine.OptSSLVerifyPeer, enable)
}

func (e *Easy) SetFollowLocation(enable bool) error {
	return e.setopt(engine.OptFollowLocation, enable)
}

// SetProxy routes the request through proxyURL. An empty URL falls back to
// the proxy environment variables.
func (e *Easy) SetProxy(proxyURL string) error {
	return e.setopt(engine.OptProxy, proxyURL)
}

func (e *Easy) SetProxyWithPort(proxyURL string, port int) error {
	if err := e.setopt(engine.OptProxy, proxyURL); err != nil {
		return err
	}
	return e.setopt(engine.OptProxyPort, port)
}

func (e *Easy) SetProxyAuth(username, password string) error {
	if err := e.setopt(engine.OptProxyUsername, username); err != nil {
		return err
	}
	return e.setopt(engine.OptProxyPassword, password)
}

// SetBufferSize sets the transfer chunk size, between engine.MinBufferSize
// and engine.MaxBufferSize.
func (e *Easy) SetBufferSize(size int) error {
	return e.setopt(engine.OptBufferSize, size)
}

// SetPostContent sends data as a POST body. With ContentByRef the caller
// must keep data unchanged until Perform returns.
func (e *Easy) SetPostContent(data []byte, flag ContentFlag) error {
	if err := e.checkFlag(flag); err != nil {
		return err
	}
	if err := e.setopt(engine.OptPost, true); err != nil {
		return err
	}
	e.selectSource(bufferSource(data, flag))
	return nil
}

// SetUploadBuffer uploads data with PUT semantics.
func (e *Easy) SetUploadBuffer(data []byte, flag ContentFlag) error {
	if err := e.checkFlag(flag); err != nil {
		return err
	}
	if err := e.setopt(engine.OptUpload, true); err != nil {
		return err
	}
	e.selectSource(bufferSource(data, flag))
	return nil
}

// SetUploadFile uploads from an open file the caller keeps ownership of.
// Its size is measured by seeking when f supports it.
func (e *Easy) SetUploadFile(f File) error {
	return e.setUploadFile(f, -1)
}

// SetUploadFileSize uploads exactly size bytes from f.
func (e *Easy) SetUploadFileSize(f File, size int64) error {
	if size < 0 {
		return e.reject("upload size", fmt.Errorf("negative size %d", size))
	}
	return e.setUploadFile(f, size)
}

func (e *Easy) setUploadFile(f File, size int64) error {
	if f == nil {
		return e.reject("upload file", errors.New("nil file"))
	}
	if err := e.setopt(engine.OptUpload, true); err != nil {
		return err
	}
	e.selectSource(handleSource(f, size))
	return nil
}

// SetUploadPath uploads the file at path. The session opens it at Perform
// and closes it on Reset, on Close or when another source is selected.
func (e *Easy) SetUploadPath(path string) error {
	if path == "" {
		return e.reject("upload path", errors.New("empty path"))
	}
	if err := e.setopt(engine.OptUpload, true); err != nil {
		return err
	}
	e.selectSource(pathSource(path))
	return nil
}

func (e *Easy) selectSource(src uploadSource) {
	if err := e.source.close(); err != nil {
		e.log.Warn("failed to close upload source", "error", err)
	}
	e.source = src
}

func (e *Easy) checkFlag(flag ContentFlag) error {
	if flag != ContentCopy && flag != ContentByRef {
		return e.reject("content flag", fmt.Errorf("unknown flag %d", flag))
	}
	return nil
}
