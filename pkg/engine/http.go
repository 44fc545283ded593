package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const dialTimeout = 30 * time.Second

func (h *Handle) performHTTP(ctx context.Context, target *url.URL) (Code, error) {
	transport, err := h.httpTransport()
	if err != nil {
		return BadFunctionArgument, err
	}

	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	s := h.settings
	method := s.Method()

	var upload *pullReader
	var reqBody io.Reader
	if s.sendsBody() && h.read != nil {
		upload = &pullReader{read: h.read, chunk: s.BufferSize}
		reqBody = upload
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return URLMalformat, err
	}
	if upload != nil {
		switch {
		case s.InFileSize == 0:
			req.Body = http.NoBody
			req.ContentLength = 0
		case s.InFileSize > 0:
			req.ContentLength = s.InFileSize
		default:
			req.ContentLength = -1
		}
	}
	applyHeaders(req, s)

	client := &http.Client{
		Transport:     transport,
		CheckRedirect: redirectPolicy(s.FollowLocation, s.MaxRedirects),
	}

	h.wire.reset()
	resp, err := client.Do(req)
	if err != nil {
		return h.classify(ctx, err, upload), err
	}
	defer resp.Body.Close()

	h.responseCode = resp.StatusCode
	if upload != nil && upload.err != nil {
		return h.classify(ctx, upload.err, upload), upload.err
	}

	if err := h.emitHeaders(resp, h.wire.take()); err != nil {
		return WriteError, err
	}

	if s.NoBody || method == http.MethodHead {
		return OK, nil
	}
	if err := h.pumpBody(resp.Body, s.BufferSize); err != nil {
		return h.classify(ctx, err, upload), err
	}
	return OK, nil
}

func (h *Handle) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.settings.Timeout > 0 {
		return context.WithTimeout(ctx, h.settings.Timeout)
	}
	return context.WithCancel(ctx)
}

// httpTransport returns a cached transport matching the current proxy, TLS
// and socket settings, rebuilding it when any of them changed.
func (h *Handle) httpTransport() (*http.Transport, error) {
	s := h.settings

	var proxy *url.URL
	if s.Proxy != "" {
		var err error
		proxy, err = parseProxy(s.Proxy, s.ProxyPort)
		if err != nil {
			return nil, err
		}
		if s.ProxyUsername != "" || s.ProxyPassword != "" {
			proxy.User = url.UserPassword(s.ProxyUsername, s.ProxyPassword)
		}
	}

	key := fmt.Sprintf("proxy=%v verify=%t nodelay=%t", proxy, s.VerifyPeer, s.TCPNoDelay)
	if h.transport != nil && h.transportKey == key {
		return h.transport, nil
	}
	if h.transport != nil {
		h.transport.CloseIdleConnections()
	}

	var transport *http.Transport
	if base, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = base.Clone()
	} else {
		transport = &http.Transport{}
	}

	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
	noDelay := s.TCPNoDelay
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(noDelay)
		}
		return conn, nil
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !s.VerifyPeer, //nolint:gosec // caller opted out of peer verification
		NextProtos:         []string{"http/1.1"},
	}

	rec := h.wire
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &recordingConn{Conn: conn, rec: rec}, nil
	}
	// TLS is terminated here so the recorder sees plaintext.
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		raw, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		cfg := tlsConfig.Clone()
		if host, _, err := net.SplitHostPort(addr); err == nil {
			cfg.ServerName = host
		} else {
			cfg.ServerName = addr
		}
		conn := tls.Client(raw, cfg)
		if err := conn.HandshakeContext(ctx); err != nil {
			_ = raw.Close()
			return nil, err
		}
		return &recordingConn{Conn: conn, rec: rec}, nil
	}

	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy)
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	// Bodies are delivered exactly as received.
	transport.DisableCompression = true
	transport.TLSClientConfig = tlsConfig
	transport.ForceAttemptHTTP2 = false
	transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}

	h.transport = transport
	h.transportKey = key
	return transport, nil
}

func parseProxy(raw string, port int) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid proxy %q: missing host", raw)
	}
	if port > 0 {
		u.Host = joinHostPort(u.Hostname(), port)
	}
	return u, nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func redirectPolicy(follow bool, maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if !follow {
			return http.ErrUseLastResponse
		}
		if maxRedirects >= 0 && len(via) > maxRedirects {
			return errTooManyRedirects
		}
		return nil
	}
}

// applyHeaders installs the user agent and raw header lines. A line with an
// empty value suppresses that header.
func applyHeaders(req *http.Request, s Settings) {
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	} else {
		req.Header["User-Agent"] = []string{""}
	}

	for _, line := range s.Headers {
		name, value, ok := SplitHeaderLine(line)
		if !ok {
			continue
		}
		key := http.CanonicalHeaderKey(name)
		switch {
		case key == "Host" && value != "":
			req.Host = value
		case value == "":
			req.Header[key] = []string{""}
		default:
			if req.Header.Get(key) == "" {
				req.Header.Del(key)
			}
			req.Header.Add(key, value)
		}
	}
}

// SplitHeaderLine splits a raw "Name: Value" line.
func SplitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx <= 0 {
		return "", "", false
	}
	name = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	return name, value, name != ""
}

// emitHeaders delivers the status line, one call per header line, and the
// terminating blank line of every response in the chain, in the order they
// were received. Without a usable recording only the final response is
// delivered, with its header lines sorted by name.
func (h *Handle) emitHeaders(resp *http.Response, recorded [][]byte) error {
	if h.header == nil {
		return nil
	}
	if lines := wireHeaderLines(resp, recorded); lines != nil {
		return h.emitHeaderLines(lines)
	}

	lines := make([]string, 0, len(resp.Header)+2)
	lines = append(lines, fmt.Sprintf("%s %s\r\n", resp.Proto, resp.Status))

	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range resp.Header[k] {
			lines = append(lines, k+": "+v+"\r\n")
		}
	}
	lines = append(lines, "\r\n")

	return h.emitHeaderLines(lines)
}

func (h *Handle) emitHeaderLines(lines []string) error {
	if h.header == nil {
		return nil
	}
	for _, line := range lines {
		if h.header([]byte(line)) != len(line) {
			return errWriteCallback
		}
	}
	return nil
}

func (h *Handle) pumpBody(r io.Reader, chunk int) error {
	buf := make([]byte, chunk)
	for {
		n, err := r.Read(buf)
		if n > 0 && h.write != nil {
			if h.write(buf[:n]) != n {
				return errWriteCallback
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// pullReader adapts a ReadFunc to io.Reader, remembering the first callback
// error so it can be classified after net/http wraps it.
type pullReader struct {
	read  ReadFunc
	chunk int
	err   error
	sent  int64
}

func (r *pullReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.chunk > 0 && len(p) > r.chunk {
		p = p[:r.chunk]
	}

	n, err := r.read(p)
	if err != nil {
		r.err = err
		return 0, err
	}
	if n < 0 || n > len(p) {
		r.err = fmt.Errorf("read callback returned %d for a %d byte buffer", n, len(p))
		return 0, r.err
	}
	if n == 0 {
		return 0, io.EOF
	}
	r.sent += int64(n)
	return n, nil
}
