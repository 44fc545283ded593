package transfer

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5"

	"xfer/pkg/logger"
)

func newTestEasy(t *testing.T, opts ...EasyOption) *Easy {
	t.Helper()
	e := NewEasy(append([]EasyOption{WithLogger(logger.Discard())}, opts...)...)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newTestMulti(t *testing.T, opts ...MultiOption) *Multi {
	t.Helper()
	m := NewMulti(append([]MultiOption{WithMultiLogger(logger.Discard())}, opts...)...)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

type request struct {
	method        string
	contentLength int64
	body          []byte
}

// echoServer answers every request with its own body and remembers what it
// received.
type echoServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []request
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	s := &echoServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, request{method: r.Method, contentLength: r.ContentLength, body: body})
		s.mu.Unlock()
		w.Header().Set("X-Echo", "1")
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *echoServer) received() []request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]request(nil), s.requests...)
}

// countingFS records how often files are opened and closed.
type countingFS struct {
	billy.Filesystem

	mu     sync.Mutex
	opened int
	closed int
}

func (fs *countingFS) Open(name string) (billy.File, error) {
	f, err := fs.Filesystem.Open(name)
	if err != nil {
		return nil, err
	}
	fs.mu.Lock()
	fs.opened++
	fs.mu.Unlock()
	return &countingFile{File: f, fs: fs}, nil
}

func (fs *countingFS) counts() (opened, closed int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.opened, fs.closed
}

type countingFile struct {
	billy.File
	fs *countingFS
}

func (f *countingFile) Close() error {
	f.fs.mu.Lock()
	f.fs.closed++
	f.fs.mu.Unlock()
	return f.File.Close()
}
