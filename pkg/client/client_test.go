package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xfer/pkg/config"
	"xfer/pkg/engine"
	"xfer/pkg/logger"
	"xfer/pkg/transfer"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Agent", r.UserAgent())
		w.Header().Set("X-Team", r.Header.Get("X-Team"))
		_, _ = io.Copy(w, r.Body)
	})
	mux.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "hello")
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/hello", http.StatusMovedPermanently)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, mutate func(*config.Config), opts ...Option) *Client {
	t.Helper()
	cfg := config.DefaultConfig
	cfg.Transfer.Timeout = 5 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())
	return New(&cfg, logger.Discard(), opts...)
}

func TestClient_GetAppliesConfigDefaults(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, func(cfg *config.Config) {
		cfg.Transfer.UserAgent = "xfer-test/2"
		cfg.Transfer.Headers = []string{"X-Team: transfers"}
	})

	res, err := c.Get(context.Background(), srv.URL+"/echo")
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.True(t, res.OK())
	assert.Equal(t, transfer.StatusCompleted, res.Status)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, engine.OK, res.Code)
	assert.Contains(t, res.Header, "X-Agent: xfer-test/2\r\n")
	assert.Contains(t, res.Header, "X-Team: transfers\r\n")
	assert.Contains(t, res.Header, "X-Method: GET\r\n")
}

func TestClient_HTTPErrorStatusStillCompletes(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, nil)

	res, err := c.Get(context.Background(), srv.URL+"/missing")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestClient_Head(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, nil)

	res, err := c.Head(context.Background(), srv.URL+"/hello")
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Empty(t, res.Body)
	assert.Contains(t, res.Header, "Content-Length: 5\r\n")
}

func TestClient_Post(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, nil)

	res, err := c.Post(context.Background(), srv.URL+"/echo", []byte("a=1"), WithHeader("Content-Type: application/x-www-form-urlencoded"))
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, []byte("a=1"), res.Body)
	assert.Contains(t, res.Header, "X-Method: POST\r\n")
}

func TestClient_PutFromDisk(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, nil)

	path := filepath.Join(t.TempDir(), "payload.txt")
	require.NoError(t, os.WriteFile(path, []byte("from disk"), 0o644))

	res, err := c.Put(context.Background(), srv.URL+"/echo", path)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, []byte("from disk"), res.Body)
	assert.Contains(t, res.Header, "X-Method: PUT\r\n")
}

func TestClient_PutFromFilesystem(t *testing.T) {
	srv := newTestServer(t)
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/in/data.bin", []byte("in memory"), 0o644))
	c := newTestClient(t, nil, WithFilesystem(fs))

	res, err := c.Put(context.Background(), srv.URL+"/echo", "/in/data.bin")
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, []byte("in memory"), res.Body)

	res, err = c.Put(context.Background(), srv.URL+"/echo", "/in/absent.bin")
	require.NoError(t, err)
	assert.Error(t, res.Err)
	assert.Equal(t, engine.FileCouldntReadFile, res.Code)
}

func TestClient_Download(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, nil)

	var out bytes.Buffer
	res, err := c.Download(context.Background(), srv.URL+"/hello", &out)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, "hello", out.String())
	assert.Empty(t, res.Body)
}

func TestClient_FollowLocation(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, nil)

	res, err := c.Get(context.Background(), srv.URL+"/moved")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, res.StatusCode)

	res, err = c.Get(context.Background(), srv.URL+"/moved", WithFollowLocation(true))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []byte("hello"), res.Body)
}

func TestClient_Batch(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, func(cfg *config.Config) { cfg.Multi.MaxConcurrency = 2 })

	urls := []string{srv.URL + "/hello", srv.URL + "/missing", "gopher://example.com/", srv.URL + "/echo"}
	results, err := c.Batch(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, results, len(urls))

	for i, res := range results {
		assert.Equal(t, urls[i], res.URL)
	}
	assert.Equal(t, []byte("hello"), results[0].Body)
	assert.Equal(t, http.StatusNotFound, results[1].StatusCode)
	assert.Error(t, results[2].Err)
	assert.Equal(t, engine.UnsupportedProtocol, results[2].Code)
	assert.True(t, results[3].OK())
}

func TestClient_RejectsBadRequestOptions(t *testing.T) {
	c := newTestClient(t, nil)

	_, err := c.Get(context.Background(), "http://example.com", WithHeader("not a header"))
	assert.Error(t, err)

	_, err = c.Batch(context.Background(), []string{"http://[::1"})
	assert.Error(t, err)
}

func TestClient_TimeoutResult(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, nil)
	res, err := c.Get(context.Background(), srv.URL, WithTimeout(100*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusTimedOut, res.Status)
	assert.Error(t, res.Err)
	assert.Empty(t, res.Body)
}
