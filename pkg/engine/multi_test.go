package engine

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xfer/pkg/logger"
)

func newTestMulti(opts ...MultiOption) *MultiHandle {
	return NewMultiHandle(append([]MultiOption{WithMultiLogger(logger.Discard())}, opts...)...)
}

func TestMultiHandle_AddTwice(t *testing.T) {
	m := newTestMulti()
	other := newTestMulti()
	h := newTestHandle(t)

	assert.Equal(t, MultiOK, m.Add(h))
	assert.Equal(t, MultiAddedAlready, m.Add(h))
	assert.Equal(t, MultiAddedAlready, other.Add(h))
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 0, other.Len())
}

func TestMultiHandle_RemoveUnknownHandleReportsOK(t *testing.T) {
	m := newTestMulti()
	other := newTestMulti()
	h := newTestHandle(t)

	assert.Equal(t, MultiOK, m.Remove(h))

	require.Equal(t, MultiOK, other.Add(h))
	assert.Equal(t, MultiOK, m.Remove(h))
	assert.Equal(t, 1, other.Len(), "removal through the wrong multi handle must not detach")

	assert.Equal(t, MultiOK, other.Remove(h))
	assert.Equal(t, 0, other.Len())
	assert.Equal(t, MultiOK, m.Add(h))
}

func TestMultiHandle_PerformRunsEveryHandle(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, r.URL.Path)
	}))
	defer srv.Close()

	m := newTestMulti(WithMaxConcurrency(2))
	paths := []string{"/a", "/b", "/c", "/d"}
	bodies := make(map[*Handle]*bytes.Buffer, len(paths))
	want := make(map[*Handle]string, len(paths))
	for _, p := range paths {
		h := newTestHandle(t)
		_, body := collect(h)
		require.NoError(t, h.SetOpt(OptURL, srv.URL+p))
		require.Equal(t, MultiOK, m.Add(h))
		bodies[h] = body
		want[h] = p
	}

	running, code := m.Perform(context.Background())
	require.Equal(t, MultiOK, code)
	assert.Zero(t, running)
	assert.Equal(t, int32(len(paths)), hits.Load())

	seen := 0
	for {
		msg, ok := m.InfoRead()
		if !ok {
			break
		}
		seen++
		require.Contains(t, want, msg.Handle)
		assert.Equal(t, OK, msg.Result)
		assert.Equal(t, 200, msg.Handle.ResponseCode())
		assert.Equal(t, want[msg.Handle], bodies[msg.Handle].String())
	}
	assert.Equal(t, len(paths), seen)

	_, code = m.Perform(context.Background())
	require.Equal(t, MultiOK, code)
	assert.Equal(t, int32(len(paths)), hits.Load(), "completed handles are not re-run")
	_, ok := m.InfoRead()
	assert.False(t, ok)
}

func TestMultiHandle_ReaddRunsAgain(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	m := newTestMulti()
	h := newTestHandle(t)
	require.NoError(t, h.SetOpt(OptURL, srv.URL))
	require.Equal(t, MultiOK, m.Add(h))

	_, _ = m.Perform(context.Background())
	require.Equal(t, MultiOK, m.Remove(h))
	require.Equal(t, MultiOK, m.Add(h))
	_, _ = m.Perform(context.Background())

	assert.Equal(t, int32(2), hits.Load())
}

func TestMultiHandle_RemoveDropsPendingMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	m := newTestMulti()
	h := newTestHandle(t)
	require.NoError(t, h.SetOpt(OptURL, srv.URL))
	require.Equal(t, MultiOK, m.Add(h))
	_, _ = m.Perform(context.Background())

	require.Equal(t, MultiOK, m.Remove(h))
	_, ok := m.InfoRead()
	assert.False(t, ok)
}

func TestMultiHandle_ReportsFailuresPerHandle(t *testing.T) {
	m := newTestMulti()
	h := newTestHandle(t)
	require.NoError(t, h.SetOpt(OptURL, "gopher://example.com/"))
	require.Equal(t, MultiOK, m.Add(h))

	_, code := m.Perform(context.Background())
	require.Equal(t, MultiOK, code)

	msg, ok := m.InfoRead()
	require.True(t, ok)
	assert.Same(t, h, msg.Handle)
	assert.Equal(t, UnsupportedProtocol, msg.Result)
}

func TestHandle_PerformWhileInMulti(t *testing.T) {
	m := newTestMulti()
	h := newTestHandle(t)
	require.NoError(t, h.SetOpt(OptURL, "http://127.0.0.1:1/"))
	require.Equal(t, MultiOK, m.Add(h))

	assert.Equal(t, FailedInit, h.Perform(context.Background()))
	assert.NotEmpty(t, h.ErrorString())
}

func TestHandle_CleanupDetachesFromMulti(t *testing.T) {
	m := newTestMulti()
	h := NewHandle(WithLogger(logger.Discard()))
	require.Equal(t, MultiOK, m.Add(h))

	h.Cleanup()
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, MultiBadEasyHandle, m.Add(h))
}

func TestMultiHandle_Cleanup(t *testing.T) {
	m := newTestMulti()
	h := newTestHandle(t)
	require.Equal(t, MultiOK, m.Add(h))

	assert.Equal(t, MultiOK, m.Cleanup())
	assert.Equal(t, MultiBadHandle, m.Cleanup())
	assert.Equal(t, MultiBadHandle, m.Add(h))

	_, code := m.Perform(context.Background())
	assert.Equal(t, MultiBadHandle, code)

	other := newTestMulti()
	assert.Equal(t, MultiOK, other.Add(h), "cleanup releases its handles")
}
