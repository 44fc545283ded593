package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawHeaders = "HTTP/1.1 103 Early Hints\r\n" +
	"Link: </style.css>; rel=preload\r\n" +
	"\r\n" +
	"HTTP/1.1 200 OK\r\n" +
	"Zz-First: 1\r\n" +
	"Aa-Second: 2\r\n" +
	"Content-Length: 2\r\n" +
	"Connection: close\r\n" +
	"\r\n"

// rawResponder writes a fixed response straight to the connection, keeping
// header lines in the order given.
func rawResponder(response string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = buf.WriteString(response)
		_ = buf.Flush()
	}
}

func TestPerform_HeadersInArrivalOrder(t *testing.T) {
	tests := []struct {
		name  string
		start func(http.Handler) *httptest.Server
	}{
		{"plain", httptest.NewServer},
		{"tls", httptest.NewTLSServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := tt.start(rawResponder(rawHeaders + "ok"))
			defer srv.Close()

			h := newTestHandle(t)
			header, body := collect(h)
			require.NoError(t, h.SetOpt(OptURL, srv.URL))
			require.NoError(t, h.SetOpt(OptSSLVerifyPeer, false))

			require.Equal(t, OK, h.Perform(context.Background()), h.ErrorString())
			assert.Equal(t, rawHeaders, header.String())
			assert.Equal(t, "ok", body.String())
		})
	}
}

func TestPerform_FollowedRedirectDeliversEveryHeaderBlock(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusFound)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "arrived")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := newTestHandle(t)
	header, _ := collect(h)
	require.NoError(t, h.SetOpt(OptURL, srv.URL+"/start"))
	require.NoError(t, h.SetOpt(OptFollowLocation, true))

	require.Equal(t, OK, h.Perform(context.Background()))
	got := header.String()
	redirect := strings.Index(got, "HTTP/1.1 302 Found\r\n")
	final := strings.Index(got, "HTTP/1.1 200 OK\r\n")
	require.GreaterOrEqual(t, redirect, 0, got)
	assert.Greater(t, final, redirect)
	assert.Contains(t, got, "Location: /end\r\n")
	assert.True(t, strings.HasSuffix(got, "\r\n\r\n"))

	header.Reset()
	require.Equal(t, OK, h.Perform(context.Background()))
	assert.Equal(t, 1, strings.Count(header.String(), "HTTP/1.1 302 Found\r\n"), "a reused connection records only the new chain")
}

func TestHeaderRecorder_SplitReads(t *testing.T) {
	rec := newHeaderRecorder()
	for _, chunk := range []string{"HTTP/1.1 200 OK\r", "\nA: 1\r\n\r", "\nbody HTTP/1.1 500 x\r\n\r\n"} {
		rec.observe([]byte(chunk))
	}
	blocks := rec.take()
	require.Len(t, blocks, 1)
	assert.Equal(t, "HTTP/1.1 200 OK\r\nA: 1\r\n\r\n", string(blocks[0]))

	rec.wrote()
	rec.observe([]byte("\x16\x03\x01 not a status line\r\n\r\n"))
	assert.Empty(t, rec.take())
}

func TestWireHeaderLines_RejectsMismatchedRecording(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Header: http.Header{"B": {"2"}}}

	assert.Nil(t, wireHeaderLines(resp, nil))
	assert.Nil(t, wireHeaderLines(resp, [][]byte{[]byte("HTTP/1.1 404 Not Found\r\nB: 2\r\n\r\n")}))
	assert.Nil(t, wireHeaderLines(resp, [][]byte{[]byte("HTTP/1.1 200 OK\r\nA: 1\r\n\r\n")}))
	assert.Equal(t,
		[]string{"HTTP/1.1 200 OK\r\n", "B: 2\r\n", "\r\n"},
		wireHeaderLines(resp, [][]byte{[]byte("HTTP/1.1 200 OK\r\nB: 2\r\n\r\n")}))
}
