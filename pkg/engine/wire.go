package engine

import (
	"bytes"
	"net"
	"net/http"
	"strconv"
	"sync"
)

// maxWireHeader caps one recorded header block; larger blocks are dropped.
const maxWireHeader = 1 << 20

var httpPrefix = []byte("HTTP/")

// headerRecorder keeps response header blocks as they were read off the
// connection so header lines reach the callback in arrival order. It
// watches every connection of one handle; a handle runs one request at a
// time, so the next bytes read after a request write begin its response.
type headerRecorder struct {
	mu        sync.Mutex
	capturing bool
	cur       []byte
	blocks    [][]byte
}

func newHeaderRecorder() *headerRecorder {
	return &headerRecorder{capturing: true}
}

// reset discards everything recorded and waits for a response.
func (r *headerRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capturing = true
	r.cur = nil
	r.blocks = nil
}

// take returns the blocks recorded since the last reset.
func (r *headerRecorder) take() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	blocks := r.blocks
	r.blocks = nil
	return blocks
}

// wrote notes that a request went out; a finished response is followed by
// a new one only after the next write.
func (r *headerRecorder) wrote() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.capturing {
		r.capturing = true
		r.cur = nil
	}
}

func (r *headerRecorder) observe(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(p) > 0 && r.capturing {
		from := max(len(r.cur)-3, 0)
		r.cur = append(r.cur, p...)

		if !looksLikeStatus(r.cur) || len(r.cur) > maxWireHeader {
			r.cur = nil
			r.capturing = false
			return
		}

		end := headerBlockEnd(r.cur, from)
		if end < 0 {
			return
		}
		block, rest := r.cur[:end], r.cur[end:]
		r.blocks = append(r.blocks, block)
		r.cur = nil

		// Interim responses are followed directly by the next status line.
		code := blockStatus(block)
		if code < 100 || code >= 200 || code == http.StatusSwitchingProtocols {
			r.capturing = false
			return
		}
		p = append([]byte(nil), rest...)
	}
}

func looksLikeStatus(b []byte) bool {
	if len(b) < len(httpPrefix) {
		return bytes.HasPrefix(httpPrefix, b)
	}
	return bytes.HasPrefix(b, httpPrefix)
}

// headerBlockEnd returns the offset just past the blank line ending the
// block, searching from offset from, or -1. Bare LF line endings count.
func headerBlockEnd(b []byte, from int) int {
	for i := from; i < len(b); i++ {
		if b[i] != '\n' {
			continue
		}
		switch {
		case i+1 < len(b) && b[i+1] == '\n':
			return i + 2
		case i+2 < len(b) && b[i+1] == '\r' && b[i+2] == '\n':
			return i + 3
		}
	}
	return -1
}

// blockStatus parses the status code from the first line of a block.
func blockStatus(block []byte) int {
	line, _, _ := bytes.Cut(block, []byte("\n"))
	fields := bytes.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	code, err := strconv.Atoi(string(fields[1]))
	if err != nil {
		return 0
	}
	return code
}

// blockLines splits a block into lines, each keeping its line ending.
func blockLines(block []byte) []string {
	var lines []string
	for len(block) > 0 {
		i := bytes.IndexByte(block, '\n')
		if i < 0 {
			lines = append(lines, string(block))
			break
		}
		lines = append(lines, string(block[:i+1]))
		block = block[i+1:]
	}
	return lines
}

// wireHeaderLines returns the recorded lines for resp, including interim
// and redirect responses before it, or nil when the last recorded block
// does not describe resp.
func wireHeaderLines(resp *http.Response, blocks [][]byte) []string {
	if len(blocks) == 0 {
		return nil
	}
	last := blocks[len(blocks)-1]
	if blockStatus(last) != resp.StatusCode {
		return nil
	}

	names := make(map[string]bool)
	for _, line := range blockLines(last)[1:] {
		if name, _, ok := SplitHeaderLine(line); ok {
			names[http.CanonicalHeaderKey(name)] = true
		}
	}
	for key := range resp.Header {
		if !names[key] {
			return nil
		}
	}

	var lines []string
	for _, block := range blocks {
		lines = append(lines, blockLines(block)...)
	}
	return lines
}

// recordingConn feeds everything read from a connection to a recorder.
type recordingConn struct {
	net.Conn
	rec *headerRecorder
}

func (c *recordingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.rec.observe(p[:n])
	}
	return n, err
}

func (c *recordingConn) Write(p []byte) (int, error) {
	c.rec.wrote()
	return c.Conn.Write(p)
}
