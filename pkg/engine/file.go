package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// performFile serves file:// transfers from the handle filesystem. Downloads
// report size and modification time as header lines; uploads replace the
// target with the bytes pulled from the read callback.
func (h *Handle) performFile(ctx context.Context, target *url.URL) (Code, error) {
	if host := target.Hostname(); host != "" && !strings.EqualFold(host, "localhost") {
		return URLMalformat, fmt.Errorf("file URL host %q is not local", host)
	}
	path := target.Path
	if path == "" {
		return URLMalformat, fmt.Errorf("file URL %q has no path", target.Redacted())
	}

	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	if h.settings.sendsBody() {
		return h.uploadFile(ctx, path)
	}
	return h.downloadFile(ctx, path)
}

func (h *Handle) downloadFile(ctx context.Context, path string) (Code, error) {
	info, err := h.fs.Stat(path)
	if err != nil {
		return FileCouldntReadFile, err
	}
	if info.IsDir() {
		return FileCouldntReadFile, fmt.Errorf("%s is a directory", path)
	}

	lines := []string{
		fmt.Sprintf("Content-Length: %d\r\n", info.Size()),
		"Accept-ranges: bytes\r\n",
		fmt.Sprintf("Last-Modified: %s\r\n", info.ModTime().UTC().Format(http.TimeFormat)),
		"\r\n",
	}
	if err := h.emitHeaderLines(lines); err != nil {
		return WriteError, err
	}

	if h.settings.NoBody {
		return OK, nil
	}

	f, err := h.fs.Open(path)
	if err != nil {
		return FileCouldntReadFile, err
	}
	defer f.Close()

	if err := h.pumpBody(ctxReader{ctx: ctx, r: f}, h.settings.BufferSize); err != nil {
		return h.classify(ctx, err, nil), err
	}
	return OK, nil
}

func (h *Handle) uploadFile(ctx context.Context, path string) (Code, error) {
	if h.read == nil {
		return ReadError, fmt.Errorf("upload to %s without a read callback", path)
	}

	f, err := h.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return WriteError, err
	}
	defer f.Close()

	upload := &pullReader{read: h.read, chunk: h.settings.BufferSize}
	if _, err := io.Copy(f, ctxReader{ctx: ctx, r: upload}); err != nil {
		if upload.err != nil {
			return h.classify(ctx, upload.err, upload), upload.err
		}
		if ctx.Err() != nil {
			return h.classify(ctx, ctx.Err(), nil), ctx.Err()
		}
		return WriteError, err
	}
	return OK, nil
}

// ctxReader stops a local copy once the transfer context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
