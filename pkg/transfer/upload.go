package transfer

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"
)

// SourceKind tags the active upload source. The tag also fixes ownership:
// copied buffers and path-opened files belong to the session, referenced
// buffers and caller handles do not.
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceBufferCopy
	SourceBufferRef
	SourceFileHandle
	SourceFilePath
)

func (k SourceKind) String() string {
	switch k {
	case SourceNone:
		return "none"
	case SourceBufferCopy:
		return "buffer-copy"
	case SourceBufferRef:
		return "buffer-ref"
	case SourceFileHandle:
		return "file-handle"
	case SourceFilePath:
		return "file-path"
	default:
		return "unknown"
	}
}

func (k SourceKind) owned() bool {
	return k == SourceBufferCopy || k == SourceFilePath
}

// maxEmptyReads bounds consecutive zero-byte reads from a caller file.
const maxEmptyReads = 100

// errSourceOpen marks a path source that could not be opened at Perform.
var errSourceOpen = errors.New("open upload source")

type uploadSource struct {
	kind SourceKind

	data   []byte
	offset int

	file  File
	path  string
	size  int64 // -1 when unknown
	start int64 // seek origin of a caller handle
	sent  int64
}

func bufferSource(data []byte, flag ContentFlag) uploadSource {
	if flag == ContentCopy {
		return uploadSource{kind: SourceBufferCopy, data: append([]byte(nil), data...), size: int64(len(data))}
	}
	return uploadSource{kind: SourceBufferRef, data: data, size: int64(len(data))}
}

func handleSource(f File, size int64) uploadSource {
	src := uploadSource{kind: SourceFileHandle, file: f, size: size}
	if seeker, ok := f.(io.Seeker); ok {
		if pos, err := seeker.Seek(0, io.SeekCurrent); err == nil {
			src.start = pos
		}
	}
	return src
}

func pathSource(path string) uploadSource {
	return uploadSource{kind: SourceFilePath, path: path, size: -1}
}

func (u *uploadSource) active() bool {
	return u.kind != SourceNone
}

// prepare readies the source for a transfer and returns its length, -1 when
// it cannot be known up front. Buffers and seekable files start over from
// their beginning so a repeated Perform sends the same body.
func (u *uploadSource) prepare(fs billy.Filesystem) (int64, error) {
	u.sent = 0
	switch u.kind {
	case SourceBufferCopy, SourceBufferRef:
		u.offset = 0
		return int64(len(u.data)), nil
	case SourceFilePath:
		if u.file == nil {
			f, err := fs.Open(u.path)
			if err != nil {
				return 0, fmt.Errorf("%w %s: %w", errSourceOpen, u.path, err)
			}
			u.file = f
			u.start = 0
			u.size = -1
		}
		return u.rewind()
	case SourceFileHandle:
		return u.rewind()
	default:
		return 0, nil
	}
}

func (u *uploadSource) rewind() (int64, error) {
	seeker, ok := u.file.(io.Seeker)
	if !ok {
		return u.size, nil
	}
	if u.size < 0 {
		end, err := seeker.Seek(0, io.SeekEnd)
		if err != nil {
			return -1, fmt.Errorf("size upload source: %w", err)
		}
		u.size = end - u.start
	}
	if _, err := seeker.Seek(u.start, io.SeekStart); err != nil {
		return -1, fmt.Errorf("rewind upload source: %w", err)
	}
	return u.size, nil
}

// read fills p with up to len(p) bytes. A zero count with a nil error is the
// end of the body.
func (u *uploadSource) read(p []byte) (int, error) {
	switch u.kind {
	case SourceBufferCopy, SourceBufferRef:
		n := copy(p, u.data[u.offset:])
		u.offset += n
		u.sent += int64(n)
		return n, nil
	case SourceFileHandle, SourceFilePath:
		if u.file == nil {
			return 0, errSourceOpen
		}
		if u.size >= 0 {
			remaining := u.size - u.sent
			if remaining <= 0 {
				return 0, nil
			}
			if int64(len(p)) > remaining {
				p = p[:remaining]
			}
		}
		for range maxEmptyReads {
			n, err := u.file.Read(p)
			u.sent += int64(n)
			if n > 0 {
				return n, nil
			}
			if errors.Is(err, io.EOF) {
				return 0, nil
			}
			if err != nil {
				return 0, err
			}
		}
		return 0, io.ErrNoProgress
	default:
		return 0, nil
	}
}

// close releases what the session owns. Borrowed buffers and handles are
// left to the caller.
func (u *uploadSource) close() error {
	var err error
	if u.kind.owned() && u.file != nil {
		if c, ok := u.file.(io.Closer); ok {
			err = c.Close()
		}
	}
	*u = uploadSource{}
	return err
}
