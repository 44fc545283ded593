package transfer

import (
	"io"

	"xfer/pkg/engine"
)

// Status is the terminal classification of the last Perform.
type Status int

const (
	StatusNone Status = iota
	StatusCompleted
	StatusError
	StatusTimedOut
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "not_started"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	case StatusTimedOut:
		return "timed_out"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// statusFromCode folds an engine result into the four terminal states.
func statusFromCode(code engine.Code) Status {
	switch code {
	case engine.OK:
		return StatusCompleted
	case engine.OperationTimedOut:
		return StatusTimedOut
	case engine.AbortedByCallback:
		return StatusAborted
	default:
		return StatusError
	}
}

// Protocol selects the scheme prefix used by SetProtocolURL.
type Protocol int

const (
	ProtocolNone Protocol = iota
	ProtocolFTP
	ProtocolFile
	ProtocolHTTP
	ProtocolHTTPS
)

// Prefix returns the scheme prefix, empty for ProtocolNone.
func (p Protocol) Prefix() string {
	switch p {
	case ProtocolFTP:
		return "ftp://"
	case ProtocolFile:
		return "file://"
	case ProtocolHTTP:
		return "http://"
	case ProtocolHTTPS:
		return "https://"
	default:
		return ""
	}
}

// HTTPMethod is one of the methods with first-class engine support.
type HTTPMethod int

const (
	MethodGet HTTPMethod = iota
	MethodPut
	MethodPost
)

func (m HTTPMethod) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPut:
		return "PUT"
	case MethodPost:
		return "POST"
	default:
		return ""
	}
}

// ContentFlag tells a buffer setter whether to keep a private copy of the
// bytes or to read the caller's slice in place.
type ContentFlag int

const (
	ContentCopy ContentFlag = iota
	ContentByRef
)

// Field is a header name/value pair.
type Field struct {
	Name  string
	Value string
}

// File is an already-open upload source owned by the caller. Files that
// also implement io.Seeker can be sized and are rewound before every Perform.
type File interface {
	io.Reader
}
