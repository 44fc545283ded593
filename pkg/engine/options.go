package engine

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Option identifies a setting accepted by Handle.SetOpt.
type Option int

const (
	OptURL            Option = iota + 1 // string
	OptPort                             // int, 0 uses the URL port
	OptCustomRequest                    // string, "" clears
	OptHTTPGet                          // bool
	OptPost                             // bool
	OptPut                              // bool
	OptUpload                           // bool
	OptNoBody                           // bool
	OptUserAgent                        // string
	OptTimeoutMs                        // int, 0 disables
	OptMaxRedirs                        // int, -1 unlimited
	OptFollowLocation                   // bool
	OptTCPNoDelay                       // bool
	OptSSLVerifyPeer                    // bool
	OptProxy                            // string
	OptProxyPort                        // int
	OptProxyUsername                    // string
	OptProxyPassword                    // string
	OptBufferSize                       // int
	OptInFileSize                       // int64, -1 unknown
	OptHTTPHeader                       // []string of "Name: Value"
	OptReadFunction                     // ReadFunc
	OptWriteFunction                    // WriteFunc
	OptHeaderFunction                   // HeaderFunc
)

var optionNames = map[Option]string{
	OptURL:            "URL",
	OptPort:           "PORT",
	OptCustomRequest:  "CUSTOMREQUEST",
	OptHTTPGet:        "HTTPGET",
	OptPost:           "POST",
	OptPut:            "PUT",
	OptUpload:         "UPLOAD",
	OptNoBody:         "NOBODY",
	OptUserAgent:      "USERAGENT",
	OptTimeoutMs:      "TIMEOUT_MS",
	OptMaxRedirs:      "MAXREDIRS",
	OptFollowLocation: "FOLLOWLOCATION",
	OptTCPNoDelay:     "TCP_NODELAY",
	OptSSLVerifyPeer:  "SSL_VERIFYPEER",
	OptProxy:          "PROXY",
	OptProxyPort:      "PROXYPORT",
	OptProxyUsername:  "PROXYUSERNAME",
	OptProxyPassword:  "PROXYPASSWORD",
	OptBufferSize:     "BUFFERSIZE",
	OptInFileSize:     "INFILESIZE",
	OptHTTPHeader:     "HTTPHEADER",
	OptReadFunction:   "READFUNCTION",
	OptWriteFunction:  "WRITEFUNCTION",
	OptHeaderFunction: "HEADERFUNCTION",
}

func (o Option) String() string {
	if name, ok := optionNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OPTION(%d)", int(o))
}

const (
	MinBufferSize       = 1024
	MaxBufferSize       = 10 * 1024 * 1024
	DefaultBufferSize   = 16 * 1024
	DefaultMaxRedirects = 30
)

// Request is the method family selected through OptHTTPGet, OptPost or OptPut.
type Request int

const (
	RequestDefault Request = iota
	RequestGet
	RequestPost
	RequestPut
)

// ReadFunc fills p with upload bytes and returns how many were written.
// Returning 0 with a nil error signals end of data.
type ReadFunc func(p []byte) (int, error)

// WriteFunc consumes response body bytes. Returning less than len(p)
// fails the transfer with WriteError.
type WriteFunc func(p []byte) int

// HeaderFunc consumes one response header line, including its CRLF.
type HeaderFunc func(p []byte) int

// Settings is a snapshot of every option applied to a handle.
type Settings struct {
	URL            string
	Port           int
	CustomRequest  string
	Request        Request
	Upload         bool
	NoBody         bool
	UserAgent      string
	Timeout        time.Duration
	MaxRedirects   int
	FollowLocation bool
	TCPNoDelay     bool
	VerifyPeer     bool
	Proxy          string
	ProxyPort      int
	ProxyUsername  string
	ProxyPassword  string
	BufferSize     int
	InFileSize     int64
	Headers        []string
}

// DefaultSettings returns the values a handle starts with and returns to on Reset.
func DefaultSettings() Settings {
	return Settings{
		MaxRedirects: DefaultMaxRedirects,
		TCPNoDelay:   true,
		VerifyPeer:   true,
		BufferSize:   DefaultBufferSize,
		InFileSize:   -1,
	}
}

func (s Settings) clone() Settings {
	if s.Headers != nil {
		s.Headers = append([]string(nil), s.Headers...)
	}
	return s
}

// Method resolves the request method the handle will use.
func (s Settings) Method() string {
	switch {
	case s.CustomRequest != "":
		return s.CustomRequest
	case s.Request == RequestPost:
		return "POST"
	case s.Request == RequestPut, s.Upload:
		return "PUT"
	case s.NoBody:
		return "HEAD"
	default:
		return "GET"
	}
}

func (s Settings) sendsBody() bool {
	return s.Upload || s.Request == RequestPost || s.Request == RequestPut
}

// SetOpt validates value and applies it. A rejected value leaves the
// previous setting untouched.
func (h *Handle) SetOpt(opt Option, value any) error {
	if h.closed {
		return h.optError(opt, BadFunctionArgument, errHandleClosed)
	}

	s := &h.settings
	switch opt {
	case OptURL:
		v, ok := value.(string)
		if !ok {
			return h.optError(opt, BadFunctionArgument, typeError(value, "string"))
		}
		if v != "" {
			if _, err := url.Parse(v); err != nil {
				return h.optError(opt, URLMalformat, err)
			}
		}
		s.URL = v
	case OptPort, OptProxyPort:
		v, ok := asInt(value)
		if !ok {
			return h.optError(opt, BadFunctionArgument, typeError(value, "int"))
		}
		if v < 0 || v > 65535 {
			return h.optError(opt, BadFunctionArgument, fmt.Errorf("port %d out of range", v))
		}
		if opt == OptPort {
			s.Port = int(v)
		} else {
			s.ProxyPort = int(v)
		}
	case OptCustomRequest:
		v, ok := value.(string)
		if !ok {
			return h.optError(opt, BadFunctionArgument, typeError(value, "string"))
		}
		if strings.ContainsAny(v, " \t\r\n") {
			return h.optError(opt, BadFunctionArgument, fmt.Errorf("invalid method %q", v))
		}
		s.CustomRequest = v
	case OptHTTPGet, OptPost, OptPut, OptUpload, OptNoBody, OptFollowLocation, OptTCPNoDelay, OptSSLVerifyPeer:
		v, ok := value.(bool)
		if !ok {
			return h.optError(opt, BadFunctionArgument, typeError(value, "bool"))
		}
		h.applyBool(opt, v)
	case OptUserAgent, OptProxy, OptProxyUsername, OptProxyPassword:
		v, ok := value.(string)
		if !ok {
			return h.optError(opt, BadFunctionArgument, typeError(value, "string"))
		}
		switch opt {
		case OptUserAgent:
			s.UserAgent = v
		case OptProxy:
			if v != "" {
				if _, err := parseProxy(v, 0); err != nil {
					return h.optError(opt, BadFunctionArgument, err)
				}
			}
			s.Proxy = v
		case OptProxyUsername:
			s.ProxyUsername = v
		default:
			s.ProxyPassword = v
		}
	case OptTimeoutMs:
		v, ok := asInt(value)
		if !ok {
			return h.optError(opt, BadFunctionArgument, typeError(value, "int"))
		}
		if v < 0 {
			return h.optError(opt, BadFunctionArgument, fmt.Errorf("negative timeout %d", v))
		}
		s.Timeout = time.Duration(v) * time.Millisecond
	case OptMaxRedirs:
		v, ok := asInt(value)
		if !ok {
			return h.optError(opt, BadFunctionArgument, typeError(value, "int"))
		}
		if v < -1 {
			return h.optError(opt, BadFunctionArgument, fmt.Errorf("max redirects %d below -1", v))
		}
		s.MaxRedirects = int(v)
	case OptBufferSize:
		v, ok := asInt(value)
		if !ok {
			return h.optError(opt, BadFunctionArgument, typeError(value, "int"))
		}
		if v < MinBufferSize || v > MaxBufferSize {
			return h.optError(opt, BadFunctionArgument,
				fmt.Errorf("buffer size %d outside [%d, %d]", v, MinBufferSize, MaxBufferSize))
		}
		s.BufferSize = int(v)
	case OptInFileSize:
		v, ok := asInt(value)
		if !ok {
			return h.optError(opt, BadFunctionArgument, typeError(value, "int64"))
		}
		if v < -1 {
			return h.optError(opt, BadFunctionArgument, fmt.Errorf("size %d below -1", v))
		}
		s.InFileSize = v
	case OptHTTPHeader:
		v, ok := value.([]string)
		if !ok && value != nil {
			return h.optError(opt, BadFunctionArgument, typeError(value, "[]string"))
		}
		s.Headers = append([]string(nil), v...)
	case OptReadFunction:
		switch fn := value.(type) {
		case nil:
			h.read = nil
		case ReadFunc:
			h.read = fn
		case func([]byte) (int, error):
			h.read = fn
		default:
			return h.optError(opt, BadFunctionArgument, typeError(value, "ReadFunc"))
		}
	case OptWriteFunction:
		switch fn := value.(type) {
		case nil:
			h.write = nil
		case WriteFunc:
			h.write = fn
		case func([]byte) int:
			h.write = fn
		default:
			return h.optError(opt, BadFunctionArgument, typeError(value, "WriteFunc"))
		}
	case OptHeaderFunction:
		switch fn := value.(type) {
		case nil:
			h.header = nil
		case HeaderFunc:
			h.header = fn
		case func([]byte) int:
			h.header = fn
		default:
			return h.optError(opt, BadFunctionArgument, typeError(value, "HeaderFunc"))
		}
	default:
		return h.optError(opt, UnknownOption, nil)
	}
	return nil
}

func (h *Handle) applyBool(opt Option, v bool) {
	s := &h.settings
	switch opt {
	case OptHTTPGet:
		if v {
			s.Request = RequestGet
			s.Upload = false
			s.NoBody = false
		}
	case OptPost:
		if v {
			s.Request = RequestPost
		} else if s.Request == RequestPost {
			s.Request = RequestDefault
		}
	case OptPut:
		if v {
			s.Request = RequestPut
			s.Upload = true
		} else if s.Request == RequestPut {
			s.Request = RequestDefault
			s.Upload = false
		}
	case OptUpload:
		s.Upload = v
		if v {
			s.Request = RequestPut
		} else if s.Request == RequestPut {
			s.Request = RequestDefault
		}
	case OptNoBody:
		s.NoBody = v
	case OptFollowLocation:
		s.FollowLocation = v
	case OptTCPNoDelay:
		s.TCPNoDelay = v
	case OptSSLVerifyPeer:
		s.VerifyPeer = v
	}
}

func (h *Handle) optError(opt Option, code Code, err error) error {
	return &Error{Op: "setopt " + opt.String(), Code: code, Err: err}
}

func typeError(value any, want string) error {
	return fmt.Errorf("got %T, want %s", value, want)
}

func asInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	default:
		return 0, false
	}
}
