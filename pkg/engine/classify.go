package engine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"io/fs"
	"net"
	"strings"
)

// classify maps a transfer failure onto a result code. Callback failures
// recorded by the engine take precedence over whatever net/http wrapped
// around them, then the transfer context decides between a timeout and an
// abort.
func (h *Handle) classify(ctx context.Context, err error, upload *pullReader) Code {
	if err == nil {
		return OK
	}

	if upload != nil && upload.err != nil {
		if errors.Is(upload.err, ErrAbortTransfer) {
			return AbortedByCallback
		}
		return ReadError
	}

	switch {
	case errors.Is(err, ErrAbortTransfer):
		return AbortedByCallback
	case errors.Is(err, errWriteCallback):
		return WriteError
	case errors.Is(err, errTooManyRedirects):
		return TooManyRedirects
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return OperationTimedOut
		}
		return AbortedByCallback
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return OperationTimedOut
	case errors.Is(err, context.Canceled):
		return AbortedByCallback
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OperationTimedOut
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if h.isProxyHost(dnsErr.Name) {
			return CouldntResolveProxy
		}
		return CouldntResolveHost
	}

	if isCertificateError(err) {
		return PeerFailedVerification
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return SSLConnectError
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Op == "proxyconnect") {
		return CouldntConnect
	}

	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return FileCouldntReadFile
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if h.responseCode == 0 {
			return GotNothing
		}
		return RecvError
	}

	if h.responseCode == 0 && upload != nil {
		return SendError
	}
	return RecvError
}

func isCertificateError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}

func (h *Handle) isProxyHost(name string) bool {
	if h.settings.Proxy == "" || name == "" {
		return false
	}
	proxy, err := parseProxy(h.settings.Proxy, 0)
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSuffix(name, "."), proxy.Hostname())
}
