package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
)

// Kind classifies infrastructure failures
type Kind string

const (
	// KindConnection covers DNS, refused and reset connections
	KindConnection Kind = "connection"
	// KindTimeout is returned when the request deadline elapsed
	KindTimeout Kind = "timeout"
	// KindTLS is returned when the handshake or certificate verification failed
	KindTLS Kind = "tls"
	// KindCancelled is returned when the caller cancelled the context
	KindCancelled Kind = "cancelled"
)

// TransportError is returned when no HTTP response was received.
// A non-2xx response is never a TransportError.
type TransportError struct {
	Kind   Kind
	Method string
	URL    string
	Err    error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s error: %v", e.Method, e.URL, e.Kind, e.Err)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err carries a TransportError of any kind
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsTimeout reports whether err is a transport timeout
func IsTimeout(err error) bool {
	return kindOf(err) == KindTimeout
}

// IsTLS reports whether err is a TLS failure
func IsTLS(err error) bool {
	return kindOf(err) == KindTLS
}

func kindOf(err error) Kind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// classify maps a client error to a Kind. ctxErr is the request context's error, if any.
func classify(err, ctxErr error) Kind {
	if errors.Is(ctxErr, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(ctxErr, context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		certInvalid      x509.CertificateInvalidError
		hostname         x509.HostnameError
		verification     *tls.CertificateVerificationError
		recordHeader     tls.RecordHeaderError
	)
	switch {
	case errors.As(err, &unknownAuthority),
		errors.As(err, &certInvalid),
		errors.As(err, &hostname),
		errors.As(err, &verification),
		errors.As(err, &recordHeader):
		return KindTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindConnection
}
