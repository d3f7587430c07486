package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/client-go/rest"

	"github.com/kloia/kubevirt-api-client/internal/version"
)

// DefaultTimeout bounds every request unless overridden with WithTimeout
const DefaultTimeout = 30 * time.Second

var insecureWarning sync.Once

// TrustPolicy decides how the server certificate is verified.
// The zero value verifies against the system trust store.
type TrustPolicy struct {
	// Insecure disables certificate verification. Must be set explicitly.
	Insecure bool
	// CAFile and CAData add a CA bundle used for verification
	CAFile string
	CAData []byte
}

// Credential is an opaque bearer token plus the trust policy. It is never mutated after construction.
type Credential struct {
	Token string
	Trust TrustPolicy
}

// String redacts the token
func (c Credential) String() string {
	return fmt.Sprintf("Credential{Token: <redacted>, Insecure: %t, CAFile: %q}", c.Trust.Insecure, c.Trust.CAFile)
}

// Response is a received HTTP response of any status
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Transport performs authenticated HTTP requests
type Transport struct {
	client    *http.Client
	token     string
	userAgent string
	logger    *zap.Logger
}

// Option configures a Transport
type Option func(*options)

type options struct {
	timeout    time.Duration
	logger     *zap.Logger
	httpClient *http.Client
	userAgent  string
}

// WithTimeout sets the per-request deadline
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient replaces the HTTP client. The trust policy is not applied to it.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// New creates a Transport for the given credential
func New(cred Credential, opts ...Option) (*Transport, error) {
	o := options{
		timeout:   DefaultTimeout,
		logger:    zap.NewNop(),
		userAgent: version.UserAgent(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %v", o.timeout)
	}
	if cred.Token == "" {
		return nil, fmt.Errorf("bearer token is required")
	}

	client := o.httpClient
	if client == nil {
		tlsConfig, err := rest.TLSConfigFor(&rest.Config{
			TLSClientConfig: rest.TLSClientConfig{
				Insecure: cred.Trust.Insecure,
				CAFile:   cred.Trust.CAFile,
				CAData:   cred.Trust.CAData,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build TLS config: %w", err)
		}

		base := http.DefaultTransport.(*http.Transport).Clone()
		if tlsConfig != nil {
			base.TLSClientConfig = tlsConfig
		}
		client = &http.Client{Transport: base, Timeout: o.timeout}
	} else if client.Timeout == 0 {
		c := *client
		c.Timeout = o.timeout
		client = &c
	}

	// A logger that drops warnings must not use up the one-time warning
	if cred.Trust.Insecure && o.logger.Core().Enabled(zapcore.WarnLevel) {
		insecureWarning.Do(func() {
			o.logger.Warn("TLS certificate verification is disabled; connections are open to interception")
		})
	}

	return &Transport{
		client:    client,
		token:     cred.Token,
		userAgent: o.userAgent,
		logger:    o.logger,
	}, nil
}

// Send issues a request and returns the response regardless of status code.
// Only failures to obtain a response are returned as *TransportError.
func (t *Transport) Send(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Accept", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	requestID := uuid.NewString()
	start := time.Now()
	t.logger.Debug("Sending request",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("url", url))

	resp, err := t.client.Do(req)
	if err != nil {
		kind := classify(err, ctx.Err())
		t.logger.Debug("Request failed",
			zap.String("request_id", requestID),
			zap.String("kind", string(kind)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, &TransportError{Kind: kind, Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Kind: classify(err, ctx.Err()), Method: method, URL: url, Err: fmt.Errorf("reading body: %w", err)}
	}

	t.logger.Debug("Received response",
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{StatusCode: resp.StatusCode, Body: data, Header: resp.Header}, nil
}
