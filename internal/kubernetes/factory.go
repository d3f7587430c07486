package kubernetes

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kloia/kubevirt-api-client/internal/transport"
)

// ConnectionConfig describes how to reach an API server
type ConnectionConfig struct {
	// Server is the scheme and host of the API server
	Server       string
	Credential   transport.Credential
	Timeout      time.Duration
	PollInterval time.Duration
}

// ClientFactory creates KubernetesClient instances
type ClientFactory struct {
	logger *zap.Logger
}

// NewClientFactory creates a new ClientFactory instance
func NewClientFactory(logger *zap.Logger) *ClientFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientFactory{logger: logger}
}

// CreateTransport builds the authenticated transport for a connection
func (f *ClientFactory) CreateTransport(cfg ConnectionConfig) (*transport.Transport, error) {
	if err := validateServer(cfg.Server); err != nil {
		return nil, err
	}
	opts := []transport.Option{transport.WithLogger(f.logger)}
	if cfg.Timeout > 0 {
		opts = append(opts, transport.WithTimeout(cfg.Timeout))
	}
	t, err := transport.New(cfg.Credential, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for %s: %w", cfg.Server, err)
	}
	return t, nil
}

// CreateClient creates a KubernetesClient backed by the resource API at cfg.Server
func (f *ClientFactory) CreateClient(cfg ConnectionConfig) (KubernetesClient, error) {
	t, err := f.CreateTransport(cfg)
	if err != nil {
		return nil, err
	}

	var opts []BaseClientOption
	if cfg.PollInterval > 0 {
		opts = append(opts, WithPollInterval(cfg.PollInterval))
	}
	f.logger.Debug("Created client", zap.String("server", cfg.Server), zap.Stringer("credential", cfg.Credential))
	return NewBaseClient(strings.TrimRight(cfg.Server, "/"), NewResourceClient(t, f.logger), f.logger, opts...), nil
}

func validateServer(server string) error {
	if server == "" {
		return fmt.Errorf("server url is required")
	}
	u, err := url.Parse(server)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", server, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("invalid server url %q: scheme must be http or https", server)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid server url %q: host is missing", server)
	}
	return nil
}
