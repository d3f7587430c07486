package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/kloia/kubevirt-api-client/internal/kubernetes"
	"github.com/kloia/kubevirt-api-client/internal/transport"
)

// Default values
const (
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "console"
	DefaultOutput       = "table"
	DefaultTimeout      = transport.DefaultTimeout
	DefaultPollInterval = kubernetes.DefaultPollInterval
	DefaultPollTimeout  = 5 * time.Minute
	EnvPrefix           = "KVCTL"
)

// Configuration keys shared by flags, environment and viper
const (
	KeyServer       = "server"
	KeyToken        = "token"
	KeyCAFile       = "certificate-authority"
	KeyInsecure     = "insecure-skip-tls-verify"
	KeyKubeconfig   = "kubeconfig"
	KeyContext      = "context"
	KeyNamespace    = "namespace"
	KeyMetricsURL   = "metrics-url"
	KeyTimeout      = "request-timeout"
	KeyPollInterval = "poll-interval"
	KeyPollTimeout  = "poll-timeout"
	KeyLogLevel     = "log-level"
	KeyLogFormat    = "log-format"
	KeyOutput       = "output"
)

// Config holds the application configuration
type Config struct {
	Server     string `validate:"required,url"`
	Token      string `validate:"required"`
	CAFile     string `validate:"omitempty,file"`
	CAData     []byte
	Insecure   bool
	Kubeconfig string
	Context    string
	Namespace  string
	MetricsURL string `validate:"omitempty,url"`

	Timeout      time.Duration `validate:"gt=0"`
	PollInterval time.Duration `validate:"gt=0"`
	PollTimeout  time.Duration `validate:"gtefield=PollInterval"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=console json"`
	Output    string `validate:"oneof=table json yaml"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

var fieldKeys = map[string]string{
	"Server":       KeyServer,
	"Token":        KeyToken,
	"CAFile":       KeyCAFile,
	"MetricsURL":   KeyMetricsURL,
	"Timeout":      KeyTimeout,
	"PollInterval": KeyPollInterval,
	"PollTimeout":  KeyPollTimeout,
	"LogLevel":     KeyLogLevel,
	"LogFormat":    KeyLogFormat,
	"Output":       KeyOutput,
}

func fieldMessage(fe validator.FieldError) string {
	key := fieldKeys[fe.Field()]
	if key == "" {
		key = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required (flag --%s or env %s)", key, key, envName(key))
	case "url":
		return fmt.Sprintf("%s must be an absolute URL, got %q", key, fe.Value())
	case "file":
		return fmt.Sprintf("%s must be an existing file, got %q", key, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", key, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be positive", key)
	case "gtefield":
		return fmt.Sprintf("%s must not be shorter than %s", key, KeyPollInterval)
	}
	return fmt.Sprintf("%s failed %s validation", key, fe.Tag())
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// setDefaults sets default values for unset fields in the Config
func (c *Config) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = DefaultPollTimeout
	}
}

// BindEnv makes every key readable from KVCTL_* environment variables
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// LoadConfig loads configuration from viper. Connection fields that were not
// given explicitly are taken from the kubeconfig.
func LoadConfig(v *viper.Viper) (*Config, error) {
	BindEnv(v)

	c := &Config{
		Server:       v.GetString(KeyServer),
		Token:        v.GetString(KeyToken),
		CAFile:       v.GetString(KeyCAFile),
		Insecure:     v.GetBool(KeyInsecure),
		Kubeconfig:   v.GetString(KeyKubeconfig),
		Context:      v.GetString(KeyContext),
		Namespace:    v.GetString(KeyNamespace),
		MetricsURL:   v.GetString(KeyMetricsURL),
		Timeout:      v.GetDuration(KeyTimeout),
		PollInterval: v.GetDuration(KeyPollInterval),
		PollTimeout:  v.GetDuration(KeyPollTimeout),
		LogLevel:     v.GetString(KeyLogLevel),
		LogFormat:    v.GetString(KeyLogFormat),
		Output:       v.GetString(KeyOutput),
	}

	if err := c.applyKubeconfig(); err != nil {
		return nil, err
	}
	c.setDefaults()
	return c, c.Validate()
}

// applyKubeconfig fills server, credential and namespace from the kubeconfig.
// An explicit kubeconfig that cannot be loaded is an error; the default one is optional.
func (c *Config) applyKubeconfig() error {
	if c.Kubeconfig == "" && c.Server != "" && c.Token != "" {
		return nil
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if c.Kubeconfig != "" {
		rules.ExplicitPath = c.Kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: c.Context}
	loader := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides)

	rc, err := loader.ClientConfig()
	if err != nil {
		if c.Kubeconfig == "" {
			return nil
		}
		return fmt.Errorf("failed to load kubeconfig %s: %w", c.Kubeconfig, err)
	}

	if c.Server == "" {
		c.Server = rc.Host
	}
	if c.Token == "" {
		c.Token = rc.BearerToken
		if c.Token == "" && rc.BearerTokenFile != "" {
			data, err := os.ReadFile(rc.BearerTokenFile)
			if err != nil {
				return fmt.Errorf("failed to read token file: %w", err)
			}
			c.Token = strings.TrimSpace(string(data))
		}
	}
	if c.CAFile == "" && len(c.CAData) == 0 {
		c.CAFile = rc.TLSClientConfig.CAFile
		c.CAData = rc.TLSClientConfig.CAData
	}
	if !c.Insecure {
		c.Insecure = rc.TLSClientConfig.Insecure
	}
	if c.Namespace == "" {
		if ns, _, err := loader.Namespace(); err == nil {
			c.Namespace = ns
		}
	}
	return nil
}

// Credential builds the immutable credential used by the transport
func (c *Config) Credential() transport.Credential {
	return transport.Credential{
		Token: c.Token,
		Trust: transport.TrustPolicy{
			Insecure: c.Insecure,
			CAFile:   c.CAFile,
			CAData:   c.CAData,
		},
	}
}

// Connection returns the settings used to build API clients
func (c *Config) Connection() kubernetes.ConnectionConfig {
	return kubernetes.ConnectionConfig{
		Server:       c.Server,
		Credential:   c.Credential(),
		Timeout:      c.Timeout,
		PollInterval: c.PollInterval,
	}
}
