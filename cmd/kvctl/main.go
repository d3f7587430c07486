package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kloia/kubevirt-api-client/internal/config"
	"github.com/kloia/kubevirt-api-client/internal/kubernetes"
	"github.com/kloia/kubevirt-api-client/internal/metrics"
	"github.com/kloia/kubevirt-api-client/pkg/logging"
)

// app carries the state shared by all commands of one invocation
type app struct {
	v      *viper.Viper
	out    io.Writer
	logger *zap.Logger
	cfg    *config.Config

	// newClient is replaced in tests
	newClient func(cfg *config.Config, logger *zap.Logger) (kubernetes.KubernetesClient, error)
}

func newApp(v *viper.Viper, out io.Writer) *app {
	return &app{
		v:         v,
		out:       out,
		logger:    zap.NewNop(),
		newClient: defaultClient,
	}
}

func defaultClient(cfg *config.Config, logger *zap.Logger) (kubernetes.KubernetesClient, error) {
	return kubernetes.NewClientFactory(logger).CreateClient(cfg.Connection())
}

// config loads and validates the configuration once per invocation
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.LoadConfig(a.v)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) client() (kubernetes.KubernetesClient, *config.Config, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, nil, err
	}
	client, err := a.newClient(cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

// metricsClient uses the configured metrics url, or discovers the cluster
// Prometheus route when none is set
func (a *app) metricsClient(ctx context.Context, cfg *config.Config, client kubernetes.KubernetesClient) (*metrics.QueryClient, error) {
	metricsURL := cfg.MetricsURL
	if metricsURL == "" {
		discovered, err := client.DiscoverMetricsURL(ctx)
		if err != nil {
			return nil, fmt.Errorf("no metrics url configured (flag --%s or env KVCTL_METRICS_URL) and discovery failed: %w", config.KeyMetricsURL, err)
		}
		metricsURL = discovered
	}
	t, err := kubernetes.NewClientFactory(a.logger).CreateTransport(cfg.Connection())
	if err != nil {
		return nil, err
	}
	return metrics.NewQueryClient(t, metricsURL, a.logger)
}

func (a *app) printer() *printer {
	format := a.v.GetString(config.KeyOutput)
	if a.cfg != nil {
		format = a.cfg.Output
	}
	return newPrinter(a.out, format)
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kvctl",
		Short: "Manage KubeVirt VMs and migration plans over the Kubernetes API",
		Long: `A client for KubeVirt virtual machines and Forklift migration plans.
It talks to the cluster API directly with a bearer token and can enrich
VM listings with usage from a Prometheus-compatible metrics endpoint.`,
		Run: func(cmd *cobra.Command, args []string) {
			// Print help if no subcommand is provided
			if err := cmd.Help(); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to display help: %v\n", err)
			}
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.BindEnv(a.v)
			logger, err := logging.NewLogger(
				valueOr(a.v.GetString(config.KeyLogLevel), config.DefaultLogLevel),
				valueOr(a.v.GetString(config.KeyLogFormat), config.DefaultLogFormat))
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String(config.KeyServer, "", "API server URL, e.g. https://api.cluster.example:6443")
	flags.String(config.KeyToken, "", "Bearer token")
	flags.String(config.KeyCAFile, "", "Path to a CA bundle used to verify the API server")
	flags.Bool(config.KeyInsecure, false, "Skip TLS certificate verification (not recommended)")
	flags.String(config.KeyKubeconfig, "", "Kubeconfig to take server and token from")
	flags.String(config.KeyContext, "", "Kubeconfig context to use")
	flags.StringP(config.KeyNamespace, "n", "", "Namespace")
	flags.String(config.KeyMetricsURL, "", "Prometheus-compatible metrics API URL")
	flags.Duration(config.KeyTimeout, config.DefaultTimeout, "Per-request timeout")
	flags.Duration(config.KeyPollInterval, config.DefaultPollInterval, "Interval between status checks while waiting")
	flags.Duration(config.KeyPollTimeout, config.DefaultPollTimeout, "How long to wait for a status change")
	flags.String(config.KeyLogLevel, config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	flags.String(config.KeyLogFormat, config.DefaultLogFormat, "Log format (console, json)")
	flags.StringP(config.KeyOutput, "o", config.DefaultOutput, "Output format (table, json, yaml)")

	// Bind global flags to viper
	flags.VisitAll(func(f *pflag.Flag) {
		if err := a.v.BindPFlag(f.Name, f); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to bind flag %s: %v\n", f.Name, err)
			os.Exit(1)
		}
	})

	rootCmd.AddCommand(newVMCmd(a))
	rootCmd.AddCommand(newPlanCmd(a))
	rootCmd.AddCommand(newNamespaceCmd(a))
	rootCmd.AddCommand(newMetricsCmd(a))
	rootCmd.AddCommand(newVersionCmd(a))
	addCompletionCmd(rootCmd)

	return rootCmd
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := newApp(viper.GetViper(), os.Stdout)
	err := newRootCmd(a).ExecuteContext(ctx)
	stop()

	if err != nil {
		// Log error at debug level to avoid stack trace in normal output
		a.logger.Debug("Command execution failed", zap.Error(err))

		// Print user-friendly error message, removing any trailing newlines
		errMsg := strings.TrimSpace(err.Error())
		fmt.Fprintf(os.Stderr, "Error: %s\n", errMsg)

		// If this is an unknown command, suggest help
		if strings.Contains(errMsg, "unknown command") {
			fmt.Fprintf(os.Stderr, "Run 'kvctl --help' for usage information.\n")
		}
	}

	// Ignore errors from syncing stderr, which is not a regular file on terminals
	if syncErr := a.logger.Sync(); syncErr != nil &&
		!strings.Contains(syncErr.Error(), "inappropriate ioctl for device") &&
		!strings.Contains(syncErr.Error(), "invalid argument") {
		fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", syncErr)
	}

	if err != nil {
		os.Exit(1)
	}
}

func addCompletionCmd(rootCmd *cobra.Command) {
	// Remove default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Custom completion command without PowerShell
	completionCmd := &cobra.Command{
		Use:   "completion",
		Short: "Generate the autocompletion script for the specified shell",
		Long:  "Generate the autocompletion script for kvctl for the specified shell.",
	}
	completionCmd.AddCommand(&cobra.Command{
		Use:   "bash",
		Short: "Generate the autocompletion script for bash",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenBashCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "zsh",
		Short: "Generate the autocompletion script for zsh",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenZshCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "fish",
		Short: "Generate the autocompletion script for fish",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenFishCompletion(cmd.OutOrStdout(), true)
		},
	})
	rootCmd.AddCommand(completionCmd)
}
