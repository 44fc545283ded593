package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"xfer/pkg/client"
	"xfer/pkg/config"
	"xfer/pkg/logger"
	"xfer/pkg/metrics"
)

// app carries the global flags and the client built from them.
type app struct {
	configPath string
	headers    []string
	timeout    time.Duration
	proxy      string
	insecure   bool
	location   bool
	maxRedirs  int
	include    bool
	logLevel   string
	metrics    bool

	cfg      *config.Config
	log      *logger.Logger
	client   *client.Client
	registry *prometheus.Registry
}

// NewRootCmd builds the xfer command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{})
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xfer",
		Short: "URL transfer client",
		Long:  "Command Line Interface for fetching and uploading over http, https and file URLs",
		// This runs before any subcommand
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to a configuration file")
	flags.StringArrayVarP(&a.headers, "header", "H", nil, `Extra request header "Name: value" (repeatable)`)
	flags.DurationVar(&a.timeout, "timeout", 0, "Whole-transfer timeout, 0 for none")
	flags.StringVar(&a.proxy, "proxy", "", "Proxy URL")
	flags.BoolVarP(&a.insecure, "insecure", "k", false, "Skip TLS peer verification")
	flags.BoolVarP(&a.location, "location", "L", false, "Follow redirects")
	flags.IntVar(&a.maxRedirs, "max-redirs", 0, "Maximum redirects to follow, -1 for unlimited")
	flags.BoolVarP(&a.include, "include", "i", false, "Print response headers before the body")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	flags.BoolVar(&a.metrics, "metrics", false, "Print transfer metrics to stderr on exit")

	rootCmd.AddCommand(newGetCmd(a))
	rootCmd.AddCommand(newHeadCmd(a))
	rootCmd.AddCommand(newPostCmd(a))
	rootCmd.AddCommand(newPutCmd(a))
	rootCmd.AddCommand(newBatchCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))

	return rootCmd
}

// Execute runs the command tree; cancelling ctx aborts transfers in flight.
func Execute(ctx context.Context) error {
	a := &app{}
	return a.execute(ctx, newRootCmd(a))
}

// execute runs cmd and then reports metrics, whether or not it failed.
func (a *app) execute(ctx context.Context, cmd *cobra.Command) error {
	err := cmd.ExecuteContext(ctx)
	if a.metrics && a.registry != nil {
		if merr := writeMetrics(cmd.ErrOrStderr(), a.registry); merr != nil && err == nil {
			err = merr
		}
	}
	return err
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromFile(a.configPath)
	} else {
		cfg, _, err = config.LoadConfig()
	}
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("timeout") {
		cfg.Transfer.Timeout = a.timeout
	}
	if flags.Changed("proxy") {
		cfg.Transfer.Proxy.URL = a.proxy
	}
	if a.insecure {
		cfg.Transfer.VerifyPeer = false
	}
	if a.location {
		cfg.Transfer.FollowLocation = true
	}
	if flags.Changed("max-redirs") {
		cfg.Transfer.MaxRedirects = a.maxRedirs
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	cfg.Transfer.Headers = append(cfg.Transfer.Headers, a.headers...)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	log, err := cfg.NewLogger()
	if err != nil {
		return err
	}

	a.registry = prometheus.NewRegistry()
	a.cfg = cfg
	a.log = log
	a.client = client.New(cfg, log, client.WithMetrics(metrics.MustNewMetrics(a.registry)))
	return nil
}
