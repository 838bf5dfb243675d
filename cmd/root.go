// Package cmd defines the CLI commands for the site-downloader executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-downloader/internal/app"
	"github.com/JakeFAU/site-downloader/internal/config"
	"github.com/JakeFAU/site-downloader/internal/logging"
	"github.com/JakeFAU/site-downloader/internal/session"
)

// sessionApp is what the commands need from the application container.
type sessionApp interface {
	Run(ctx context.Context, urls []string) (session.Stats, error)
	Discover(ctx context.Context, seed string) ([]string, error)
	Close() error
}

// newApp builds the container; tests swap it for a fake.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (sessionApp, error) {
	return app.New(ctx, cfg, logger)
}

type rootOptions struct {
	cfgFile   string
	site      string
	outputDir string

	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "site-downloader",
		Short: "Download a website page by page with adaptive rate limiting.",
		Long: `site-downloader fetches an ordered list of URLs one at a time, backing
off when the server signals rate limiting, retrying transient failures, and
recording raw content, metadata, attempt logs and a status-code report per
session.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "path to a YAML/TOML/JSON config file")
	flags.StringVar(&opts.site, "site", "", "site name used for the output directory (overrides site.name)")
	flags.StringVar(&opts.outputDir, "output", "", "root output directory (overrides site.output_dir)")

	cmd.AddCommand(newDownloadCmd(opts))
	cmd.AddCommand(newCrawlCmd(opts))
	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("site") {
		cfg.Site.Name = o.site
	}
	if cmd.Flags().Changed("output") {
		cfg.Site.OutputDir = o.outputDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	o.cfg = cfg
	o.logger = logger
	return nil
}

// run builds the container, hands it to fn, and closes it afterwards.
func (o *rootOptions) run(ctx context.Context, fn func(sessionApp) error) error {
	a, err := newApp(ctx, o.cfg, o.logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			o.logger.Warn("failed to close services", zap.Error(cerr))
		}
	}()
	return fn(a)
}

// Execute runs the root command with SIGINT/SIGTERM cancellation.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
