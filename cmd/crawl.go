package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCrawlCmd(opts *rootOptions) *cobra.Command {
	var maxPages int
	cmd := &cobra.Command{
		Use:   "crawl <seed-url>",
		Short: "Discover same-host pages from a seed, then download them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("max-pages") {
				opts.cfg.Crawler.MaxPages = maxPages
			}
			ctx := cmd.Context()
			return opts.run(ctx, func(a sessionApp) error {
				urls, err := a.Discover(ctx, args[0])
				if err != nil {
					if ctx.Err() != nil && len(urls) > 0 {
						opts.logger.Warn("discovery interrupted", zap.Int("found", len(urls)))
						return nil
					}
					return fmt.Errorf("crawl: %w", err)
				}
				opts.logger.Info("discovered urls", zap.Int("count", len(urls)))
				if _, err := a.Run(ctx, urls); err != nil {
					return fmt.Errorf("download: %w", err)
				}
				if ctx.Err() != nil {
					opts.logger.Warn("download interrupted")
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "cap on discovered pages (overrides crawler.max_pages)")
	return cmd
}
