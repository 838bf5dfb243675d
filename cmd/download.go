package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-downloader/internal/discovery"
)

func newDownloadCmd(opts *rootOptions) *cobra.Command {
	var urlsFile string
	cmd := &cobra.Command{
		Use:   "download [urls...]",
		Short: "Download the given URLs in order",
		Long: `Downloads each URL sequentially. URLs come from the arguments, from
--urls-file (one per line, # starts a comment), or both; file entries follow
the arguments and duplicates are dropped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := append([]string(nil), args...)
			if urlsFile != "" {
				fromFile, err := discovery.LoadURLFile(urlsFile)
				if err != nil {
					return fmt.Errorf("read urls file: %w", err)
				}
				urls = append(urls, fromFile...)
			}
			if len(urls) == 0 {
				return fmt.Errorf("no urls given: pass them as arguments or with --urls-file: %w", discovery.ErrNoURLs)
			}
			return opts.run(cmd.Context(), func(a sessionApp) error {
				stats, err := a.Run(cmd.Context(), urls)
				if err != nil {
					return fmt.Errorf("download: %w", err)
				}
				if cmd.Context().Err() != nil {
					opts.logger.Warn("download interrupted", zap.Int("completed", stats.TotalRequests))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&urlsFile, "urls-file", "", "file with one URL per line")
	return cmd
}
