package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/autotech-nz/paymark-reporter/internal/browser"
	"github.com/autotech-nz/paymark-reporter/internal/config"
	"github.com/autotech-nz/paymark-reporter/internal/fetch"
	"github.com/autotech-nz/paymark-reporter/internal/job"
	"github.com/autotech-nz/paymark-reporter/internal/logger"
	"github.com/autotech-nz/paymark-reporter/internal/mail"
)

// loadConfig resolves configuration: defaults, then the optional YAML
// file, then environment variables.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default().FromEnv(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg.FromEnv(), nil
}

// buildRunner wires the production collaborators behind one job runner.
func buildRunner(cfg *config.Config, log zerolog.Logger) *job.Runner {
	fetcher := &fetch.Fetcher{
		API: fetch.NewAPIClient(cfg.Upstream.APIBase, cfg.Upstream.Accept, cfg.Fetch.HTTPTimeout, log),
		Browser: &fetch.BrowserFetcher{
			NewPage: browser.NewChrome(browser.ChromeOptions{UserAgent: cfg.Upstream.UserAgent}),
			Config: fetch.BrowserConfig{
				PortalURL:        cfg.Upstream.PortalURL,
				LoginHost:        cfg.Upstream.LoginHost,
				TransactionsPath: cfg.Upstream.Transaction,
				MerchantName:     cfg.Merchant.Name,
				WaitTimeout:      cfg.Fetch.WaitTimeout,
			},
			Log: log,
		},
		Log: log,
	}
	return job.NewRunner(cfg, fetcher, mail.NewSMTPSender(cfg.Mail), log)
}

func newRunCommand(configPath *string, verbose *bool) *cobra.Command {
	var (
		opts     job.Options
		from, to string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one report job and print the outcome as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(*verbose)

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if from != "" {
				if opts.From, err = time.Parse(time.RFC3339, from); err != nil {
					return fmt.Errorf("parsing --from: %w", err)
				}
			}
			if to != "" {
				if opts.To, err = time.Parse(time.RFC3339, to); err != nil {
					return fmt.Errorf("parsing --to: %w", err)
				}
			}

			out := buildRunner(cfg, log).Run(cmd.Context(), opts)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if !out.OK {
				return fmt.Errorf("report run failed: %s", out.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "stop before rendering and mailing, print counts only")
	cmd.Flags().IntVar(&opts.Page, "page", 0, "fetch this page only")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "rows per page override")
	cmd.Flags().StringVar(&opts.Token, "token", "", "per-run bearer token override")
	cmd.Flags().StringVar(&opts.Accept, "accept", "", "Accept header override for the direct API")
	cmd.Flags().StringVar(&from, "from", "", "window start override (RFC 3339, UTC)")
	cmd.Flags().StringVar(&to, "to", "", "window end override (RFC 3339, UTC)")
	cmd.Flags().StringSliceVar(&opts.Merchants, "merchants", nil, "cardAcceptorIdCodes filter override")

	return cmd
}
