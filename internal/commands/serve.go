package commands

import (
	"github.com/spf13/cobra"

	"github.com/autotech-nz/paymark-reporter/internal/httpapi"
	"github.com/autotech-nz/paymark-reporter/internal/logger"
)

func newServeCommand(configPath *string, verbose *bool) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the report job and health endpoints over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(*verbose)

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			server := httpapi.NewServer(buildRunner(cfg, log), cfg, log)
			return server.Run(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
