package main

import (
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/app"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, recovery scheduler and outbox dispatcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, flush, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer flush()

			return app.Run(cmd.Context(), cfg, logger)
		},
	}
}
