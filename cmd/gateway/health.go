package main

import (
	"encoding/json"
	"fmt"

	"github.com/boddenberg/agency-tool-gateway/internal/app"
	"github.com/boddenberg/agency-tool-gateway/internal/config"
	"github.com/boddenberg/agency-tool-gateway/internal/domain"
	"github.com/boddenberg/agency-tool-gateway/internal/infra/observability"

	"github.com/spf13/cobra"
)

// newHealthCmd runs the probes in-process, without a server.
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health [service]",
		Short: "Probe every upstream, or one, and print the report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := observability.NewLogger("error", cfg.Name, cfg.Version)
			defer logger.Sync()

			gw, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer gw.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if len(args) == 1 {
				res := gw.Health.RunOne(cmd.Context(), args[0])
				if err := enc.Encode(res); err != nil {
					return err
				}
				if res.Status == domain.HealthError {
					return fmt.Errorf("%s: %s", res.Service, res.Message)
				}
				return nil
			}

			report := gw.Health.RunFull(cmd.Context())
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.Gateway.Status == domain.GatewayDown {
				return fmt.Errorf("gateway is down: %d of %d upstreams failed", report.Summary.Failed, len(report.Services))
			}
			return nil
		},
	}
}
