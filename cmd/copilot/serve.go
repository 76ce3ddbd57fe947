package main

import (
	"github.com/spf13/cobra"

	"researchcopilot/pkg/server"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the copilot over HTTP",
		Long: `Starts the HTTP API:

  POST /v1/ask            {"question": "...", "max_steps": 4}
  GET  /v1/capabilities   registered capabilities and their schemas
  GET  /v1/logs           recent log entries (?session=<id>&since=<RFC3339>)
  GET  /metrics           Prometheus metrics
  GET  /healthz           liveness`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, &cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a.loop, a.provider.List(),
				server.WithGatherer(a.registry),
				server.WithDefaultMaxSteps(cfg.Agent.MaxSteps),
			)
			return srv.ListenAndServe(ctx, cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}
