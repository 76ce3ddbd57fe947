package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"researchcopilot/pkg/logx"
	"researchcopilot/pkg/mcpserver"
)

func newMCPCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the capabilities as an MCP stdio server",
		Long: `Starts a Model Context Protocol server on stdin/stdout. Each registered
capability becomes an MCP tool; calls go through the same dispatcher the
research loop uses, so validation and error payloads are identical.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Stdout carries JSON-RPC.
			logx.SetOutput(os.Stderr)
			log.SetOutput(os.Stderr)

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			caps := newCapabilities(cmd.Context(), &cfg, nil)
			defer caps.Close()

			return mcpserver.NewServer(caps.dispatcher, caps.provider.List()).ServeStdio()
		},
	}
}
