package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"researchcopilot/pkg/tools"
)

func newToolsCmd(_ *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the registered capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			descs := tools.ListTools()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(descs)
			}
			_, err := fmt.Fprint(out, tools.GenerateToolDocumentation(descs))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print descriptors with their JSON schemas")
	return cmd
}
