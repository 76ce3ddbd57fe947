package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"researchcopilot/pkg/metrics"
)

func newStatsCmd(_ *options) *cobra.Command {
	var (
		prometheusURL string
		window        time.Duration
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize runs, tokens and capability calls from Prometheus",
		Long: `Queries a Prometheus server that scrapes "copilot serve" and prints how
interactions ended, tokens spent per model and capability outcomes over a window.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := metrics.NewQueryService(prometheusURL)
			if err != nil {
				return err
			}
			report, err := q.Usage(cmd.Context(), window)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(out, report)
			return nil
		},
	}
	cmd.Flags().StringVar(&prometheusURL, "prometheus-url", "http://localhost:9090", "Prometheus server address")
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "Time window to summarize")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func printReport(w io.Writer, r *metrics.UsageReport) {
	fmt.Fprintf(w, "Last %s\n\nRuns:\n", r.Window)
	reasons := make([]string, 0, len(r.Runs))
	for reason := range r.Runs {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(w, "  %-14s %d\n", reason, r.Runs[reason])
	}

	fmt.Fprintln(w, "\nTokens:")
	for _, m := range r.Models {
		fmt.Fprintf(w, "  %-20s prompt=%d completion=%d\n", m.Model, m.PromptTokens, m.CompletionTokens)
	}
	fmt.Fprintf(w, "  %-20s %d\n", "total", r.Total.TotalTokens)

	fmt.Fprintln(w, "\nCapabilities:")
	for _, c := range r.Capabilities {
		outcomes := make([]string, 0, len(c.Outcomes))
		for outcome := range c.Outcomes {
			outcomes = append(outcomes, outcome)
		}
		sort.Strings(outcomes)
		fmt.Fprintf(w, "  %-18s", c.Capability)
		for _, outcome := range outcomes {
			fmt.Fprintf(w, " %s=%d", outcome, c.Outcomes[outcome])
		}
		fmt.Fprintln(w)
	}
}
