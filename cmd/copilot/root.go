package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"researchcopilot/pkg/agent/toolloop"
	"researchcopilot/pkg/config"
	"researchcopilot/pkg/version"
)

// noAnswer is printed when a run ends without any assistant turn.
const noAnswer = "(no AI message)"

// options holds the persistent flags shared by every subcommand.
type options struct {
	configPath string
	initConfig bool
	maxSteps   int
	metricsOut string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "copilot [question...]",
		Short: "Answer research questions with a tool-using reasoning engine",
		Long: `copilot answers a question by letting a reasoning engine call research
capabilities (web search, page fetch, report search, encyclopedia lookup and
local-corpus retrieval) until it produces a final answer or runs out of steps.

With a question it answers once and exits. Without one it starts an
interactive session; type "exit" or "quit" to leave.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, opts, args)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", config.DefaultConfigFile, "Path to the YAML config file")
	flags.BoolVar(&opts.initConfig, "init-config", false, "Write the default config file if it does not exist")
	flags.IntVar(&opts.maxSteps, "max-steps", 0, "Capability calls allowed per question (default from config)")
	flags.StringVar(&opts.metricsOut, "metrics-out", "", "Write Prometheus metrics to this file on exit")

	root.AddCommand(
		newServeCmd(opts),
		newMCPCmd(opts),
		newToolsCmd(opts),
		newIndexCmd(opts),
		newStatsCmd(opts),
	)
	return root
}

// loadConfig applies --init-config and --max-steps on top of the loaded config.
func (o *options) loadConfig() (config.Config, error) {
	if o.initConfig {
		if _, err := os.Stat(o.configPath); errors.Is(err, os.ErrNotExist) {
			if err := config.WriteDefault(o.configPath); err != nil {
				return config.Config{}, err
			}
			fmt.Fprintf(os.Stderr, "📝 Wrote default config to %s\n", o.configPath)
		}
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.maxSteps < 0 {
		return config.Config{}, fmt.Errorf("--max-steps must be positive, got %d", o.maxSteps)
	}
	if o.maxSteps > 0 {
		cfg.Agent.MaxSteps = o.maxSteps
	}
	return cfg, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runAsk answers the joined args once, or starts an interactive session when there are none.
func runAsk(cmd *cobra.Command, opts *options, args []string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	app, err := newApp(ctx, &cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	defer func() {
		if err := app.writeMetrics(opts.metricsOut); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️ %v\n", err)
		}
	}()

	out := cmd.OutOrStdout()
	render := newRenderer(out)

	if question := strings.TrimSpace(strings.Join(args, " ")); question != "" {
		return answerOnce(ctx, app.loop, cfg.Agent.MaxSteps, question, out, render)
	}
	return repl(ctx, app.loop, cfg.Agent.MaxSteps, cmd.InOrStdin(), out, render)
}

func answerOnce(ctx context.Context, loop asker, maxSteps int, question string, out io.Writer, render func(string) string) error {
	outcome, err := loop.Ask(ctx, question, maxSteps)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, render(answerText(outcome)))
	return nil
}

// repl reads one question per line until EOF, "exit" or "quit". Engine failures
// are reported and the session continues.
func repl(ctx context.Context, loop asker, maxSteps int, in io.Reader, out io.Writer, render func(string) string) error {
	fmt.Fprintln(out, "Research Copilot. Type a question, or \"exit\" to quit.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		outcome, err := loop.Ask(ctx, question, maxSteps)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "❌ %v\n", err)
			continue
		}
		fmt.Fprintln(out, render(answerText(outcome)))
	}
}

func answerText(outcome *toolloop.Outcome) string {
	if outcome == nil || strings.TrimSpace(outcome.Answer) == "" {
		return noAnswer
	}
	return outcome.Answer
}

// newRenderer renders markdown when out is a terminal and passes text through otherwise.
func newRenderer(out io.Writer) func(string) string {
	plain := func(s string) string { return s }
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return plain
	}
	width := 100
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
		width = w - 4
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return plain
	}
	return func(s string) string {
		rendered, err := r.Render(s)
		if err != nil {
			return s
		}
		return strings.TrimRight(rendered, "\n")
	}
}
