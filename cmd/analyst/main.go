// Command analyst answers analytics questions about a city by letting a model query the
// database through guarded tools.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/config"
)

const rootLongDesc = `analyst runs a tool-using model against an analytics database.

The model may only read: every statement passes a guard that rejects writes,
SELECT * and unbounded queries before anything reaches the database.

  analyst run --city Bristol --country-code gb    One analysis, answer as JSON
  analyst repl --city Bristol --country-code gb   Ask follow-up questions

Configuration is read from --config (YAML), then .env, then ANALYST_* variables.`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "analyst",
		Short:         "SQL analytics agent",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file, ignored when missing")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newRunCmd(g))
	cmd.AddCommand(newReplCmd(g))

	return cmd
}

// load reads and validates the configuration.
func (g *globalFlags) load() (config.Config, error) {
	cfg, err := config.Load(g.configPath, g.envFile)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	// Logs go to stderr; stdout carries the answer.
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}
