package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const (
	colorReset = "\033[0m"
	colorCyan  = "\033[36m"
	colorGreen = "\033[32m"
	colorDim   = "\033[2m"
)

const replLongDesc = `Ask questions interactively. Every line starts a fresh run with the same
city context; answers are printed as they complete.

Commands:
  /json    toggle JSON output
  /quit    exit (also Ctrl+D)`

func newReplCmd(g *globalFlags) *cobra.Command {
	q := &questionFlags{}

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive analysis session",
		Long:  replLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			log := newLogger(g.verbose)

			transcript, closeTranscript, err := openTranscript(q.transcript)
			if err != nil {
				return err
			}
			defer closeTranscript()

			a, err := newApp(cmd.Context(), cfg, log, appOptions{noAlert: q.noAlert, transcript: transcript})
			if err != nil {
				return err
			}
			defer a.Close()

			rl, err := readline.New(colorCyan + "analyst> " + colorReset)
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()

			return a.repl(cmd, rl, q)
		},
	}

	q.register(cmd)
	return cmd
}

// lineReader is the part of *readline.Instance the loop uses.
type lineReader interface {
	Readline() (string, error)
}

func (a *app) repl(cmd *cobra.Command, rl lineReader, q *questionFlags) error {
	out := cmd.OutOrStdout()
	asJSON := false

	if q.city != "" {
		fmt.Fprintf(out, "%sAnalysing %s. Ask a question, /quit to exit.%s\n", colorDim, q.city, colorReset)
	}

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintf(out, "%sGoodbye!%s\n", colorGreen, colorReset)
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/quit", "/exit", "q":
			fmt.Fprintf(out, "%sGoodbye!%s\n", colorGreen, colorReset)
			return nil
		case "/json":
			asJSON = !asJSON
			fmt.Fprintf(out, "%sJSON output %v%s\n", colorDim, asJSON, colorReset)
			continue
		}

		ctx := cmd.Context()
		rep := a.analyze(ctx, q.question(line))
		if asJSON {
			if err := writeReport(out, rep); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(out, renderAnswer(rep))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
