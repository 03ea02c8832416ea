package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/executor"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/insight"
)

const runLongDesc = `Run one analysis and print the answer as JSON.

The run ends with an answer, or fails when its query or round budget is
exhausted or the provider refuses the request. When an insights database is
configured the answer is stored, and confident answers are announced to the
alerts API unless --no-alert is given.

Examples:
  analyst run --city Bristol --country-code gb
  analyst run --city Leeds --country-code gb --success-criteria "cut bus emissions 20%"
  analyst run --city Leeds --question "Which routes lost riders last quarter?" --transcript run.yaml`

// questionFlags are the run context flags shared by run and repl.
type questionFlags struct {
	city            string
	countryCode     string
	successCriteria string
	noAlert         bool
	transcript      string
}

func (q *questionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&q.city, "city", "", "City under analysis")
	cmd.Flags().StringVar(&q.countryCode, "country-code", "", "ISO country code of the city")
	cmd.Flags().StringVar(&q.successCriteria, "success-criteria", "", "What a useful outcome looks like")
	cmd.Flags().BoolVar(&q.noAlert, "no-alert", false, "Store insights but never create alerts")
	cmd.Flags().StringVar(&q.transcript, "transcript", "", `Write a YAML transcript of every call to this file ("-" for stderr)`)
}

func (q *questionFlags) question(focus string) executor.Question {
	return executor.Question{
		City:            q.city,
		CountryCode:     q.countryCode,
		SuccessCriteria: q.successCriteria,
		Focus:           focus,
	}
}

func newRunCmd(g *globalFlags) *cobra.Command {
	q := &questionFlags{}
	var focus string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one analysis",
		Long:  runLongDesc,
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

			rep := a.analyze(cmd.Context(), q.question(focus))
			if err := writeReport(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if rep.Outcome != analyst.OutcomeFinal {
				return fmt.Errorf("run %s ended with %s: %s", rep.RunID, rep.Outcome, rep.Error)
			}
			return nil
		},
	}

	q.register(cmd)
	cmd.Flags().StringVarP(&focus, "question", "q", "", "Specific question; without it the run looks for general insights")

	return cmd
}

// report is what run prints.
type report struct {
	RunID     string               `json:"run_id"`
	Outcome   analyst.Outcome      `json:"outcome"`
	Answer    *analyst.FinalAnswer `json:"answer,omitempty"`
	Fallback  bool                 `json:"fallback,omitempty"`
	ErrorKind analyst.ErrorKind    `json:"error_kind,omitempty"`
	Error     string               `json:"error,omitempty"`
	Budget    analyst.Budget       `json:"budget"`
	Duration  string               `json:"duration"`

	InsightID  string `json:"insight_id,omitempty"`
	AlertSent  bool   `json:"alert_sent,omitempty"`
	AlertErr   string `json:"alert_error,omitempty"`
	PublishErr string `json:"publish_error,omitempty"`
}

// analyze runs q and publishes a final answer when a publisher is configured. Publishing
// failures are logged and reported; the answer is still returned.
func (a *app) analyze(ctx context.Context, q executor.Question) *report {
	res := a.exec.Run(ctx, executor.BuildQuestion(q))

	rep := &report{
		RunID:     res.RunID,
		Outcome:   res.Outcome,
		Answer:    res.Answer,
		ErrorKind: res.Kind,
		Error:     res.Message,
		Budget:    res.Budget,
		Duration:  res.Duration.Round(time.Millisecond).String(),
	}
	if res.Answer != nil {
		rep.Fallback = res.Answer.Fallback
	}
	if !res.OK() || a.publisher == nil {
		return rep
	}

	pub, err := a.publisher.Publish(ctx, &insight.Insight{
		City:            q.City,
		CountryCode:     q.CountryCode,
		SuccessCriteria: q.SuccessCriteria,
		Answer:          *res.Answer,
	})
	if err != nil {
		a.log.Error("insight: publish failed", "run_id", res.RunID, "error", err)
		rep.PublishErr = err.Error()
		return rep
	}
	rep.InsightID = pub.InsightID
	rep.AlertSent = pub.AlertSent
	if pub.AlertErr != nil {
		rep.AlertErr = pub.AlertErr.Error()
	}
	return rep
}

func writeReport(w io.Writer, rep *report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// renderAnswer formats a report for the terminal.
func renderAnswer(rep *report) string {
	var sb strings.Builder
	if rep.Answer == nil {
		fmt.Fprintf(&sb, "No answer (%s): %s\n", rep.Outcome, rep.Error)
		return sb.String()
	}

	ans := rep.Answer
	sb.WriteString(ans.Summary)
	sb.WriteString("\n")
	if ans.Detail != "" {
		sb.WriteString("\n")
		sb.WriteString(ans.Detail)
		sb.WriteString("\n")
	}
	if len(ans.Recommendations) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for _, r := range ans.Recommendations {
			fmt.Fprintf(&sb, "  - %s\n", r)
		}
	}
	if len(ans.SourcesUsed) > 0 {
		fmt.Fprintf(&sb, "\nSources: %s\n", strings.Join(ans.SourcesUsed, ", "))
	}
	fmt.Fprintf(&sb, "Confidence: %.0f%%  Queries: %d/%d  Rounds: %d/%d\n",
		ans.Confidence*100,
		rep.Budget.QueriesUsed, rep.Budget.QueriesMax,
		rep.Budget.IterationsUsed, rep.Budget.IterationsMax,
	)
	if rep.InsightID != "" {
		fmt.Fprintf(&sb, "Insight: %s", rep.InsightID)
		if rep.AlertSent {
			sb.WriteString(" (alert sent)")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
