package executor

import (
	"errors"
	"io"
	"log/slog"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/compaction"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/hooks"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/retry"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/termination"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/toolchain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultMaxTokens is the completion token limit when Config.MaxTokens is zero.
const DefaultMaxTokens = 4096

var (
	ErrMissingModel = errors.New("executor: Config.Model is required")
	ErrMissingTools = errors.New("executor: Config.Tools is required")
	ErrNegative     = errors.New("executor: budgets and MaxTokens must not be negative")
)

// Config holds everything a run depends on. Only Model and Tools are required; every
// other field has a default applied by New.
type Config struct {
	Model analyst.Model
	Tools *toolchain.Registry

	// Pruner bounds the conversation after every tool round. Default window: 8 turns.
	Pruner *compaction.Pruner

	// Retry wraps every completion call. Default: 5 retries at 3, 6, 12, 24, 48 seconds.
	Retry *retry.Policy

	Parser *termination.Parser
	Hooks  *hooks.Registry
	Logger *slog.Logger

	// Clock measures run and call durations.
	Clock clockwork.Clock

	// SystemPrompt is sent with every completion call. Default: DefaultSystemPrompt
	// followed by termination.Guidance().
	SystemPrompt string

	// IterationsMax and QueriesMax bound one run. Zero selects the analyst defaults.
	IterationsMax int
	QueriesMax    int

	MaxTokens int

	// NewRunID generates run identifiers. Default: random UUIDs.
	NewRunID func() string
}

// Validate reports missing or invalid fields. It does not apply defaults.
func (c *Config) Validate() error {
	var errs []error
	if c.Model == nil {
		errs = append(errs, ErrMissingModel)
	}
	if c.Tools == nil {
		errs = append(errs, ErrMissingTools)
	}
	if c.IterationsMax < 0 || c.QueriesMax < 0 || c.MaxTokens < 0 {
		errs = append(errs, ErrNegative)
	}
	return errors.Join(errs...)
}

func (c Config) withDefaults() Config {
	if c.Pruner == nil {
		c.Pruner = compaction.NewPruner(compaction.DefaultMaxTurns)
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.Retry == nil {
		c.Retry = retry.New(retry.DefaultConfig(), retry.WithLogger(c.Logger))
	}
	if c.Parser == nil {
		c.Parser = termination.NewParser()
	}
	if c.Hooks == nil {
		c.Hooks = hooks.NewRegistry()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt + "\n\n" + termination.Guidance()
	}
	if c.IterationsMax == 0 {
		c.IterationsMax = analyst.DefaultIterationsMax
	}
	if c.QueriesMax == 0 {
		c.QueriesMax = analyst.DefaultQueriesMax
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.NewRunID == nil {
		c.NewRunID = uuid.NewString
	}
	return c
}
