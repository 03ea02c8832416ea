package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/compaction"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/config"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/executor"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/export"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/guard"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/hooks"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/insight"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/metrics"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/models"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/retry"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/shaper"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/sqlexec"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/toolchain"
)

// app is one wired analyst: model, database, tools, hooks and the optional insight
// publisher. Close releases everything it opened.
type app struct {
	cfg       config.Config
	log       *slog.Logger
	exec      *executor.Executor
	publisher *insight.Publisher
	metrics   *metrics.Hooks
	closers   []func()
}

// appOptions are the per-invocation switches that are flags rather than configuration.
type appOptions struct {
	noAlert    bool
	transcript io.Writer
}

// newApp connects to the configured provider and databases and assembles the executor.
func newApp(ctx context.Context, cfg config.Config, log *slog.Logger, opts appOptions) (*app, error) {
	model, err := buildModel(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	if c, ok := model.(io.Closer); ok {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}
	db, closeDB, err := buildExecutor(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeDB)

	a.startMetrics()
	if err := a.assemble(model, db, opts); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openInsights(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// assemble builds the tools, hooks and executor on top of model and db.
func (a *app) assemble(model analyst.Model, db analyst.SQLExecutor, opts appOptions) error {
	cfg := a.cfg
	g := guard.New(guard.Config{
		LargeColumns:  cfg.Guard.LargeColumns,
		MaxLargeLimit: cfg.Guard.MaxLargeLimit,
		MaxLimit:      cfg.Guard.MaxLimit,
	})

	shaperCfg := shaper.Config{
		MaxRows:      cfg.Shaper.MaxRows,
		FallbackRows: cfg.Shaper.FallbackRows,
		MaxBytes:     cfg.Shaper.MaxBytes,
	}
	if cfg.Export.Enabled {
		shaperCfg.ExportHint = fmt.Sprintf("Use %s to write the full result to a file", toolchain.DefaultExportToolName)
	}

	query := toolchain.NewQueryTool(g, db, shaper.New(shaperCfg))
	if cfg.Guard.AllowWrite {
		query.AllowWrite()
	}
	tools := toolchain.NewRegistry(toolchain.Config{Logger: a.log}).Register(query)

	if cfg.Export.Enabled {
		sink, err := export.NewFileSink(cfg.Export.Dir, export.WithLogger(a.log))
		if err != nil {
			return err
		}
		exportTool := toolchain.NewExportTool(g, db, sink)
		if cfg.Export.MaxRows > 0 {
			exportTool.WithMaxRows(cfg.Export.MaxRows)
		}
		tools.Register(exportTool)
	}

	hookReg := hooks.NewRegistry().Register(hooks.NewSlogHook(a.log))
	if opts.transcript != nil {
		hookReg.Register(hooks.NewTranscriptHook(opts.transcript))
	}
	if a.metrics != nil {
		hookReg.Register(a.metrics)
	}

	pruner := compaction.NewPruner(compaction.DefaultMaxTurns)
	if cfg.WindowTurns > 0 {
		pruner = compaction.NewPruner(cfg.WindowTurns)
	}

	exec, err := executor.New(executor.Config{
		Model:  model,
		Tools:  tools,
		Pruner: pruner,
		Retry: retry.New(
			retry.Config{MaxRetries: cfg.Retry.MaxRetries, Base: cfg.Retry.Base},
			retry.WithLogger(a.log),
		),
		Hooks:         hookReg,
		Logger:        a.log,
		IterationsMax: cfg.Budget.Iterations,
		QueriesMax:    cfg.Budget.Queries,
		MaxTokens:     cfg.Model.MaxTokens,
	})
	if err != nil {
		return err
	}
	a.exec = exec
	return nil
}

// startMetrics serves Prometheus metrics on cfg.MetricsAddr. It does nothing when no
// address is configured.
func (a *app) startMetrics() {
	if a.cfg.MetricsAddr == "" {
		return
	}
	reg := prometheus.NewRegistry()
	a.metrics = metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics: server stopped", "error", err)
		}
	}()
	a.log.Info("metrics: listening", "addr", a.cfg.MetricsAddr)

	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
}

// openInsights connects the insights store when a DSN is configured.
func (a *app) openInsights(ctx context.Context, opts appOptions) error {
	cfg := a.cfg
	if cfg.Insights.DSN == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, cfg.Insights.DSN)
	if err != nil {
		return fmt.Errorf("connecting to insights database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	store := insight.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	pubOpts := []insight.PublisherOption{
		insight.WithThreshold(cfg.Alerts.Threshold),
		insight.WithGeonameID(cfg.Alerts.GeonameID),
		insight.WithLogger(a.log),
	}
	if cfg.Alerts.Enabled && !opts.noAlert {
		client, err := insight.NewAlertClient(cfg.Alerts.BaseURL, cfg.Alerts.APIKey, nil)
		if err != nil {
			return err
		}
		pubOpts = append(pubOpts, insight.WithAlerter(client))
	}
	a.publisher = insight.NewPublisher(store, pubOpts...)
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// buildModel selects the provider adapter.
func buildModel(ctx context.Context, cfg config.ModelConfig) (analyst.Model, error) {
	var (
		model analyst.Model
		err   error
	)
	switch cfg.Provider {
	case config.ProviderAnthropic:
		var m *models.Anthropic
		m, err = models.NewAnthropic(cfg.Name, cfg.APIKey, cfg.BaseURL)
		model = m
	case config.ProviderAnthropicLCG, config.ProviderOpenAI, config.ProviderOpenRouter, config.ProviderGemini:
		var m *models.LCG
		switch cfg.Provider {
		case config.ProviderAnthropicLCG:
			m, err = models.NewAnthropicLCG(cfg.Name, cfg.APIKey, cfg.BaseURL)
		case config.ProviderOpenAI:
			m, err = models.NewOpenAI(cfg.Name, cfg.APIKey, cfg.BaseURL)
		case config.ProviderGemini:
			m, err = models.NewGemini(ctx, cfg.Name, cfg.APIKey)
		default:
			m, err = models.NewOpenRouter(cfg.Name, cfg.APIKey, cfg.AppTitle)
		}
		model = m
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s model: %w", cfg.Provider, err)
	}
	return model, nil
}

// buildExecutor opens the configured database. The returned func closes it.
func buildExecutor(ctx context.Context, cfg config.Config, log *slog.Logger) (analyst.SQLExecutor, func(), error) {
	db := cfg.Database
	switch db.Driver {
	case config.DriverPostgres:
		opts := []sqlexec.PostgresOption{sqlexec.WithPostgresLogger(log)}
		if cfg.Guard.AllowWrite {
			opts = append(opts, sqlexec.AllowWrites())
		}
		pg, err := sqlexec.NewPostgres(ctx, db.DSN, opts...)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil

	case config.DriverClickHouse:
		ch, err := sqlexec.NewClickHouse(ctx, sqlexec.ClickHouseOptions{
			Addr:     db.ClickHouse.Addr,
			Database: db.ClickHouse.Database,
			Username: db.ClickHouse.Username,
			Password: db.ClickHouse.Password,
			Secure:   db.ClickHouse.Secure,
			Logger:   log,
		})
		if err != nil {
			return nil, nil, err
		}
		return ch, func() { _ = ch.Close() }, nil

	case config.DriverMindsDB:
		m := sqlexec.NewMindsDB(db.MindsDBURL, nil)
		if err := m.Ping(ctx); err != nil {
			log.Warn("mindsdb: status check failed", "url", db.MindsDBURL, "error", err)
		}
		return m, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, db.Driver)
	}
}

// openTranscript opens path for appending. An empty path disables the transcript; "-"
// writes to stderr.
func openTranscript(path string) (io.Writer, func(), error) {
	switch path {
	case "":
		return nil, func() {}, nil
	case "-":
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening transcript: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
