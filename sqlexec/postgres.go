package sqlexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool sizing for NewPostgres.
const (
	PostgresMaxConns        = 10
	PostgresMinConns        = 2
	PostgresMaxConnLifetime = time.Hour
	PostgresMaxConnIdleTime = 30 * time.Minute
	PostgresConnectTimeout  = 5 * time.Second
)

// Postgres executes statements on a pgx connection pool. Statements run inside a
// read-only transaction unless the executor was created with AllowWrites.
type Postgres struct {
	pool        *pgxpool.Pool
	allowWrites bool
	log         *slog.Logger
}

// PostgresOption configures a Postgres executor.
type PostgresOption func(*Postgres)

// AllowWrites runs statements outside a read-only transaction. Pair it with a guard
// configured to allow writes.
func AllowWrites() PostgresOption {
	return func(p *Postgres) { p.allowWrites = true }
}

// WithPostgresLogger sets the logger.
func WithPostgresLogger(l *slog.Logger) PostgresOption {
	return func(p *Postgres) { p.log = l }
}

// NewPostgres connects to dsn and verifies the pool with a ping.
func NewPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = PostgresMaxConns
	poolConfig.MinConns = PostgresMinConns
	poolConfig.MaxConnLifetime = PostgresMaxConnLifetime
	poolConfig.MaxConnIdleTime = PostgresMaxConnIdleTime

	ctx, cancel := context.WithTimeout(ctx, PostgresConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	p := NewPostgresFromPool(pool, opts...)
	p.log.Info("sqlexec: postgres connected",
		"host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database)
	return p, nil
}

// NewPostgresFromPool wraps an existing pool. The caller keeps ownership of the pool
// only if it never calls Close on the executor.
func NewPostgresFromPool(pool *pgxpool.Pool, opts ...PostgresOption) *Postgres {
	p := &Postgres{
		pool: pool,
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pool returns the underlying pool, e.g. to share it with insight.PostgresStore.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// Close closes the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Execute implements analyst.SQLExecutor.
func (p *Postgres) Execute(ctx context.Context, sql string, params ...any) (*analyst.QueryResult, error) {
	if p.allowWrites {
		rows, err := p.pool.Query(ctx, sql, params...)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}
		return collectPgRows(rows)
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(context.WithoutCancel(ctx)); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
			p.log.Warn("sqlexec: rollback failed", "error", rerr)
		}
	}()

	rows, err := tx.Query(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return collectPgRows(rows)
}

func collectPgRows(rows pgx.Rows) (*analyst.QueryResult, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}
	columns = uniqueColumns(columns)

	result := &analyst.QueryResult{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", result.RowCount, err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		result.Rows = append(result.Rows, row)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return result, nil
}

var _ analyst.SQLExecutor = (*Postgres)(nil)
