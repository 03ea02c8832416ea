package sqlexec

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const (
	clickHouseDialTimeout      = 10 * time.Second
	clickHouseMaxExecutionTime = 60
)

// ClickHouseOptions are the connection settings for NewClickHouse.
type ClickHouseOptions struct {
	Addr     string
	Database string
	Username string
	Password string
	Secure   bool
	Logger   *slog.Logger
}

// ClickHouseQuerier is the subset of driver.Conn the executor needs.
type ClickHouseQuerier interface {
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	Ping(ctx context.Context) error
	Close() error
}

// ClickHouse executes statements over the native ClickHouse protocol.
type ClickHouse struct {
	conn ClickHouseQuerier
	log  *slog.Logger
}

// NewClickHouse opens a connection and pings the server.
func NewClickHouse(ctx context.Context, opts ClickHouseOptions) (*ClickHouse, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:9000"
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.Username == "" {
		opts.Username = "default"
	}

	chOpts := &clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": clickHouseMaxExecutionTime,
		},
		DialTimeout: clickHouseDialTimeout,
	}
	if opts.Secure {
		chOpts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(chOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	c := NewClickHouseFromConn(conn, opts.Logger)
	c.log.Info("sqlexec: clickhouse connected", "addr", opts.Addr, "database", opts.Database)
	return c, nil
}

// NewClickHouseFromConn wraps an open connection. A nil logger discards output.
func NewClickHouseFromConn(conn ClickHouseQuerier, log *slog.Logger) *ClickHouse {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ClickHouse{conn: conn, log: log}
}

// Close closes the connection.
func (c *ClickHouse) Close() error {
	return c.conn.Close()
}

// Execute implements analyst.SQLExecutor. The native driver scans into typed targets, so
// each row is scanned into fresh values of the column scan types.
func (c *ClickHouse) Execute(ctx context.Context, sql string, params ...any) (*analyst.QueryResult, error) {
	rows, err := c.conn.Query(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns := uniqueColumns(rows.Columns())
	types := rows.ColumnTypes()
	if len(types) != len(columns) {
		return nil, fmt.Errorf("driver reported %d column types for %d columns", len(types), len(columns))
	}

	result := &analyst.QueryResult{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		dest := make([]any, len(types))
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("reading row %d: %w", result.RowCount, err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalize(dest[i])
		}
		result.Rows = append(result.Rows, row)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return result, nil
}

var _ analyst.SQLExecutor = (*ClickHouse)(nil)
