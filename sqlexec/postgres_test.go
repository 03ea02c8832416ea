package sqlexec

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestNormalize(t *testing.T) {
	name := "Bristol"
	var missing *string

	tests := []struct {
		name     string
		input    any
		expected any
	}{
		{"nil", nil, nil},
		{"bytes", []byte("raw"), "raw"},
		{"uuid", [16]byte{0x6b, 0xa7, 0xb8, 0x10, 0x9d, 0xad, 0x11, 0xd1, 0x80, 0xb4, 0x00, 0xc0, 0x4f, 0xd4, 0x30, 0xc8},
			"6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"time", time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600)), "2025-01-02T02:04:05Z"},
		{"numeric", pgtype.Numeric{Int: big.NewInt(1250), Exp: -2, Valid: true}, 12.5},
		{"null numeric", pgtype.Numeric{}, nil},
		{"pointer", &name, "Bristol"},
		{"nil pointer", missing, nil},
		{"big int", big.NewInt(77), int64(77)},
		{"passthrough", int32(3), int32(3)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, normalize(tc.input))
		})
	}
}

func TestUniqueColumns(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "empty", input: []string{}, expected: []string{}},
		{name: "unique", input: []string{"id", "city"}, expected: []string{"id", "city"}},
		{name: "pair", input: []string{"id", "id"}, expected: []string{"id", "id_2"}},
		{name: "triple", input: []string{"id", "city", "id", "id"}, expected: []string{"id", "city", "id_2", "id_3"}},
		{name: "suffix already used", input: []string{"id", "id_2", "id"}, expected: []string{"id", "id_2", "id_3"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, uniqueColumns(tc.input))
		})
	}
}

func TestPostgres_Execute(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("analytics"),
		postgres.WithUsername("analyst"),
		postgres.WithPassword("analyst"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Seed through a write-enabled executor.
	writer, err := NewPostgres(ctx, dsn, AllowWrites())
	require.NoError(t, err)
	defer writer.Close()

	_, err = writer.Execute(ctx, `CREATE TABLE events (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		city TEXT NOT NULL,
		amount NUMERIC(10,2),
		raw_data JSONB
	)`)
	require.NoError(t, err)
	_, err = writer.Execute(ctx,
		`INSERT INTO events (city, amount, raw_data) VALUES ($1, $2, '{"k":1}'), ($3, NULL, NULL)`,
		"Bristol", "12.50", "Leeds")
	require.NoError(t, err)

	reader, err := NewPostgres(ctx, dsn)
	require.NoError(t, err)
	defer reader.Close()

	result, err := reader.Execute(ctx, `SELECT city, amount FROM events ORDER BY city LIMIT 10`)
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "amount"}, result.Columns)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, []map[string]any{
		{"city": "Bristol", "amount": 12.5},
		{"city": "Leeds", "amount": nil},
	}, result.Rows)

	t.Run("read-only transaction rejects writes", func(t *testing.T) {
		_, err := reader.Execute(ctx, `DELETE FROM events`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read-only")
	})

	t.Run("bind parameters", func(t *testing.T) {
		result, err := reader.Execute(ctx, `SELECT city FROM events WHERE city = $1 LIMIT 1`, "Leeds")
		require.NoError(t, err)
		assert.Equal(t, []map[string]any{{"city": "Leeds"}}, result.Rows)
	})

	t.Run("duplicate column names", func(t *testing.T) {
		result, err := reader.Execute(ctx,
			`SELECT a.city, b.city FROM events a JOIN events b ON a.city < b.city LIMIT 1`)
		require.NoError(t, err)
		assert.Equal(t, []string{"city", "city_2"}, result.Columns)
		assert.Equal(t, []map[string]any{{"city": "Bristol", "city_2": "Leeds"}}, result.Rows)
	})

	t.Run("uuid column", func(t *testing.T) {
		result, err := reader.Execute(ctx, `SELECT id FROM events LIMIT 1`)
		require.NoError(t, err)
		require.Len(t, result.Rows, 1)
		assert.Len(t, result.Rows[0]["id"], 36)
	})
}
