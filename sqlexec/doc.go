// Package sqlexec provides analyst.SQLExecutor implementations for Postgres (pgx),
// ClickHouse (native protocol) and the MindsDB SQL API.
//
// Executors return every row the statement produces; bounding result size is the job of
// the guard's LIMIT rules and the shaper. Values are normalized for JSON: byte slices and
// UUIDs become strings, timestamps RFC 3339 strings in UTC, numerics float64.
package sqlexec
