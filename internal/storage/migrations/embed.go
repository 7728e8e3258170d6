// Package migrations carries the embedded schema for both backing
// stores and applies the files in lexical order.
package migrations

import "embed"

// PostgresFS embeds the ledger schema: trades, capital accounts and
// execution records.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the price timeseries schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
