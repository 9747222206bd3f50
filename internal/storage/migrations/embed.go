// Package migrations embeds and applies the SQL schema of the price stores.
package migrations

import "embed"

// PostgresFS holds the station, price and variation schema.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the variation history schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
