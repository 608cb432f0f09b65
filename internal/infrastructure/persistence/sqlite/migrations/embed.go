package migrations

import "embed"

// FS contains embedded SQLite migrations for the ledger host.
//
//go:embed *.sql
var FS embed.FS
