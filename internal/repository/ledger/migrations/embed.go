// Package migrations embeds the ledger schema.
package migrations

import "embed"

// FS holds the numbered *.up.sql files applied in order.
//
//go:embed *.sql
var FS embed.FS
