// Package migrations embeds the SQL schema for the usage ledger.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
