// Package migrations embeds the SQL schema of the development backend.
package migrations

import "embed"

// FS holds the goose migrations.
//
//go:embed *.sql
var FS embed.FS
