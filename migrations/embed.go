// Package migrations embeds the SQL schema migrations applied by golang-migrate.
package migrations

import "embed"

// FS holds the NNN_name.up.sql / NNN_name.down.sql files.
//
//go:embed *.sql
var FS embed.FS
