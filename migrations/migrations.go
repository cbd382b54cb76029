// Package migrations embeds the schema applied by database.Migrate.
// Files are applied in name order; each must be safe to re-run.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
