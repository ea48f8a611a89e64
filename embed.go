package backend

import "embed"

// MigrationsFS embeds the SQL schema migrations.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
