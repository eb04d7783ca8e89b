// Package migrations embeds the run history schema for each supported
// database so the binary carries its own migrations.
package migrations

import "embed"

//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
