// Package migrations embeds the run history schema for each supported
// database driver.
package migrations

import "embed"

// SqliteMigrations holds the SQLite schema scripts, applied in filename order.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

// PostgresMigrations holds the PostgreSQL schema scripts.
//
//go:embed postgres/*.sql
var PostgresMigrations embed.FS
