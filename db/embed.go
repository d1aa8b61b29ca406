package db

import "embed"

// MigrationFS embeds the goose SQL migrations so binaries do not depend on
// the working directory.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS

// MigrationsDir is the directory inside MigrationFS holding the migrations.
const MigrationsDir = "migrations"
