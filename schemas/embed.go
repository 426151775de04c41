// Package schemas provides embedded SQL migration files, one directory per
// storage backend.
package schemas

import "embed"

// Migrations contains all SQL migration files.
//
//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql migrations/postgres/*.sql
var Migrations embed.FS
