// Package migrations embeds the goose SQL migrations shared by postgres and sqlite3.
package migrations

import "embed"

// FS holds every *.sql migration file.
//
//go:embed *.sql
var FS embed.FS
