// Package migrations embeds the SQL migration files executed at startup.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS

// Dir is the embedded directory name expected by the migration runner.
const Dir = "."
