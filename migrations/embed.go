// Package migrations embeds the SQL schema migrations for the SQL-backed
// key-value stores.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
