// Package migrations embeds the SQL migrations of the SQLite rule store.
package migrations

import "embed"

// FS contains all goose migration SQL files.
//
//go:embed *.sql
var FS embed.FS
