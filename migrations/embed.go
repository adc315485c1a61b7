// Package migrations embeds the schema files applied at startup by the
// database pool.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
