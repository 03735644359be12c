// Package migrations embeds the SQL migration files so the service can
// apply them at startup without shipping loose files alongside the binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
