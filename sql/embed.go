// Package migrations embeds the goose migrations of the subject store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
