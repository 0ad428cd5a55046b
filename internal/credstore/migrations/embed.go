// Package migrations embeds the goose migrations for the persistent
// credential tier.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
