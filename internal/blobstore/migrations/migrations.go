// Package migrations embeds the goose SQL migrations for the photo store.
package migrations

import "embed"

// Migrations holds the SQL migration files, applied in order by goose.
//
//go:embed *.sql
var Migrations embed.FS
