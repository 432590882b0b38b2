// Package migrations embeds the versioned postgres schema applied by goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
