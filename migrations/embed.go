// Package migrations holds the PostgreSQL schema as golang-migrate SQL files
package migrations

import "embed"

// Files is the embedded migration set
//
//go:embed *.sql
var Files embed.FS
