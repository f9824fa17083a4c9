// Package migrations embeds the journal schema into the binary.
//
// The files follow database.LoadMigrations naming and sit at the root of FS.
package migrations

import "embed"

// FS holds every *.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS
