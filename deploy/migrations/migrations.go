// Package migrations embeds the MySQL schema scripts. Files are applied in
// lexical order of their numeric prefix and must never be edited once
// released; add a new file instead.
package migrations

import "embed"

// Files holds every *.sql script in this directory.
//
//go:embed *.sql
var Files embed.FS
