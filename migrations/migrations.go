// Package migrations ships the SQL schema with the binary.
package migrations

import "embed"

// FS holds the numbered .sql files at its root.
//
//go:embed *.sql
var FS embed.FS
