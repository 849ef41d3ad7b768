// Package migrations embeds the SQL schema files into the binary.
package migrations

import "embed"

// FS holds the forward migrations at its root.
//
//go:embed *.up.sql
var FS embed.FS
