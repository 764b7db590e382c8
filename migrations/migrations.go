// Package migrations embeds the SQL schema for the wishlist tables.
package migrations

import "embed"

// CurrentVersion is the schema version the binary expects.
const CurrentVersion uint = 2

//go:embed *.sql
var FS embed.FS
