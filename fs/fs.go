// Package fs embeds static assets shipped with the binary.
package fs

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
