// Package db embeds the SQL migrations for the asset cache tables.
package db

import "embed"

// Migrations holds one directory of migrations per SQL driver.
//
//go:embed postgres/*.sql sqlite/*.sql
var Migrations embed.FS
