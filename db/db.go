// Package db holds the SQL schema migrations of the oracle pusher.
package db

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the migration files at the root of the returned FS.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic("db: migrations directory missing from embed: " + err.Error())
	}
	return sub
}
