// Package migrations compiles the SQL migration files into the binary,
// so graypower deployments never need loose .sql files alongside the
// executable. Importing this package for side effects wires the
// embedded filesystem into the database layer.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-power/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	// The embedded files sit at the root of this FS.
	database.MigrationsDir = "."
}
