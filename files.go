package users

import (
	"embed"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the SQL migrations for the users and
// user_preferences tables
func GetMigrationsFS() embed.FS {
	return migrationsFS
}
