package migrations

import "embed"

// FS holds the schema migration files applied by the migrate command.
//
//go:embed *.sql
var FS embed.FS

// Files lists migrations in apply order.
var Files = []string{
	"001_create_workflows.sql",
}
