// Package migrations holds the project's migration files. Each file
// registers itself into Set from init; scaffold new ones with
// "basalt makemigration <name>".
package migrations

import "github.com/hollis-dev/basalt/internal/migrate"

// Set is the project migration set, in version order.
var Set = migrate.NewSet()
