package migrations

import "embed"

// Files exposes embedded SQL migrations. Postgres files live at the root and
// are applied in lexicographical order; the sqlite/ directory carries the
// SQLite variant used for local development and tests.
//
//go:embed *.sql sqlite/*.sql
var Files embed.FS
