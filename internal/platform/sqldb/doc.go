// Package sqldb implements the store interfaces on database/sql.
//
// Two drivers are supported: PostgreSQL through pgx's database/sql adapter
// and SQLite through the pure Go modernc driver, which needs no server and
// is the default for local development and tests. Queries use $n
// placeholders and ON CONFLICT clauses that both dialects accept. Schema
// migrations are embedded per dialect and applied with goose.
package sqldb
