// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic; the SQL implementations live in
// internal/platform/sqldb and run on both PostgreSQL and SQLite.
package store
