// Package database provides PostgreSQL connection pool construction for the
// current-state store.
package database
