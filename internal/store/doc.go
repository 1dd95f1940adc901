// Package store keeps the latest value of every entity in a relational table.
//
// Only current state is kept: each publish upserts one row per entity and
// removes rows for entities that are no longer projected. Availability is a
// single row in bridge_status.
//
// Two backends share the schema: PostgreSQL through a pgx pool and an
// embedded SQLite file through database/sql.
package store
