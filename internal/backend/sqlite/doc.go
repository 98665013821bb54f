// Package sqlite implements the work-item backend on an embedded SQLite
// database.
//
// The store runs in WAL mode so readers never block the single writer, and
// every claim is one conditional UPDATE...RETURNING statement: selection of
// the oldest claimable item and its transition to claimed happen in the same
// statement, so racing workers can never claim the same row. Schema changes
// ship as ordered migration files applied inside a transaction and recorded
// in schema_migrations; a database recording a version this engine does not
// know refuses to open.
//
// Attachments below the configured threshold live inline as BLOBs in the
// index table; larger ones go to the filesystem byte area with the stable
// path recorded alongside the index entry.
package sqlite
