// Package store is the local replica: one SQLite table per entity kind, a
// watermark table and a metadata table, versioned by embedded goose
// migrations.
//
// Every mutating call runs in its own transaction scoped to a single row, so
// a crash mid-write never leaves a row whose values, update map and dirty
// mask disagree. Cross-row consistency is never required.
//
// A Store is constructed explicitly and handed to the sync engine. Reset
// wipes the replica and rotates the client instance id; Reopen reconnects
// to the same DSN.
package store
