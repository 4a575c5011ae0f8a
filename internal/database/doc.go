// Package database provides SQLite-based storage for forestloss.
//
// This package implements the HistoryDB, which stores every completed farm
// analysis so that later runs can list farms, show a farm's history and
// compare the two latest analyses.
//
// Design decision: We use SQLite (via modernc.org/sqlite) because the
// database is a single file in the XDG data directory and the CGO-free
// driver allows easy cross-compilation. Queries go through sqlx so rows
// scan straight into tagged structs.
package database
