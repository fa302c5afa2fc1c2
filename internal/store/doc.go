// Package store provides persistent storage for the gateway using SQLite.
//
// The only persisted data is the tool call audit log: one row per
// tools/call, carrying the session, tool, domain, tenant fingerprint,
// outcome and duration. Credentials and upstream payloads are never stored.
//
// SQLiteStore is backed by modernc.org/sqlite (pure Go, no cgo). Pass
// MemoryPath for a throwaway in-memory database. MockStore implements the
// same Store interface without SQLite for tests in other packages.
package store
