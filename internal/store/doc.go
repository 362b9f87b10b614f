// Package store provides SQLite-backed storage for entity records.
//
// A record is the persisted form of one entity: its identity, attribute
// values, relationship targets (as identity tuples, never as nested
// content), flags and a revision counter.
//
// # Invariants
//
//   - Records are keyed by (type, id). New entities without a server id are
//     not stored.
//   - revision starts at 1 and increments only when a write changes the
//     record's content fingerprint. Rewriting identical content is a no-op.
//   - List queries are ordered by type, id COLLATE BINARY so results are
//     identical across runs.
//   - Attribute, relationship and error payloads are stored as canonical
//     JSON (see value.MarshalCanonical).
//
// # Connection
//
// Settings are passed as go-sqlite3 DSN parameters so they hold on every
// connection: WAL journal, synchronous=NORMAL, a 5s busy timeout and foreign
// keys on. The pool is limited to one connection.
//
// # Migrations
//
// schema.sql is version 0. Each later change is an entry in migrations,
// applied in its own transaction and recorded in PRAGMA user_version.
package store
