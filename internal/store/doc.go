// Package store provides SQLite-backed durable storage for sessions and the
// entities they own.
//
// Tables:
//   - sessions: one experiment run, with its frozen config as canonical JSON
//   - participants: one slot per human, with the runtime page pointer
//   - subsessions: one per (app, round)
//   - players: one per (participant, subsession), with group assignment
//   - page_routes: the (participant, absolute page index) routing table
//   - room_sessions: which session a room currently points at
//
// # Units of Work
//
// Session creation runs inside WithTx. A Tx exposes the bulk inserts and the
// same reads as Store, so code running inside the transaction sees its own
// uncommitted rows. Any error rolls everything back; readers never observe a
// partially built session.
//
// # Ordering
//
// Queries that return lists order by a stable key: participants by
// id_in_session, subsessions and players by (app_index, round_number), page
// routes by page_index.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Cascading deletes from sessions
package store
