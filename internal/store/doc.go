// Package store provides SQLite-backed local state for procsync.
//
// One database file holds two things:
//   - a procedure directory (table procedures) implementing remote.Directory,
//     used as a local deployment target
//   - the deployment ledger (tables runs and outcomes) recording every
//     script outcome of every run
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Ledger reads are ordered by seq, then container and script with
// COLLATE BINARY, so history output is stable.
package store
