// Package store provides a SQLite-backed schemaless document store.
//
// It stands in for the hosted document store of the storefront: documents
// live in collections partitioned per user (see package doc for the layout),
// every write goes through a transaction, and every committed transaction is
// stamped with a store-wide, strictly increasing version.
//
// # Guarantees
//
// Atomic batches: all writes inside RunTx (or a Batch) commit or roll back
// together. Components use this to keep multi-document invariants such as
// "exactly one default address".
//
// Idempotency keys: ClaimKey inserts (scope, key) with ON CONFLICT DO NOTHING
// inside the caller's transaction, so "check for an existing record, then
// create it" happens atomically.
//
// Versions: a transaction that writes claims the next version on its first
// write. Document rows carry the version of their last write, and snapshots
// carry the version current at read time. Versions order writes; wall-clock
// timestamps never do.
//
// Live feed: Watch delivers full collection snapshots after every commit that
// touched the collection. Delivery keeps only the newest pending snapshot per
// watcher and never delivers a snapshot older than one already delivered.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single open connection: SQLite has one writer, and ":memory:" databases
//     live on exactly one connection
package store
