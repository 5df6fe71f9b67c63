// Package store provides SQLite-backed storage for account snapshots and the
// state-table ledger.
//
// Two tables:
//   - accounts: the current record per account (data, timestamp, hash)
//   - state_table: the append-only transition log, with sync anchors
//
// # Critical Patterns
//
// Single writer per change
//   - Every write that changes an account also writes its state_table row in
//     the same SQL transaction, so the stored hash always equals the hash at
//     the tail of the account's chain.
//
// Compare-and-set commits
//   - CommitTransition refuses to write unless every entry's stateBefore
//     equals both the stored hash and the chain tail.
//
// Deterministic Query Results
//   - Account queries order by account_id COLLATE BINARY
//   - Ledger queries order by seq (commit order)
//   - Empty results are empty slices, never nil
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// The store never computes hashes. Callers pass records whose Hash was
// produced by the application's hash function.
package store
