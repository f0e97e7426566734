/*
store.go - Persistence interfaces for the inventory ledger

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  MasterReader:  Hierarchy lookups for the status guard
  JournalStore:  Transaction append + narrow in-place correction
  BalanceStore:  On-hand quantity upsert and recompute
  AuditStore:    Append-only audit trail
  TxStore:       Atomic multi-write units (WithTx)

NO DELETE CONTRACT:
  No interface in this file exposes a way to delete a journal row. That
  is deliberate: deletion is blocked structurally, at the storage layer
  (the SQLite implementation installs a trigger that rejects DELETE on
  the journal table unconditionally, so even direct SQL access cannot
  remove history).

ATOMIC UNITS:
  Every orchestrator use case (post inbound, post outbound, correct)
  executes inside a single WithTx unit spanning the guard check, the
  journal write, the balance upsert/recompute and the audit write. If fn
  returns an error the whole unit rolls back; no partial state is ever
  observable across the operation boundary.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite
  - inventory/store/memory.go: in-memory for testing
*/
package inventory

import "context"

// =============================================================================
// MASTER DATA - lookups consumed by the guard
// =============================================================================

// MasterReader resolves the product hierarchy by id. Getters return
// (nil, nil) when the entity does not exist; the guard decides whether
// that is NotFound or Inactive.
type MasterReader interface {
	GetGroup(ctx context.Context, id GroupID) (*ProductGroup, error)
	GetProduct(ctx context.Context, id ProductID) (*Product, error)
	GetLot(ctx context.Context, id LotID) (*Lot, error)
}

// =============================================================================
// JOURNAL - append-mostly movement log
// =============================================================================

// JournalStore persists inventory transactions.
//
// INVARIANTS (enforced by implementations):
//   - AppendTransaction rejects qty <= 0 and types other than IN/OUT.
//   - UpdateTransaction touches only the correctable fields
//     (lot, qty, ref doc, note) plus the updated-at stamp. ProductID and
//     Type are never rewritten.
//   - There is no delete operation, here or anywhere else.
type JournalStore interface {
	// AppendTransaction persists a new movement.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// GetTransaction returns (nil, nil) when the row does not exist.
	GetTransaction(ctx context.Context, id TxID) (*Transaction, error)

	// UpdateTransaction applies a correction to an existing row.
	UpdateTransaction(ctx context.Context, tx Transaction) error
}

// =============================================================================
// BALANCE - denormalized on-hand per (product, lot)
// =============================================================================

// BalanceStore owns qty_on_hand per (product, lot).
type BalanceStore interface {
	// QtyOnHand returns the stored quantity, or 0 if no balance row
	// exists yet. A pure read; no row is created.
	QtyOnHand(ctx context.Context, productID ProductID, lotID LotID) (int64, error)

	// ApplyDelta upserts: creates the row at delta if absent, else adds
	// delta. Implementations must make the read-modify-write atomic
	// (single UPDATE ... SET qty = qty + delta, or a row lock).
	ApplyDelta(ctx context.Context, productID ProductID, lotID LotID, delta int64) error

	// RecomputeBalance overwrites (or creates) the balance row from the
	// full journal sum for the pair and returns the computed value. Used
	// after corrections, where incremental deltas are invalid.
	RecomputeBalance(ctx context.Context, productID ProductID, lotID LotID) (int64, error)
}

// =============================================================================
// AUDIT - append-only action trail
// =============================================================================

// AuditStore appends audit entries. Entries are never mutated or deleted.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
}

// =============================================================================
// COMPOSED STORE
// =============================================================================

// Store is everything one orchestrator use case needs inside a
// transaction boundary.
type Store interface {
	MasterReader
	JournalStore
	BalanceStore
	AuditStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error,
	// every write inside the unit is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
