/*
Package inventory provides the core inventory ledger engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking
  on-hand quantities per (product, lot) via an append-mostly journal of
  inbound/outbound movements. The journal is the source of truth; the
  balance table is a denormalized view kept consistent with it.

KEY CONCEPTS IN THIS FILE (types.go):
  - ProductGroup / Product / Lot: the status hierarchy a movement posts
    against. Plain identifier-keyed records with explicit foreign keys -
    no live object graph.
  - Transaction: a journal entry. Quantity is always positive; direction
    is carried by Type, not sign.
  - Correction: the narrow set of fields a historical transaction may be
    edited to (lot, qty, ref doc, note). Product never changes.
  - TxSnapshot: the relevant-field snapshot captured around a correction
    for the audit trail.

DESIGN PRINCIPLES:
  1. Journal rows are never deleted. Corrections edit fields in place and
     leave an audit entry; nothing else mutates them.
  2. Balances are integers and may go negative - a confirmed shortage is
     a valid state, not an error.
  3. Strong typing for IDs prevents mixing group/product/lot identifiers.

SEE ALSO:
  - guard.go: hierarchy status validation
  - ledger.go: the transactional use cases
  - store.go: persistence interfaces
*/
package inventory

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type GroupID string
type ProductID string
type LotID string
type TxID string

// =============================================================================
// MASTER DATA - the status hierarchy
// =============================================================================

// ProductGroup is the top of the hierarchy. Group name is unique.
type ProductGroup struct {
	ID        GroupID
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product belongs to exactly one group. Code is unique.
type Product struct {
	ID        ProductID
	GroupID   GroupID
	Code      string
	Name      string
	Spec      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Lot belongs to exactly one product.
// (ProductID, MfgDate, LotNo) is unique together.
type Lot struct {
	ID        LotID
	ProductID ProductID
	MfgDate   time.Time
	LotNo     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// TRANSACTION - a journal entry
// =============================================================================

type TxType string

const (
	TxIn  TxType = "IN"
	TxOut TxType = "OUT"
)

func (t TxType) Valid() bool {
	return t == TxIn || t == TxOut
}

// Transaction is an inventory movement. Qty is always > 0; TxIn adds to
// the balance, TxOut subtracts. Rows are immutable once created except
// for the correction path (lot, qty, ref doc, note).
//
// IsVoid is reserved for future soft-cancel semantics. No current flow
// reads or writes it.
type Transaction struct {
	ID         TxID
	Type       TxType
	OccurredAt time.Time
	ProductID  ProductID
	LotID      LotID
	Qty        int64
	RefDoc     string
	Note       string
	CreatedBy  string
	IsVoid     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TxSnapshot captures the correctable fields of a transaction. The
// correction path records one snapshot before and one after the edit.
type TxSnapshot struct {
	LotID  LotID  `json:"lot_id"`
	Qty    int64  `json:"qty"`
	RefDoc string `json:"ref_doc"`
	Note   string `json:"note"`
}

// Snapshot returns the correctable-field view of the transaction.
func (tx Transaction) Snapshot() TxSnapshot {
	return TxSnapshot{LotID: tx.LotID, Qty: tx.Qty, RefDoc: tx.RefDoc, Note: tx.Note}
}

// Correction is a partial edit to a historical transaction. Nil fields
// are left unchanged. The product is fixed: a transaction can move to a
// different lot only if that lot belongs to the same product.
type Correction struct {
	LotID  *LotID
	Qty    *int64
	RefDoc *string
	Note   *string
}

// Apply returns a copy of tx with the correction applied.
func (c Correction) Apply(tx Transaction) Transaction {
	if c.LotID != nil {
		tx.LotID = *c.LotID
	}
	if c.Qty != nil {
		tx.Qty = *c.Qty
	}
	if c.RefDoc != nil {
		tx.RefDoc = *c.RefDoc
	}
	if c.Note != nil {
		tx.Note = *c.Note
	}
	return tx
}

// =============================================================================
// BALANCE - denormalized on-hand per (product, lot)
// =============================================================================

// BalanceKey identifies one on-hand bucket.
type BalanceKey struct {
	ProductID ProductID
	LotID     LotID
}

// BalanceRow is the joined view returned by balance queries: the on-hand
// quantity with its hierarchy context and the last movement timestamp.
type BalanceRow struct {
	GroupName   string
	ProductCode string
	ProductName string
	MfgDate     time.Time
	LotNo       string
	QtyOnHand   int64
	LastTxAt    *time.Time
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

type AuditAction string

const (
	AuditCreate AuditAction = "CREATE"
	AuditUpdate AuditAction = "UPDATE"
)

// AuditEntry records one create/update action against the journal.
// Append-only, never mutated or deleted.
//
// For CREATE, Before is nil and After holds the created payload.
// For UPDATE, both hold the correctable-field snapshots.
type AuditEntry struct {
	ID         string
	EntityType string
	EntityID   string
	Action     AuditAction
	Before     map[string]any
	After      map[string]any
	Reason     string
	Actor      string
	CreatedAt  time.Time
}

// AuditFilter narrows audit queries. Zero values match everything.
type AuditFilter struct {
	EntityType string
	EntityID   string
}
