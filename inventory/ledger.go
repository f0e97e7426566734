/*
ledger.go - Transactional use cases over the journal

PURPOSE:
  The Ledger is the orchestrator for every movement against the journal:
  post inbound, post outbound (with the shortage confirmation handshake),
  and correct a historical transaction. Each use case sequences the
  status guard, the journal write, the balance update and the audit
  write as ONE atomic unit via TxStore.WithTx.

USE CASES:
  PostInbound:
    guard -> product match -> append IN -> balance +qty -> audit CREATE

  PostOutbound:
    guard -> product match -> read on-hand -> if short and unconfirmed,
    fail with InsufficientStock{CurrentQty, RequiresConfirm} -> append
    OUT -> balance -qty -> audit CREATE

  Correct:
    guard on the effective target lot -> product match -> snapshot ->
    in-place field edit -> recompute balance for EVERY touched
    (product, lot) pair -> audit UPDATE with before/after and reason

WHY RECOMPUTE, NOT DELTA, ON CORRECTION:
  Editing a historical row can change qty or move the row to a different
  lot, invalidating incremental bookkeeping for up to two pairs. The
  correction path always rebuilds both pairs from the full journal sum.

SHORTAGE HANDSHAKE:
  An OUT that would drive the balance negative is soft-blocked unless the
  caller confirms. Confirmed shortages go through and the balance goes
  negative - a valid, deliberate state.

SEE ALSO:
  - guard.go: hierarchy validation
  - store.go: the persistence contract this sequences
*/
package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EntityInventoryTx is the audit entity type for journal rows.
const EntityInventoryTx = "inventory_tx"

// Ledger sequences the guard, journal, balance and audit trail.
type Ledger struct {
	store TxStore
	log   logrus.FieldLogger

	// Overridable for deterministic tests.
	now   func() time.Time
	newID func() string
}

func NewLedger(store TxStore, log logrus.FieldLogger) *Ledger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ledger{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// PostInput is a movement request. Qty must be positive; direction comes
// from the operation, not the sign.
type PostInput struct {
	ProductID ProductID
	LotID     LotID
	Qty       int64
	RefDoc    string
	Note      string
	Actor     string
}

// =============================================================================
// POST INBOUND
// =============================================================================

// PostInbound records an IN movement and adds Qty to the balance.
func (l *Ledger) PostInbound(ctx context.Context, in PostInput) (*Transaction, error) {
	var posted *Transaction
	err := l.store.WithTx(ctx, func(s Store) error {
		if err := l.assertPostable(ctx, s, in); err != nil {
			return err
		}
		tx, err := l.appendMovement(ctx, s, TxIn, in)
		if err != nil {
			return err
		}
		if err := s.ApplyDelta(ctx, in.ProductID, in.LotID, in.Qty); err != nil {
			return err
		}
		if err := s.AppendAudit(ctx, l.createAudit(tx, in.Actor)); err != nil {
			return err
		}
		posted = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"tx_id":      posted.ID,
		"product_id": in.ProductID,
		"lot_id":     in.LotID,
		"qty":        in.Qty,
	}).Info("inbound posted")
	return posted, nil
}

// =============================================================================
// POST OUTBOUND
// =============================================================================

// PostOutbound records an OUT movement and subtracts Qty from the
// balance. If the result would be negative and confirmShortage is false,
// it fails with InsufficientStock carrying the current quantity; the
// caller resubmits with confirmShortage=true to force the shortage.
func (l *Ledger) PostOutbound(ctx context.Context, in PostInput, confirmShortage bool) (*Transaction, error) {
	var posted *Transaction
	err := l.store.WithTx(ctx, func(s Store) error {
		// Guard before the balance read: a bad lot reference must surface
		// as NotFound/Inactive/ProductMismatch, never as a shortage.
		if err := l.assertPostable(ctx, s, in); err != nil {
			return err
		}

		current, err := s.QtyOnHand(ctx, in.ProductID, in.LotID)
		if err != nil {
			return err
		}
		if current-in.Qty < 0 && !confirmShortage {
			return &InsufficientStockError{
				ProductID:       in.ProductID,
				LotID:           in.LotID,
				CurrentQty:      current,
				Requested:       in.Qty,
				RequiresConfirm: true,
			}
		}

		tx, err := l.appendMovement(ctx, s, TxOut, in)
		if err != nil {
			return err
		}
		if err := s.ApplyDelta(ctx, in.ProductID, in.LotID, -in.Qty); err != nil {
			return err
		}
		if err := s.AppendAudit(ctx, l.createAudit(tx, in.Actor)); err != nil {
			return err
		}
		posted = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"tx_id":      posted.ID,
		"product_id": in.ProductID,
		"lot_id":     in.LotID,
		"qty":        in.Qty,
		"confirmed":  confirmShortage,
	}).Info("outbound posted")
	return posted, nil
}

// assertPostable runs the status guard and the product-match check for a
// movement request.
func (l *Ledger) assertPostable(ctx context.Context, s Store, in PostInput) error {
	guard := NewStatusGuard(s)
	lot, err := guard.AssertPostable(ctx, in.LotID)
	if err != nil {
		return err
	}
	if lot.ProductID != in.ProductID {
		return &ProductMismatchError{
			LotID:         in.LotID,
			LotProductID:  lot.ProductID,
			WantProductID: in.ProductID,
		}
	}
	return nil
}

// appendMovement builds and appends the journal row. Callers run
// assertPostable first.
func (l *Ledger) appendMovement(ctx context.Context, s Store, typ TxType, in PostInput) (*Transaction, error) {
	now := l.now()
	tx := Transaction{
		ID:         TxID(l.newID()),
		Type:       typ,
		OccurredAt: now,
		ProductID:  in.ProductID,
		LotID:      in.LotID,
		Qty:        in.Qty,
		RefDoc:     in.RefDoc,
		Note:       in.Note,
		CreatedBy:  in.Actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.AppendTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// =============================================================================
// CORRECT TRANSACTION
// =============================================================================

// Correct applies an in-place field edit to a historical transaction.
// The product is fixed: a lot change must stay within the transaction's
// product and pass the status guard exactly as a new posting would.
// Balances for the original and (if changed) new lot are rebuilt from
// the full journal sum. Reason is audit metadata only; it is never
// stored on the journal row.
func (l *Ledger) Correct(ctx context.Context, txID TxID, patch Correction, reason, actor string) (*Transaction, error) {
	if patch.Qty != nil && *patch.Qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	var corrected *Transaction
	err := l.store.WithTx(ctx, func(s Store) error {
		tx, err := s.GetTransaction(ctx, txID)
		if err != nil {
			return err
		}
		if tx == nil {
			return &NotFoundError{Kind: "transaction", ID: string(txID)}
		}

		targetLot := tx.LotID
		if patch.LotID != nil {
			targetLot = *patch.LotID
		}
		guard := NewStatusGuard(s)
		lot, err := guard.AssertPostable(ctx, targetLot)
		if err != nil {
			return err
		}
		if lot.ProductID != tx.ProductID {
			return &ProductMismatchError{
				LotID:         targetLot,
				LotProductID:  lot.ProductID,
				WantProductID: tx.ProductID,
			}
		}

		before := tx.Snapshot()
		updated := patch.Apply(*tx)
		updated.UpdatedAt = l.now()
		if err := s.UpdateTransaction(ctx, updated); err != nil {
			return err
		}

		// Rebuild every pair the edit touched: the original lot and, if
		// the row moved, the new one.
		touched := map[LotID]struct{}{before.LotID: {}, updated.LotID: {}}
		for lotID := range touched {
			if _, err := s.RecomputeBalance(ctx, tx.ProductID, lotID); err != nil {
				return err
			}
		}

		after := updated.Snapshot()
		entry := AuditEntry{
			ID:         l.newID(),
			EntityType: EntityInventoryTx,
			EntityID:   string(tx.ID),
			Action:     AuditUpdate,
			Before:     snapshotFields(before),
			After:      snapshotFields(after),
			Reason:     reason,
			Actor:      actor,
			CreatedAt:  l.now(),
		}
		if err := s.AppendAudit(ctx, entry); err != nil {
			return err
		}
		corrected = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"tx_id":  corrected.ID,
		"reason": reason,
	}).Info("transaction corrected")
	return corrected, nil
}

// =============================================================================
// AUDIT PAYLOADS
// =============================================================================

func (l *Ledger) createAudit(tx *Transaction, actor string) AuditEntry {
	return AuditEntry{
		ID:         l.newID(),
		EntityType: EntityInventoryTx,
		EntityID:   string(tx.ID),
		Action:     AuditCreate,
		After: map[string]any{
			"type":       string(tx.Type),
			"product_id": string(tx.ProductID),
			"lot_id":     string(tx.LotID),
			"qty":        tx.Qty,
			"ref_doc":    tx.RefDoc,
			"note":       tx.Note,
		},
		Actor:     actor,
		CreatedAt: l.now(),
	}
}

func snapshotFields(s TxSnapshot) map[string]any {
	return map[string]any{
		"lot_id":  string(s.LotID),
		"qty":     s.Qty,
		"ref_doc": s.RefDoc,
		"note":    s.Note,
	}
}
