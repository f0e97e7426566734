package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/inventory-ledger/inventory"
	"github.com/warp/inventory-ledger/inventory/store"
)

func seedTx(id inventory.TxID, typ inventory.TxType, qty int64) inventory.Transaction {
	now := time.Date(2026, time.January, 20, 10, 0, 0, 0, time.UTC)
	return inventory.Transaction{
		ID: id, Type: typ, OccurredAt: now,
		ProductID: "prod-1", LotID: "lot-1", Qty: qty,
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestMemory_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: a store with one journal row and a balance of 10
	// WHEN: a transaction writes more rows and deltas, then fails
	// THEN: journal, balances and audits are back to the pre-tx state

	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.AppendTransaction(ctx, seedTx("tx-1", inventory.TxIn, 10)))
	require.NoError(t, mem.ApplyDelta(ctx, "prod-1", "lot-1", 10))

	boom := errors.New("boom")
	err := mem.WithTx(ctx, func(s inventory.Store) error {
		if err := s.AppendTransaction(ctx, seedTx("tx-2", inventory.TxOut, 4)); err != nil {
			return err
		}
		if err := s.ApplyDelta(ctx, "prod-1", "lot-1", -4); err != nil {
			return err
		}
		if err := s.AppendAudit(ctx, inventory.AuditEntry{ID: "a-1", EntityID: "tx-2"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Len(t, mem.Transactions(), 1)
	q, err := mem.QtyOnHand(ctx, "prod-1", "lot-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), q)
	assert.Empty(t, mem.AuditEntries(inventory.AuditFilter{}))
}

func TestMemory_WithTx_CommitsOnSuccess(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	err := mem.WithTx(ctx, func(s inventory.Store) error {
		if err := s.AppendTransaction(ctx, seedTx("tx-1", inventory.TxIn, 6)); err != nil {
			return err
		}
		return s.ApplyDelta(ctx, "prod-1", "lot-1", 6)
	})
	require.NoError(t, err)

	q, err := mem.QtyOnHand(ctx, "prod-1", "lot-1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), q)
}

func TestMemory_RecomputeBalance_RebuildsFromJournal(t *testing.T) {
	// GIVEN: a drifted balance that no longer matches the journal
	// WHEN: the balance is recomputed
	// THEN: the journal sum wins

	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.AppendTransaction(ctx, seedTx("tx-1", inventory.TxIn, 10)))
	require.NoError(t, mem.AppendTransaction(ctx, seedTx("tx-2", inventory.TxOut, 3)))
	require.NoError(t, mem.ApplyDelta(ctx, "prod-1", "lot-1", 99)) // drift

	got, err := mem.RecomputeBalance(ctx, "prod-1", "lot-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)

	q, err := mem.QtyOnHand(ctx, "prod-1", "lot-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), q)
}

func TestMemory_AppendTransaction_RejectsBadRows(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	err := mem.AppendTransaction(ctx, seedTx("tx-1", inventory.TxIn, 0))
	assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)

	err = mem.AppendTransaction(ctx, seedTx("tx-2", "ADJUST", 5))
	assert.ErrorIs(t, err, inventory.ErrInvalidTxType)
}

func TestMemory_UniqueKeys_Enforced(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SaveGroup(ctx, inventory.ProductGroup{ID: "g1", Name: "Raw"}))
	err := mem.SaveGroup(ctx, inventory.ProductGroup{ID: "g2", Name: "Raw"})
	assert.ErrorIs(t, err, inventory.ErrDuplicateKey)

	require.NoError(t, mem.SaveProduct(ctx, inventory.Product{ID: "p1", GroupID: "g1", Code: "C-1"}))
	err = mem.SaveProduct(ctx, inventory.Product{ID: "p2", GroupID: "g1", Code: "C-1"})
	assert.ErrorIs(t, err, inventory.ErrDuplicateKey)

	mfg := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, mem.SaveLot(ctx, inventory.Lot{ID: "l1", ProductID: "p1", MfgDate: mfg, LotNo: "A"}))
	err = mem.SaveLot(ctx, inventory.Lot{ID: "l2", ProductID: "p1", MfgDate: mfg, LotNo: "A"})
	assert.ErrorIs(t, err, inventory.ErrDuplicateKey)

	// Re-saving the same record is an update, not a duplicate.
	assert.NoError(t, mem.SaveGroup(ctx, inventory.ProductGroup{ID: "g1", Name: "Raw"}))
}
