package inventory_test

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

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	ledger *inventory.Ledger
	store  *store.Memory

	group    inventory.ProductGroup
	product  inventory.Product
	lot      inventory.Lot
	otherLot inventory.Lot // second lot of the same product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()
	now := time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)

	f := &fixture{
		ledger: inventory.NewLedger(mem, nil),
		store:  mem,
		group: inventory.ProductGroup{
			ID: "grp-1", Name: "Raw Materials", IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		},
		product: inventory.Product{
			ID: "prod-1", GroupID: "grp-1", Code: "RM-001", Name: "Resin",
			IsActive: true, CreatedAt: now, UpdatedAt: now,
		},
		lot: inventory.Lot{
			ID: "lot-1", ProductID: "prod-1",
			MfgDate: time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC),
			LotNo:   "L-A", IsActive: true, CreatedAt: now, UpdatedAt: now,
		},
		otherLot: inventory.Lot{
			ID: "lot-2", ProductID: "prod-1",
			MfgDate: time.Date(2026, time.January, 11, 0, 0, 0, 0, time.UTC),
			LotNo:   "L-B", IsActive: true, CreatedAt: now, UpdatedAt: now,
		},
	}

	require.NoError(t, mem.SaveGroup(ctx, f.group))
	require.NoError(t, mem.SaveProduct(ctx, f.product))
	require.NoError(t, mem.SaveLot(ctx, f.lot))
	require.NoError(t, mem.SaveLot(ctx, f.otherLot))
	return f
}

func (f *fixture) input(qty int64) inventory.PostInput {
	return inventory.PostInput{
		ProductID: f.product.ID,
		LotID:     f.lot.ID,
		Qty:       qty,
		RefDoc:    "PO-100",
		Actor:     "tester",
	}
}

func (f *fixture) qty(t *testing.T) int64 {
	t.Helper()
	q, err := f.store.QtyOnHand(context.Background(), f.product.ID, f.lot.ID)
	require.NoError(t, err)
	return q
}

// =============================================================================
// POSTING TESTS
// =============================================================================

func TestLedger_PostInbound_IncreasesBalance(t *testing.T) {
	// GIVEN: an empty lot
	// WHEN: 10 units come in
	// THEN: on-hand is 10 and a CREATE audit entry exists

	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.ledger.PostInbound(ctx, f.input(10))
	require.NoError(t, err)

	assert.Equal(t, inventory.TxIn, tx.Type)
	assert.Equal(t, int64(10), tx.Qty)
	assert.Equal(t, int64(10), f.qty(t))

	audits := f.store.AuditEntries(inventory.AuditFilter{
		EntityType: inventory.EntityInventoryTx,
		EntityID:   string(tx.ID),
	})
	require.Len(t, audits, 1)
	assert.Equal(t, inventory.AuditCreate, audits[0].Action)
	assert.Nil(t, audits[0].Before)
	assert.Equal(t, "tester", audits[0].Actor)
}

func TestLedger_PostOutbound_DecreasesBalance(t *testing.T) {
	// GIVEN: 10 on hand
	// WHEN: 3 units go out
	// THEN: on-hand is 7

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.PostInbound(ctx, f.input(10))
	require.NoError(t, err)

	tx, err := f.ledger.PostOutbound(ctx, f.input(3), false)
	require.NoError(t, err)

	assert.Equal(t, inventory.TxOut, tx.Type)
	assert.Equal(t, int64(7), f.qty(t))
}

func TestLedger_PostOutbound_Shortage_NeedsConfirmation(t *testing.T) {
	// GIVEN: 7 on hand
	// WHEN: 20 units are requested without confirmation
	// THEN: the posting fails with the current quantity, and nothing is written

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.PostInbound(ctx, f.input(7))
	require.NoError(t, err)

	_, err = f.ledger.PostOutbound(ctx, f.input(20), false)
	require.Error(t, err)

	var ise *inventory.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(7), ise.CurrentQty)
	assert.Equal(t, int64(20), ise.Requested)
	assert.True(t, ise.RequiresConfirm)

	assert.Equal(t, int64(7), f.qty(t), "balance must be untouched")
	assert.Len(t, f.store.Transactions(), 1, "no journal row for the rejected outbound")
}

func TestLedger_PostOutbound_ConfirmedShortage_GoesNegative(t *testing.T) {
	// GIVEN: 7 on hand
	// WHEN: 20 units go out with the shortage confirmed
	// THEN: on-hand is -13; negative balance is a valid state

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.PostInbound(ctx, f.input(7))
	require.NoError(t, err)

	_, err = f.ledger.PostOutbound(ctx, f.input(20), true)
	require.NoError(t, err)

	assert.Equal(t, int64(-13), f.qty(t))
}

func TestLedger_PostOutbound_FromNegative_StillNeedsConfirmation(t *testing.T) {
	// GIVEN: balance is already negative
	// WHEN: any further outbound is requested without confirmation
	// THEN: it is rejected with the (negative) current quantity

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.PostOutbound(ctx, f.input(5), true)
	require.NoError(t, err)
	require.Equal(t, int64(-5), f.qty(t))

	_, err = f.ledger.PostOutbound(ctx, f.input(1), false)
	var ise *inventory.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(-5), ise.CurrentQty)
}

func TestLedger_Post_ProductMismatch_Rejected(t *testing.T) {
	// GIVEN: a lot belonging to prod-1
	// WHEN: posting against it with a different product id
	// THEN: the posting fails with ProductMismatch

	f := newFixture(t)
	ctx := context.Background()

	other := inventory.Product{
		ID: "prod-2", GroupID: f.group.ID, Code: "RM-002", Name: "Solvent",
		IsActive: true,
	}
	require.NoError(t, f.store.SaveProduct(ctx, other))

	in := f.input(5)
	in.ProductID = other.ID
	_, err := f.ledger.PostInbound(ctx, in)

	var pme *inventory.ProductMismatchError
	require.ErrorAs(t, err, &pme)
	assert.Equal(t, f.lot.ID, pme.LotID)
	assert.Len(t, f.store.Transactions(), 0)
}

func TestLedger_Post_UnknownLot_NotFound(t *testing.T) {
	f := newFixture(t)

	in := f.input(5)
	in.LotID = "lot-nope"
	_, err := f.ledger.PostInbound(context.Background(), in)

	assert.True(t, inventory.IsNotFound(err))
}

func TestLedger_PostOutbound_UnknownLot_NotFoundNotShortage(t *testing.T) {
	// GIVEN: no such lot and zero stock everywhere
	// WHEN: an unconfirmed outbound references the missing lot
	// THEN: it fails NotFound; the zero balance must not read as a shortage

	f := newFixture(t)

	in := f.input(5)
	in.LotID = "lot-nope"
	_, err := f.ledger.PostOutbound(context.Background(), in, false)

	require.Error(t, err)
	assert.True(t, inventory.IsNotFound(err))
	var ise *inventory.InsufficientStockError
	assert.False(t, errors.As(err, &ise))
}

// =============================================================================
// STATUS HIERARCHY TESTS
// =============================================================================

func TestLedger_Post_InactiveLot_Blocked(t *testing.T) {
	// GIVEN: the lot itself is inactive
	// WHEN: posting against it
	// THEN: the posting fails with Inactive naming the lot

	f := newFixture(t)
	ctx := context.Background()

	f.lot.IsActive = false
	require.NoError(t, f.store.SaveLot(ctx, f.lot))

	_, err := f.ledger.PostInbound(ctx, f.input(5))

	var ie *inventory.InactiveError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "lot", ie.Level)
}

func TestLedger_Post_InactiveProduct_BlocksActiveLot(t *testing.T) {
	// GIVEN: an active lot under an inactive product
	// WHEN: posting against the lot
	// THEN: the posting fails with Inactive naming the product

	f := newFixture(t)
	ctx := context.Background()

	f.product.IsActive = false
	require.NoError(t, f.store.SaveProduct(ctx, f.product))

	_, err := f.ledger.PostInbound(ctx, f.input(5))

	var ie *inventory.InactiveError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "product", ie.Level)
}

func TestLedger_Post_InactiveGroup_BlocksWholeSubtree(t *testing.T) {
	// GIVEN: active lot and product under an inactive group
	// WHEN: posting against the lot
	// THEN: the posting fails with Inactive naming the group

	f := newFixture(t)
	ctx := context.Background()

	f.group.IsActive = false
	require.NoError(t, f.store.SaveGroup(ctx, f.group))

	_, err := f.ledger.PostInbound(ctx, f.input(5))

	var ie *inventory.InactiveError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "product group", ie.Level)
}

func TestLedger_PostOutbound_InactiveLot_BlockedNotShortage(t *testing.T) {
	// GIVEN: an inactive lot with zero stock
	// WHEN: an unconfirmed outbound posts against it
	// THEN: it fails Inactive; the guard runs before the balance read

	f := newFixture(t)
	ctx := context.Background()

	f.lot.IsActive = false
	require.NoError(t, f.store.SaveLot(ctx, f.lot))

	_, err := f.ledger.PostOutbound(ctx, f.input(5), false)

	var ie *inventory.InactiveError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "lot", ie.Level)
	assert.Len(t, f.store.Transactions(), 0)
}

func TestLedger_PostOutbound_InactiveGroup_BlockedNotShortage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.group.IsActive = false
	require.NoError(t, f.store.SaveGroup(ctx, f.group))

	_, err := f.ledger.PostOutbound(ctx, f.input(5), false)

	var ie *inventory.InactiveError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "product group", ie.Level)
}

// =============================================================================
// CORRECTION TESTS
// =============================================================================

func TestLedger_Correct_Qty_RecomputesBalance(t *testing.T) {
	// GIVEN: IN 10, OUT 3, confirmed OUT 20 (balance -13)
	// WHEN: the original inbound is corrected from 10 down to 8
	// THEN: the balance is rebuilt from the journal: 8 - 3 - 20 = -15

	f := newFixture(t)
	ctx := context.Background()

	inTx, err := f.ledger.PostInbound(ctx, f.input(10))
	require.NoError(t, err)
	_, err = f.ledger.PostOutbound(ctx, f.input(3), false)
	require.NoError(t, err)
	_, err = f.ledger.PostOutbound(ctx, f.input(20), true)
	require.NoError(t, err)
	require.Equal(t, int64(-13), f.qty(t))

	newQty := int64(8)
	updated, err := f.ledger.Correct(ctx, inTx.ID, inventory.Correction{Qty: &newQty},
		"receiving miscount", "supervisor")
	require.NoError(t, err)

	assert.Equal(t, int64(8), updated.Qty)
	assert.Equal(t, inTx.ID, updated.ID, "correction edits in place, no new row")
	assert.Equal(t, int64(-15), f.qty(t))
	assert.Len(t, f.store.Transactions(), 3, "journal row count unchanged")
}

func TestLedger_Correct_LotMove_RecomputesBothLots(t *testing.T) {
	// GIVEN: IN 10 on lot-1 and IN 4 on lot-2
	// WHEN: the lot-1 inbound is moved to lot-2
	// THEN: lot-1 rebuilds to 0 and lot-2 to 14

	f := newFixture(t)
	ctx := context.Background()

	inTx, err := f.ledger.PostInbound(ctx, f.input(10))
	require.NoError(t, err)

	in2 := f.input(4)
	in2.LotID = f.otherLot.ID
	_, err = f.ledger.PostInbound(ctx, in2)
	require.NoError(t, err)

	moved := f.otherLot.ID
	updated, err := f.ledger.Correct(ctx, inTx.ID, inventory.Correction{LotID: &moved},
		"posted to wrong lot", "supervisor")
	require.NoError(t, err)
	assert.Equal(t, f.otherLot.ID, updated.LotID)

	assert.Equal(t, int64(0), f.qty(t))
	q2, err := f.store.QtyOnHand(ctx, f.product.ID, f.otherLot.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(14), q2)
}

func TestLedger_Correct_LotMove_OtherProduct_Rejected(t *testing.T) {
	// GIVEN: a posted transaction and a lot belonging to another product
	// WHEN: correcting the transaction onto that lot
	// THEN: the correction fails with ProductMismatch and nothing changes

	f := newFixture(t)
	ctx := context.Background()

	other := inventory.Product{
		ID: "prod-2", GroupID: f.group.ID, Code: "RM-002", Name: "Solvent",
		IsActive: true,
	}
	require.NoError(t, f.store.SaveProduct(ctx, other))
	foreignLot := inventory.Lot{
		ID: "lot-x", ProductID: other.ID,
		MfgDate: time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		LotNo:   "X-1", IsActive: true,
	}
	require.NoError(t, f.store.SaveLot(ctx, foreignLot))

	inTx, err := f.ledger.PostInbound(ctx, f.input(10))
	require.NoError(t, err)

	target := foreignLot.ID
	_, err = f.ledger.Correct(ctx, inTx.ID, inventory.Correction{LotID: &target},
		"oops", "supervisor")

	var pme *inventory.ProductMismatchError
	require.ErrorAs(t, err, &pme)
	assert.Equal(t, int64(10), f.qty(t))
}

func TestLedger_Correct_InactiveTargetLot_Rejected(t *testing.T) {
	// A lot move passes the same status guard as a fresh posting.
	f := newFixture(t)
	ctx := context.Background()

	inTx, err := f.ledger.PostInbound(ctx, f.input(10))
	require.NoError(t, err)

	f.otherLot.IsActive = false
	require.NoError(t, f.store.SaveLot(ctx, f.otherLot))

	target := f.otherLot.ID
	_, err = f.ledger.Correct(ctx, inTx.ID, inventory.Correction{LotID: &target},
		"moving", "supervisor")

	var ie *inventory.InactiveError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "lot", ie.Level)
}

func TestLedger_Correct_UnknownTransaction_NotFound(t *testing.T) {
	f := newFixture(t)

	newQty := int64(5)
	_, err := f.ledger.Correct(context.Background(), "tx-nope",
		inventory.Correction{Qty: &newQty}, "reason", "actor")

	assert.True(t, inventory.IsNotFound(err))
}

func TestLedger_Correct_NonPositiveQty_Rejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inTx, err := f.ledger.PostInbound(ctx, f.input(10))
	require.NoError(t, err)

	for _, bad := range []int64{0, -5} {
		q := bad
		_, err := f.ledger.Correct(ctx, inTx.ID, inventory.Correction{Qty: &q}, "r", "a")
		assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	}
	assert.Equal(t, int64(10), f.qty(t))
}

// =============================================================================
// AUDIT TRAIL TESTS
// =============================================================================

func TestLedger_Correct_WritesBeforeAfterAudit(t *testing.T) {
	// GIVEN: a posted inbound of 10
	// WHEN: it is corrected to 8 with a reason
	// THEN: an UPDATE audit entry holds both snapshots and the reason

	f := newFixture(t)
	ctx := context.Background()

	inTx, err := f.ledger.PostInbound(ctx, f.input(10))
	require.NoError(t, err)

	newQty := int64(8)
	_, err = f.ledger.Correct(ctx, inTx.ID, inventory.Correction{Qty: &newQty},
		"receiving miscount", "supervisor")
	require.NoError(t, err)

	audits := f.store.AuditEntries(inventory.AuditFilter{
		EntityType: inventory.EntityInventoryTx,
		EntityID:   string(inTx.ID),
	})
	require.Len(t, audits, 2, "one CREATE from posting, one UPDATE from correction")

	update := audits[1]
	assert.Equal(t, inventory.AuditUpdate, update.Action)
	assert.Equal(t, "receiving miscount", update.Reason)
	assert.Equal(t, "supervisor", update.Actor)
	assert.Equal(t, int64(10), update.Before["qty"])
	assert.Equal(t, int64(8), update.After["qty"])
}

func TestLedger_Audit_ReasonNeverOnJournalRow(t *testing.T) {
	// The reason lives only on the audit entry; the journal row's note is
	// whatever the correction set it to, independent of the reason.
	f := newFixture(t)
	ctx := context.Background()

	inTx, err := f.ledger.PostInbound(ctx, f.input(10))
	require.NoError(t, err)

	note := "recount after stocktake"
	updated, err := f.ledger.Correct(ctx, inTx.ID, inventory.Correction{Note: &note},
		"annual stocktake", "supervisor")
	require.NoError(t, err)

	assert.Equal(t, note, updated.Note)
	assert.NotContains(t, updated.Note, "annual stocktake")
}
