// Package store provides an in-memory inventory.TxStore for testing/dev.
package store

import (
	"context"
	"sync"

	"github.com/warp/inventory-ledger/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements inventory.TxStore. Like every implementation of the
// store contract, it has no journal delete operation at all.
type Memory struct {
	mu       sync.RWMutex
	groups   map[inventory.GroupID]inventory.ProductGroup
	products map[inventory.ProductID]inventory.Product
	lots     map[inventory.LotID]inventory.Lot
	journal  map[inventory.TxID]inventory.Transaction
	order    []inventory.TxID // append order, for deterministic listings
	balances map[inventory.BalanceKey]int64
	audits   []inventory.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		groups:   make(map[inventory.GroupID]inventory.ProductGroup),
		products: make(map[inventory.ProductID]inventory.Product),
		lots:     make(map[inventory.LotID]inventory.Lot),
		journal:  make(map[inventory.TxID]inventory.Transaction),
		balances: make(map[inventory.BalanceKey]int64),
	}
}

// =============================================================================
// MASTER DATA
// =============================================================================

// SaveGroup upserts a product group. Name is unique.
func (m *Memory) SaveGroup(_ context.Context, g inventory.ProductGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.groups {
		if other.Name == g.Name && other.ID != g.ID {
			return &inventory.DuplicateKeyError{Entity: "product group", Detail: g.Name}
		}
	}
	m.groups[g.ID] = g
	return nil
}

// SaveProduct upserts a product. Code is unique.
func (m *Memory) SaveProduct(_ context.Context, p inventory.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.products {
		if other.Code == p.Code && other.ID != p.ID {
			return &inventory.DuplicateKeyError{Entity: "product", Detail: p.Code}
		}
	}
	m.products[p.ID] = p
	return nil
}

// SaveLot upserts a lot. (ProductID, MfgDate, LotNo) is unique.
func (m *Memory) SaveLot(_ context.Context, l inventory.Lot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.lots {
		if other.ProductID == l.ProductID && other.MfgDate.Equal(l.MfgDate) &&
			other.LotNo == l.LotNo && other.ID != l.ID {
			return &inventory.DuplicateKeyError{Entity: "lot", Detail: l.LotNo}
		}
	}
	m.lots[l.ID] = l
	return nil
}

func (m *Memory) GetGroup(_ context.Context, id inventory.GroupID) (*inventory.ProductGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getGroupLocked(id)
}

func (m *Memory) getGroupLocked(id inventory.GroupID) (*inventory.ProductGroup, error) {
	if g, ok := m.groups[id]; ok {
		return &g, nil
	}
	return nil, nil
}

func (m *Memory) GetProduct(_ context.Context, id inventory.ProductID) (*inventory.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProductLocked(id)
}

func (m *Memory) getProductLocked(id inventory.ProductID) (*inventory.Product, error) {
	if p, ok := m.products[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) GetLot(_ context.Context, id inventory.LotID) (*inventory.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLotLocked(id)
}

func (m *Memory) getLotLocked(id inventory.LotID) (*inventory.Lot, error) {
	if l, ok := m.lots[id]; ok {
		return &l, nil
	}
	return nil, nil
}

// =============================================================================
// JOURNAL
// =============================================================================

func (m *Memory) AppendTransaction(_ context.Context, tx inventory.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) appendLocked(tx inventory.Transaction) error {
	if tx.Qty <= 0 {
		return inventory.ErrInvalidQuantity
	}
	if !tx.Type.Valid() {
		return inventory.ErrInvalidTxType
	}
	m.journal[tx.ID] = tx
	m.order = append(m.order, tx.ID)
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id inventory.TxID) (*inventory.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTxLocked(id)
}

func (m *Memory) getTxLocked(id inventory.TxID) (*inventory.Transaction, error) {
	if tx, ok := m.journal[id]; ok {
		return &tx, nil
	}
	return nil, nil
}

func (m *Memory) UpdateTransaction(_ context.Context, tx inventory.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(tx)
}

func (m *Memory) updateLocked(tx inventory.Transaction) error {
	existing, ok := m.journal[tx.ID]
	if !ok {
		return &inventory.NotFoundError{Kind: "transaction", ID: string(tx.ID)}
	}
	if tx.Qty <= 0 {
		return inventory.ErrInvalidQuantity
	}
	// Only the correctable fields move; identity, type, product and the
	// creation stamps stay as written.
	existing.LotID = tx.LotID
	existing.Qty = tx.Qty
	existing.RefDoc = tx.RefDoc
	existing.Note = tx.Note
	existing.UpdatedAt = tx.UpdatedAt
	m.journal[tx.ID] = existing
	return nil
}

// Transactions returns journal rows in append order. Test helper.
func (m *Memory) Transactions() []inventory.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]inventory.Transaction, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.journal[id])
	}
	return out
}

// =============================================================================
// BALANCES
// =============================================================================

func (m *Memory) QtyOnHand(_ context.Context, productID inventory.ProductID, lotID inventory.LotID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.qtyLocked(productID, lotID), nil
}

func (m *Memory) qtyLocked(productID inventory.ProductID, lotID inventory.LotID) int64 {
	return m.balances[inventory.BalanceKey{ProductID: productID, LotID: lotID}]
}

func (m *Memory) ApplyDelta(_ context.Context, productID inventory.ProductID, lotID inventory.LotID, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyDeltaLocked(productID, lotID, delta)
	return nil
}

func (m *Memory) applyDeltaLocked(productID inventory.ProductID, lotID inventory.LotID, delta int64) {
	key := inventory.BalanceKey{ProductID: productID, LotID: lotID}
	m.balances[key] = m.balances[key] + delta
}

func (m *Memory) RecomputeBalance(_ context.Context, productID inventory.ProductID, lotID inventory.LotID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recomputeLocked(productID, lotID), nil
}

func (m *Memory) recomputeLocked(productID inventory.ProductID, lotID inventory.LotID) int64 {
	var sum int64
	for _, tx := range m.journal {
		if tx.ProductID != productID || tx.LotID != lotID {
			continue
		}
		if tx.Type == inventory.TxIn {
			sum += tx.Qty
		} else {
			sum -= tx.Qty
		}
	}
	m.balances[inventory.BalanceKey{ProductID: productID, LotID: lotID}] = sum
	return sum
}

// =============================================================================
// AUDIT
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry inventory.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendAuditLocked(entry)
	return nil
}

func (m *Memory) appendAuditLocked(entry inventory.AuditEntry) {
	m.audits = append(m.audits, entry)
}

// AuditEntries returns matching entries in append order. Test helper.
func (m *Memory) AuditEntries(filter inventory.AuditFilter) []inventory.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []inventory.AuditEntry
	for _, e := range m.audits {
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && e.EntityID != filter.EntityID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a transaction, simulated with a snapshot and
// rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(inventory.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&memView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	journal  map[inventory.TxID]inventory.Transaction
	order    []inventory.TxID
	balances map[inventory.BalanceKey]int64
	audits   []inventory.AuditEntry
}

func (m *Memory) snapshot() memorySnapshot {
	journal := make(map[inventory.TxID]inventory.Transaction, len(m.journal))
	for k, v := range m.journal {
		journal[k] = v
	}
	balances := make(map[inventory.BalanceKey]int64, len(m.balances))
	for k, v := range m.balances {
		balances[k] = v
	}
	return memorySnapshot{
		journal:  journal,
		order:    append([]inventory.TxID{}, m.order...),
		balances: balances,
		audits:   append([]inventory.AuditEntry{}, m.audits...),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.journal = s.journal
	m.order = s.order
	m.balances = s.balances
	m.audits = s.audits
}

// memView is the transactional view handed to WithTx callbacks. The
// parent's lock is already held, so it calls the unlocked internals.
type memView struct {
	parent *Memory
}

func (v *memView) GetGroup(_ context.Context, id inventory.GroupID) (*inventory.ProductGroup, error) {
	return v.parent.getGroupLocked(id)
}

func (v *memView) GetProduct(_ context.Context, id inventory.ProductID) (*inventory.Product, error) {
	return v.parent.getProductLocked(id)
}

func (v *memView) GetLot(_ context.Context, id inventory.LotID) (*inventory.Lot, error) {
	return v.parent.getLotLocked(id)
}

func (v *memView) AppendTransaction(_ context.Context, tx inventory.Transaction) error {
	return v.parent.appendLocked(tx)
}

func (v *memView) GetTransaction(_ context.Context, id inventory.TxID) (*inventory.Transaction, error) {
	return v.parent.getTxLocked(id)
}

func (v *memView) UpdateTransaction(_ context.Context, tx inventory.Transaction) error {
	return v.parent.updateLocked(tx)
}

func (v *memView) QtyOnHand(_ context.Context, productID inventory.ProductID, lotID inventory.LotID) (int64, error) {
	return v.parent.qtyLocked(productID, lotID), nil
}

func (v *memView) ApplyDelta(_ context.Context, productID inventory.ProductID, lotID inventory.LotID, delta int64) error {
	v.parent.applyDeltaLocked(productID, lotID, delta)
	return nil
}

func (v *memView) RecomputeBalance(_ context.Context, productID inventory.ProductID, lotID inventory.LotID) (int64, error) {
	return v.parent.recomputeLocked(productID, lotID), nil
}

func (v *memView) AppendAudit(_ context.Context, entry inventory.AuditEntry) error {
	v.parent.appendAuditLocked(entry)
	return nil
}
