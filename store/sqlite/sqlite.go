/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements inventory.TxStore plus the master-data CRUD and the query
  plumbing (transaction listing, balance listing, audit listing) the API
  layer needs. In production the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

DELETE BLOCK:
  The journal table carries a BEFORE DELETE trigger that raises
  unconditionally. Physical deletion of inventory transactions is
  rejected by the database itself, so even direct SQL access bypassing
  this package cannot remove history. The Go surface additionally
  exposes no delete method for the journal.

ATOMIC BALANCE UPDATES:
  ApplyDelta is a single INSERT ... ON CONFLICT DO UPDATE SET
  qty_on_hand = qty_on_hand + delta statement, never a read-modify-write
  in Go, so concurrent postings against the same (product, lot) cannot
  race. RecomputeBalance rebuilds the row from one SUM over the journal.

KEY TABLES:
  product_group, product, lot:  masters with their unique constraints
  inventory_tx:                 the journal (delete-blocked)
  inventory_balance:            composite key (product_id, lot_id)
  audit_log:                    append-only action trail

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. With PostgreSQL, database-level
  concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL for better concurrency and crash recovery.

USAGE:
  store, err := sqlite.New("./inventory.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  ledger := inventory.NewLedger(store, logger)

SEE ALSO:
  - inventory/store.go: interface definitions
  - inventory/ledger.go: the orchestrator driving WithTx
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/inventory-ledger/inventory"
)

const (
	timeFormat = time.RFC3339
	dateFormat = "2006-01-02"
)

// Store implements inventory.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A second pool connection to ":memory:" would open a second, empty
	// database. Access is serialized by the store's mutex anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Masters
	CREATE TABLE IF NOT EXISTS product_group (
		group_id TEXT PRIMARY KEY,
		group_name TEXT NOT NULL UNIQUE,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS product (
		product_id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL REFERENCES product_group(group_id),
		product_code TEXT NOT NULL UNIQUE,
		product_name TEXT NOT NULL,
		spec TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_product_group
		ON product(group_id);

	CREATE TABLE IF NOT EXISTS lot (
		lot_id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES product(product_id),
		mfg_date TEXT NOT NULL,
		lot_no TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_lot_key
		ON lot(product_id, mfg_date, lot_no);
	CREATE INDEX IF NOT EXISTS idx_lot_product
		ON lot(product_id);

	-- Journal (append-mostly; physical delete blocked below)
	CREATE TABLE IF NOT EXISTS inventory_tx (
		tx_id TEXT PRIMARY KEY,
		tx_type TEXT NOT NULL CHECK (tx_type IN ('IN','OUT')),
		tx_datetime TEXT NOT NULL,
		product_id TEXT NOT NULL REFERENCES product(product_id),
		lot_id TEXT NOT NULL REFERENCES lot(lot_id),
		qty INTEGER NOT NULL CHECK (qty > 0),
		ref_doc TEXT,
		note TEXT,
		created_by TEXT,
		is_void INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_inventory_tx_pair
		ON inventory_tx(product_id, lot_id);
	CREATE INDEX IF NOT EXISTS idx_inventory_tx_datetime
		ON inventory_tx(tx_datetime);
	CREATE INDEX IF NOT EXISTS idx_inventory_tx_lot
		ON inventory_tx(lot_id);

	-- CRITICAL: history is permanent. The database itself rejects any
	-- DELETE against the journal, regardless of caller.
	CREATE TRIGGER IF NOT EXISTS inventory_tx_no_delete
	BEFORE DELETE ON inventory_tx
	BEGIN
		SELECT RAISE(FAIL, 'deletion forbidden for inventory_tx');
	END;

	-- Denormalized on-hand per (product, lot)
	CREATE TABLE IF NOT EXISTS inventory_balance (
		product_id TEXT NOT NULL,
		lot_id TEXT NOT NULL,
		qty_on_hand INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (product_id, lot_id)
	);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		audit_id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		changed_fields TEXT NOT NULL,
		reason TEXT,
		actor TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_log(entity_type, entity_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the same statement
// helpers serve direct calls and WithTx units.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// MASTER DATA - product groups
// =============================================================================

// SaveGroup upserts a product group by id. A duplicate name maps to
// DuplicateKey.
func (s *Store) SaveGroup(ctx context.Context, g inventory.ProductGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_group (group_id, group_name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			group_name = excluded.group_name,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		g.ID, g.Name, g.IsActive,
		g.CreatedAt.UTC().Format(timeFormat), g.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &inventory.DuplicateKeyError{Entity: "product group", Detail: g.Name}
		}
		return fmt.Errorf("failed to save product group: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id inventory.GroupID) (*inventory.ProductGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getGroup(ctx, s.db, id)
}

func getGroup(ctx context.Context, db dbtx, id inventory.GroupID) (*inventory.ProductGroup, error) {
	var g inventory.ProductGroup
	var createdAt, updatedAt string

	err := db.QueryRowContext(ctx,
		"SELECT group_id, group_name, is_active, created_at, updated_at FROM product_group WHERE group_id = ?",
		id,
	).Scan(&g.ID, &g.Name, &g.IsActive, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	g.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	g.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &g, nil
}

// GroupFilter narrows ListGroups. Zero values match everything.
type GroupFilter struct {
	IsActive *bool
	Query    string // substring match on name
}

// ListGroups returns groups ordered by name.
func (s *Store) ListGroups(ctx context.Context, filter GroupFilter) ([]inventory.ProductGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT group_id, group_name, is_active, created_at, updated_at FROM product_group"
	var where []string
	var args []any
	if filter.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *filter.IsActive)
	}
	if filter.Query != "" {
		where = append(where, "group_name LIKE ?")
		args = append(args, "%"+filter.Query+"%")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY group_name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []inventory.ProductGroup
	for rows.Next() {
		var g inventory.ProductGroup
		var createdAt, updatedAt string
		if err := rows.Scan(&g.ID, &g.Name, &g.IsActive, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		g.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		g.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// =============================================================================
// MASTER DATA - products
// =============================================================================

// SaveProduct upserts a product by id. A duplicate code maps to
// DuplicateKey.
func (s *Store) SaveProduct(ctx context.Context, p inventory.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product (product_id, group_id, product_code, product_name, spec, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			group_id = excluded.group_id,
			product_code = excluded.product_code,
			product_name = excluded.product_name,
			spec = excluded.spec,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		p.ID, p.GroupID, p.Code, p.Name, nullString(p.Spec), p.IsActive,
		p.CreatedAt.UTC().Format(timeFormat), p.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &inventory.DuplicateKeyError{Entity: "product", Detail: p.Code}
		}
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id inventory.ProductID) (*inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProduct(ctx, s.db, id)
}

func getProduct(ctx context.Context, db dbtx, id inventory.ProductID) (*inventory.Product, error) {
	var p inventory.Product
	var spec sql.NullString
	var createdAt, updatedAt string

	err := db.QueryRowContext(ctx,
		"SELECT product_id, group_id, product_code, product_name, spec, is_active, created_at, updated_at FROM product WHERE product_id = ?",
		id,
	).Scan(&p.ID, &p.GroupID, &p.Code, &p.Name, &spec, &p.IsActive, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Spec = spec.String
	p.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	p.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &p, nil
}

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	GroupID  inventory.GroupID
	Code     string // substring match
	IsActive *bool
	Query    string // substring match on name
}

// ListProducts returns products ordered by code.
func (s *Store) ListProducts(ctx context.Context, filter ProductFilter) ([]inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT product_id, group_id, product_code, product_name, spec, is_active, created_at, updated_at FROM product"
	var where []string
	var args []any
	if filter.GroupID != "" {
		where = append(where, "group_id = ?")
		args = append(args, filter.GroupID)
	}
	if filter.Code != "" {
		where = append(where, "product_code LIKE ?")
		args = append(args, "%"+filter.Code+"%")
	}
	if filter.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *filter.IsActive)
	}
	if filter.Query != "" {
		where = append(where, "product_name LIKE ?")
		args = append(args, "%"+filter.Query+"%")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY product_code"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []inventory.Product
	for rows.Next() {
		var p inventory.Product
		var spec sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.GroupID, &p.Code, &p.Name, &spec, &p.IsActive, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.Spec = spec.String
		p.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		p.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
		products = append(products, p)
	}
	return products, rows.Err()
}

// =============================================================================
// MASTER DATA - lots
// =============================================================================

// SaveLot upserts a lot by id. A duplicate (product, mfg_date, lot_no)
// maps to DuplicateKey.
func (s *Store) SaveLot(ctx context.Context, l inventory.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lot (lot_id, product_id, mfg_date, lot_no, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lot_id) DO UPDATE SET
			product_id = excluded.product_id,
			mfg_date = excluded.mfg_date,
			lot_no = excluded.lot_no,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		l.ID, l.ProductID, l.MfgDate.UTC().Format(dateFormat), l.LotNo, l.IsActive,
		l.CreatedAt.UTC().Format(timeFormat), l.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &inventory.DuplicateKeyError{Entity: "lot", Detail: l.LotNo}
		}
		return fmt.Errorf("failed to save lot: %w", err)
	}
	return nil
}

func (s *Store) GetLot(ctx context.Context, id inventory.LotID) (*inventory.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLot(ctx, s.db, id)
}

func getLot(ctx context.Context, db dbtx, id inventory.LotID) (*inventory.Lot, error) {
	var l inventory.Lot
	var mfgDate, createdAt, updatedAt string

	err := db.QueryRowContext(ctx,
		"SELECT lot_id, product_id, mfg_date, lot_no, is_active, created_at, updated_at FROM lot WHERE lot_id = ?",
		id,
	).Scan(&l.ID, &l.ProductID, &mfgDate, &l.LotNo, &l.IsActive, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	l.MfgDate, _ = time.Parse(dateFormat, mfgDate)
	l.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	l.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &l, nil
}

// LotFilter narrows ListLots.
type LotFilter struct {
	ProductID inventory.ProductID
	MfgFrom   *time.Time
	MfgTo     *time.Time
	LotNo     string // substring match
	IsActive  *bool
}

// ListLots returns lots ordered by mfg date, newest first.
func (s *Store) ListLots(ctx context.Context, filter LotFilter) ([]inventory.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT lot_id, product_id, mfg_date, lot_no, is_active, created_at, updated_at FROM lot"
	var where []string
	var args []any
	if filter.ProductID != "" {
		where = append(where, "product_id = ?")
		args = append(args, filter.ProductID)
	}
	if filter.MfgFrom != nil {
		where = append(where, "mfg_date >= ?")
		args = append(args, filter.MfgFrom.UTC().Format(dateFormat))
	}
	if filter.MfgTo != nil {
		where = append(where, "mfg_date <= ?")
		args = append(args, filter.MfgTo.UTC().Format(dateFormat))
	}
	if filter.LotNo != "" {
		where = append(where, "lot_no LIKE ?")
		args = append(args, "%"+filter.LotNo+"%")
	}
	if filter.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *filter.IsActive)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY mfg_date DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []inventory.Lot
	for rows.Next() {
		var l inventory.Lot
		var mfgDate, createdAt, updatedAt string
		if err := rows.Scan(&l.ID, &l.ProductID, &mfgDate, &l.LotNo, &l.IsActive, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		l.MfgDate, _ = time.Parse(dateFormat, mfgDate)
		l.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		l.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

// =============================================================================
// JOURNAL (inventory.JournalStore)
// =============================================================================

// AppendTransaction persists a new movement.
func (s *Store) AppendTransaction(ctx context.Context, tx inventory.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTransaction(ctx, s.db, tx)
}

func appendTransaction(ctx context.Context, db dbtx, tx inventory.Transaction) error {
	if tx.Qty <= 0 {
		return inventory.ErrInvalidQuantity
	}
	if !tx.Type.Valid() {
		return inventory.ErrInvalidTxType
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO inventory_tx
		(tx_id, tx_type, tx_datetime, product_id, lot_id, qty, ref_doc, note, created_by, is_void, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Type,
		tx.OccurredAt.UTC().Format(timeFormat),
		tx.ProductID, tx.LotID, tx.Qty,
		nullString(tx.RefDoc), nullString(tx.Note), nullString(tx.CreatedBy),
		tx.IsVoid,
		tx.CreatedAt.UTC().Format(timeFormat), tx.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// GetTransaction returns the journal row, or (nil, nil) if absent.
func (s *Store) GetTransaction(ctx context.Context, id inventory.TxID) (*inventory.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransaction(ctx, s.db, id)
}

func getTransaction(ctx context.Context, db dbtx, id inventory.TxID) (*inventory.Transaction, error) {
	row := db.QueryRowContext(ctx, `
		SELECT tx_id, tx_type, tx_datetime, product_id, lot_id, qty, ref_doc, note, created_by, is_void, created_at, updated_at
		FROM inventory_tx WHERE tx_id = ?`, id)

	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// UpdateTransaction applies a correction. Only the correctable fields
// and the updated-at stamp are written; identity, type, product and the
// creation stamps never move.
func (s *Store) UpdateTransaction(ctx context.Context, tx inventory.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateTransaction(ctx, s.db, tx)
}

func updateTransaction(ctx context.Context, db dbtx, tx inventory.Transaction) error {
	if tx.Qty <= 0 {
		return inventory.ErrInvalidQuantity
	}

	res, err := db.ExecContext(ctx, `
		UPDATE inventory_tx
		SET lot_id = ?, qty = ?, ref_doc = ?, note = ?, updated_at = ?
		WHERE tx_id = ?`,
		tx.LotID, tx.Qty, nullString(tx.RefDoc), nullString(tx.Note),
		tx.UpdatedAt.UTC().Format(timeFormat), tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &inventory.NotFoundError{Kind: "transaction", ID: string(tx.ID)}
	}
	return nil
}

// TxFilter narrows ListTransactions.
type TxFilter struct {
	From        *time.Time
	To          *time.Time
	ProductCode string // substring match
	LotID       inventory.LotID
}

// ListTransactions returns journal rows, newest first.
func (s *Store) ListTransactions(ctx context.Context, filter TxFilter) ([]inventory.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT t.tx_id, t.tx_type, t.tx_datetime, t.product_id, t.lot_id, t.qty, t.ref_doc, t.note, t.created_by, t.is_void, t.created_at, t.updated_at
		FROM inventory_tx t`
	var where []string
	var args []any
	if filter.ProductCode != "" {
		query += " JOIN product p ON p.product_id = t.product_id"
		where = append(where, "p.product_code LIKE ?")
		args = append(args, "%"+filter.ProductCode+"%")
	}
	if filter.From != nil {
		where = append(where, "t.tx_datetime >= ?")
		args = append(args, filter.From.UTC().Format(timeFormat))
	}
	if filter.To != nil {
		where = append(where, "t.tx_datetime <= ?")
		args = append(args, filter.To.UTC().Format(timeFormat))
	}
	if filter.LotID != "" {
		where = append(where, "t.lot_id = ?")
		args = append(args, filter.LotID)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY t.tx_datetime DESC, t.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []inventory.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*inventory.Transaction, error) {
	var tx inventory.Transaction
	var refDoc, note, createdBy sql.NullString
	var occurredAt, createdAt, updatedAt string

	err := row.Scan(&tx.ID, &tx.Type, &occurredAt, &tx.ProductID, &tx.LotID, &tx.Qty,
		&refDoc, &note, &createdBy, &tx.IsVoid, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	tx.RefDoc = refDoc.String
	tx.Note = note.String
	tx.CreatedBy = createdBy.String
	tx.OccurredAt, _ = time.Parse(timeFormat, occurredAt)
	tx.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	tx.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &tx, nil
}

// =============================================================================
// BALANCES (inventory.BalanceStore)
// =============================================================================

// QtyOnHand returns the stored quantity, or 0 if no balance row exists.
func (s *Store) QtyOnHand(ctx context.Context, productID inventory.ProductID, lotID inventory.LotID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return qtyOnHand(ctx, s.db, productID, lotID)
}

func qtyOnHand(ctx context.Context, db dbtx, productID inventory.ProductID, lotID inventory.LotID) (int64, error) {
	var qty int64
	err := db.QueryRowContext(ctx,
		"SELECT qty_on_hand FROM inventory_balance WHERE product_id = ? AND lot_id = ?",
		productID, lotID,
	).Scan(&qty)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}

// ApplyDelta upserts the balance row in a single atomic statement, so
// concurrent postings against the same pair cannot race.
func (s *Store) ApplyDelta(ctx context.Context, productID inventory.ProductID, lotID inventory.LotID, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return applyDelta(ctx, s.db, productID, lotID, delta)
}

func applyDelta(ctx context.Context, db dbtx, productID inventory.ProductID, lotID inventory.LotID, delta int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO inventory_balance (product_id, lot_id, qty_on_hand, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(product_id, lot_id) DO UPDATE SET
			qty_on_hand = qty_on_hand + excluded.qty_on_hand,
			updated_at = excluded.updated_at`,
		productID, lotID, delta, time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to apply balance delta: %w", err)
	}
	return nil
}

// RecomputeBalance overwrites the balance row from the full journal sum
// for the pair and returns the computed value.
func (s *Store) RecomputeBalance(ctx context.Context, productID inventory.ProductID, lotID inventory.LotID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recomputeBalance(ctx, s.db, productID, lotID)
}

func recomputeBalance(ctx context.Context, db dbtx, productID inventory.ProductID, lotID inventory.LotID) (int64, error) {
	var qty int64
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN tx_type = 'IN' THEN qty ELSE -qty END), 0)
		FROM inventory_tx
		WHERE product_id = ? AND lot_id = ?`,
		productID, lotID,
	).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("failed to sum journal: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO inventory_balance (product_id, lot_id, qty_on_hand, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(product_id, lot_id) DO UPDATE SET
			qty_on_hand = excluded.qty_on_hand,
			updated_at = excluded.updated_at`,
		productID, lotID, qty, time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to write recomputed balance: %w", err)
	}
	return qty, nil
}

// BalanceFilter narrows ListBalances.
type BalanceFilter struct {
	GroupID     inventory.GroupID
	ProductCode string // substring match
	MfgFrom     *time.Time
	MfgTo       *time.Time
	LotNo       string // substring match
}

// ListBalances returns the joined on-hand view with the last movement
// timestamp per lot, ordered by product code.
func (s *Store) ListBalances(ctx context.Context, filter BalanceFilter) ([]inventory.BalanceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT g.group_name, p.product_code, p.product_name, l.mfg_date, l.lot_no, b.qty_on_hand, last_tx.last_at
		FROM inventory_balance b
		JOIN product p ON p.product_id = b.product_id
		JOIN product_group g ON g.group_id = p.group_id
		JOIN lot l ON l.lot_id = b.lot_id
		LEFT JOIN (
			SELECT lot_id, MAX(tx_datetime) AS last_at
			FROM inventory_tx
			GROUP BY lot_id
		) last_tx ON last_tx.lot_id = b.lot_id`
	var where []string
	var args []any
	if filter.GroupID != "" {
		where = append(where, "p.group_id = ?")
		args = append(args, filter.GroupID)
	}
	if filter.ProductCode != "" {
		where = append(where, "p.product_code LIKE ?")
		args = append(args, "%"+filter.ProductCode+"%")
	}
	if filter.MfgFrom != nil {
		where = append(where, "l.mfg_date >= ?")
		args = append(args, filter.MfgFrom.UTC().Format(dateFormat))
	}
	if filter.MfgTo != nil {
		where = append(where, "l.mfg_date <= ?")
		args = append(args, filter.MfgTo.UTC().Format(dateFormat))
	}
	if filter.LotNo != "" {
		where = append(where, "l.lot_no LIKE ?")
		args = append(args, "%"+filter.LotNo+"%")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.product_code"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []inventory.BalanceRow
	for rows.Next() {
		var r inventory.BalanceRow
		var mfgDate string
		var lastAt sql.NullString
		if err := rows.Scan(&r.GroupName, &r.ProductCode, &r.ProductName, &mfgDate, &r.LotNo, &r.QtyOnHand, &lastAt); err != nil {
			return nil, err
		}
		r.MfgDate, _ = time.Parse(dateFormat, mfgDate)
		if lastAt.Valid {
			if t, err := time.Parse(timeFormat, lastAt.String); err == nil {
				r.LastTxAt = &t
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// AUDIT TRAIL (inventory.AuditStore)
// =============================================================================

// changedFields is the persisted JSON shape of an audit entry's payload.
type changedFields struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// AppendAudit adds an audit entry. There is no update or delete path.
func (s *Store) AppendAudit(ctx context.Context, entry inventory.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendAudit(ctx, s.db, entry)
}

func appendAudit(ctx context.Context, db dbtx, entry inventory.AuditEntry) error {
	payload, err := json.Marshal(changedFields{Before: entry.Before, After: entry.After})
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_log (audit_id, entity_type, entity_id, action, changed_fields, reason, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.EntityType, entry.EntityID, entry.Action,
		string(payload), nullString(entry.Reason), nullString(entry.Actor),
		entry.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns matching entries, newest first.
func (s *Store) ListAudit(ctx context.Context, filter inventory.AuditFilter) ([]inventory.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT audit_id, entity_type, entity_id, action, changed_fields, reason, actor, created_at FROM audit_log"
	var where []string
	var args []any
	if filter.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, audit_id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []inventory.AuditEntry
	for rows.Next() {
		var e inventory.AuditEntry
		var payload string
		var reason, actor sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &payload, &reason, &actor, &createdAt); err != nil {
			return nil, err
		}
		var cf changedFields
		if err := json.Unmarshal([]byte(payload), &cf); err != nil {
			return nil, fmt.Errorf("failed to decode audit payload: %w", err)
		}
		e.Before = cf.Before
		e.After = cf.After
		e.Reason = reason.String
		e.Actor = actor.String
		e.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// DASHBOARD
// =============================================================================

// Summary is the dashboard rollup.
type Summary struct {
	ProductCount int64
	LotCount     int64
	TotalQty     int64
}

func (s *Store) DashboardSummary(ctx context.Context) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum Summary
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM product").Scan(&sum.ProductCount); err != nil {
		return Summary{}, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lot").Scan(&sum.LotCount); err != nil {
		return Summary{}, err
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(qty_on_hand), 0) FROM inventory_balance").Scan(&sum.TotalQty); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the transactional view handed to WithTx callbacks. The
// parent's lock is already held; every call runs on the open *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetGroup(ctx context.Context, id inventory.GroupID) (*inventory.ProductGroup, error) {
	return getGroup(ctx, ts.tx, id)
}

func (ts *txStore) GetProduct(ctx context.Context, id inventory.ProductID) (*inventory.Product, error) {
	return getProduct(ctx, ts.tx, id)
}

func (ts *txStore) GetLot(ctx context.Context, id inventory.LotID) (*inventory.Lot, error) {
	return getLot(ctx, ts.tx, id)
}

func (ts *txStore) AppendTransaction(ctx context.Context, tx inventory.Transaction) error {
	return appendTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) GetTransaction(ctx context.Context, id inventory.TxID) (*inventory.Transaction, error) {
	return getTransaction(ctx, ts.tx, id)
}

func (ts *txStore) UpdateTransaction(ctx context.Context, tx inventory.Transaction) error {
	return updateTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) QtyOnHand(ctx context.Context, productID inventory.ProductID, lotID inventory.LotID) (int64, error) {
	return qtyOnHand(ctx, ts.tx, productID, lotID)
}

func (ts *txStore) ApplyDelta(ctx context.Context, productID inventory.ProductID, lotID inventory.LotID, delta int64) error {
	return applyDelta(ctx, ts.tx, productID, lotID, delta)
}

func (ts *txStore) RecomputeBalance(ctx context.Context, productID inventory.ProductID, lotID inventory.LotID) (int64, error) {
	return recomputeBalance(ctx, ts.tx, productID, lotID)
}

func (ts *txStore) AppendAudit(ctx context.Context, entry inventory.AuditEntry) error {
	return appendAudit(ctx, ts.tx, entry)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsDeletionBlocked reports whether err came from the journal's
// delete-block trigger. Anything hitting this has bypassed the
// orchestrator; treat it as an invariant violation, not a retryable
// failure.
func IsDeletionBlocked(err error) bool {
	return err != nil && strings.Contains(err.Error(), "deletion forbidden for inventory_tx")
}
