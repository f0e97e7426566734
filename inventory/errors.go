/*
errors.go - Centralized error types for the inventory engine

PURPOSE:
  All error types in one place for consistency and discoverability.

ERROR CATEGORIES:
  1. Lookup errors     - referenced entity absent (NotFound)
  2. Validation errors - hierarchy status, lot/product pairing, quantity
  3. Stock errors      - the shortage confirmation handshake
  4. Store errors      - unique constraints, the delete block

RECOVERABLE VS FATAL:
  NotFound, Inactive, ProductMismatch, InsufficientStock and DuplicateKey
  are caller-correctable: they carry enough context to retry correctly.
  DeletionForbidden is an invariant violation - nothing reachable through
  the exposed API deletes journal rows, so seeing it means something
  bypassed the orchestrator. Log it and reject; never compensate.

USAGE:
  if errors.Is(err, inventory.ErrInsufficientStock) {
      var ise *inventory.InsufficientStockError
      errors.As(err, &ise)
      // resubmit with ConfirmShortage once the caller agrees
  }
*/
package inventory

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrInactive is returned when the lot, its product, or that product's
	// group blocks posting.
	ErrInactive = errors.New("inactive in product hierarchy")

	// ErrProductMismatch is returned when a lot does not belong to the
	// product a movement claims.
	ErrProductMismatch = errors.New("lot does not belong to product")

	// ErrInsufficientStock is the soft block on unconfirmed shortages. It
	// is resolved by resubmitting with confirmation, not by fixing input.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrDuplicateKey is a unique-constraint violation surfaced from the
	// store (group name, product code, lot key).
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrDeletionForbidden is raised by the storage layer itself when
	// anything attempts to physically delete a journal row.
	ErrDeletionForbidden = errors.New("deletion forbidden for inventory transactions")

	// ErrInvalidQuantity is enforced at the storage layer: qty must be > 0.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrInvalidTxType is enforced at the storage layer: IN or OUT only.
	ErrInvalidTxType = errors.New("transaction type must be IN or OUT")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the entity kind and id that was missing.
type NotFoundError struct {
	Kind string // "product group", "product", "lot", "transaction"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InactiveError names the hierarchy level that blocked posting. An absent
// product or group also reports as Inactive: only a missing lot is
// NotFound, per the guard contract.
type InactiveError struct {
	Level string // "product group", "product", "lot"
	ID    string
}

func (e *InactiveError) Error() string {
	return fmt.Sprintf("%s %s is inactive", e.Level, e.ID)
}

func (e *InactiveError) Unwrap() error { return ErrInactive }

// ProductMismatchError reports a lot posted against the wrong product.
type ProductMismatchError struct {
	LotID         LotID
	LotProductID  ProductID
	WantProductID ProductID
}

func (e *ProductMismatchError) Error() string {
	return fmt.Sprintf("lot %s belongs to product %s, not %s",
		e.LotID, e.LotProductID, e.WantProductID)
}

func (e *ProductMismatchError) Unwrap() error { return ErrProductMismatch }

// InsufficientStockError carries the confirmation handshake: the current
// quantity and the flag telling the caller to resubmit with
// ConfirmShortage to force the shortage through.
type InsufficientStockError struct {
	ProductID       ProductID
	LotID           LotID
	CurrentQty      int64
	Requested       int64
	RequiresConfirm bool
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for (%s, %s): on hand %d, requested %d",
		e.ProductID, e.LotID, e.CurrentQty, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// DuplicateKeyError names the entity whose unique constraint was hit.
type DuplicateKeyError struct {
	Entity string // "product group", "product", "lot"
	Detail string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate %s: %s", e.Entity, e.Detail)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is caller-correctable.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInactive) ||
		errors.Is(err, ErrProductMismatch) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidTxType)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
