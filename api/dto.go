/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Requests carry go-playground/validator struct tags; handlers run the
  shared validator before touching domain logic. The required-reason
  convention for corrections is enforced here, at the boundary - storage
  keeps reason nullable.

SEE ALSO:
  - handlers.go: uses these types
*/
package api

import (
	"time"

	"github.com/warp/inventory-ledger/inventory"
)

// =============================================================================
// MASTER DATA
// =============================================================================

// CreateGroupRequest creates a product group. Active unless stated.
type CreateGroupRequest struct {
	Name     string `json:"group_name" validate:"required"`
	IsActive *bool  `json:"is_active"`
}

// UpdateGroupRequest is a partial update; nil fields are unchanged.
type UpdateGroupRequest struct {
	Name     *string `json:"group_name"`
	IsActive *bool   `json:"is_active"`
}

type GroupDTO struct {
	ID        string    `json:"group_id"`
	Name      string    `json:"group_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateProductRequest struct {
	GroupID  string `json:"group_id" validate:"required"`
	Code     string `json:"product_code" validate:"required"`
	Name     string `json:"product_name" validate:"required"`
	Spec     string `json:"spec"`
	IsActive *bool  `json:"is_active"`
}

type UpdateProductRequest struct {
	GroupID  *string `json:"group_id"`
	Code     *string `json:"product_code"`
	Name     *string `json:"product_name"`
	Spec     *string `json:"spec"`
	IsActive *bool   `json:"is_active"`
}

type ProductDTO struct {
	ID        string    `json:"product_id"`
	GroupID   string    `json:"group_id"`
	Code      string    `json:"product_code"`
	Name      string    `json:"product_name"`
	Spec      string    `json:"spec,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateLotRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	MfgDate   string `json:"mfg_date" validate:"required,datetime=2006-01-02"`
	LotNo     string `json:"lot_no" validate:"required"`
	IsActive  *bool  `json:"is_active"`
}

type UpdateLotRequest struct {
	ProductID *string `json:"product_id"`
	MfgDate   *string `json:"mfg_date" validate:"omitempty,datetime=2006-01-02"`
	LotNo     *string `json:"lot_no"`
	IsActive  *bool   `json:"is_active"`
}

type LotDTO struct {
	ID        string    `json:"lot_id"`
	ProductID string    `json:"product_id"`
	MfgDate   string    `json:"mfg_date"`
	LotNo     string    `json:"lot_no"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// =============================================================================
// MOVEMENTS
// =============================================================================

type PostInboundRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	LotID     string `json:"lot_id" validate:"required"`
	Qty       int64  `json:"qty" validate:"required,gt=0"`
	RefDoc    string `json:"ref_doc"`
	Note      string `json:"note"`
	Actor     string `json:"actor"`
}

type PostOutboundRequest struct {
	ProductID       string `json:"product_id" validate:"required"`
	LotID           string `json:"lot_id" validate:"required"`
	Qty             int64  `json:"qty" validate:"required,gt=0"`
	RefDoc          string `json:"ref_doc"`
	Note            string `json:"note"`
	Actor           string `json:"actor"`
	ConfirmShortage bool   `json:"confirm_shortage"`
}

// CorrectTransactionRequest edits a historical transaction in place.
// Nil fields are unchanged. Reason is required here by convention even
// though storage keeps it nullable.
type CorrectTransactionRequest struct {
	LotID  *string `json:"lot_id"`
	Qty    *int64  `json:"qty" validate:"omitempty,gt=0"`
	RefDoc *string `json:"ref_doc"`
	Note   *string `json:"note"`
	Reason string  `json:"reason" validate:"required"`
	Actor  string  `json:"actor"`
}

type TransactionDTO struct {
	ID         string    `json:"tx_id"`
	Type       string    `json:"tx_type"`
	OccurredAt time.Time `json:"tx_datetime"`
	ProductID  string    `json:"product_id"`
	LotID      string    `json:"lot_id"`
	Qty        int64     `json:"qty"`
	RefDoc     string    `json:"ref_doc,omitempty"`
	Note       string    `json:"note,omitempty"`
	CreatedBy  string    `json:"created_by,omitempty"`
}

// =============================================================================
// QUERIES
// =============================================================================

type BalanceDTO struct {
	GroupName   string     `json:"product_group"`
	ProductCode string     `json:"product_code"`
	ProductName string     `json:"product_name"`
	MfgDate     string     `json:"mfg_date"`
	LotNo       string     `json:"lot_no"`
	QtyOnHand   int64      `json:"qty_on_hand"`
	LastTxAt    *time.Time `json:"last_tx_datetime,omitempty"`
}

type AuditDTO struct {
	ID         string         `json:"audit_id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Action     string         `json:"action"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

type DashboardSummaryDTO struct {
	ProductCount int64 `json:"product_count"`
	LotCount     int64 `json:"lot_count"`
	TotalQty     int64 `json:"total_qty"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// InsufficientStockResponse is the 409 confirmation handshake: the
// caller resubmits with confirm_shortage=true to force the shortage.
type InsufficientStockResponse struct {
	Message         string `json:"message"`
	CurrentQty      int64  `json:"current_qty"`
	RequiresConfirm bool   `json:"requires_confirm"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toGroupDTO(g inventory.ProductGroup) GroupDTO {
	return GroupDTO{
		ID:        string(g.ID),
		Name:      g.Name,
		IsActive:  g.IsActive,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func toProductDTO(p inventory.Product) ProductDTO {
	return ProductDTO{
		ID:        string(p.ID),
		GroupID:   string(p.GroupID),
		Code:      p.Code,
		Name:      p.Name,
		Spec:      p.Spec,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toLotDTO(l inventory.Lot) LotDTO {
	return LotDTO{
		ID:        string(l.ID),
		ProductID: string(l.ProductID),
		MfgDate:   l.MfgDate.Format("2006-01-02"),
		LotNo:     l.LotNo,
		IsActive:  l.IsActive,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func toTransactionDTO(tx inventory.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:         string(tx.ID),
		Type:       string(tx.Type),
		OccurredAt: tx.OccurredAt,
		ProductID:  string(tx.ProductID),
		LotID:      string(tx.LotID),
		Qty:        tx.Qty,
		RefDoc:     tx.RefDoc,
		Note:       tx.Note,
		CreatedBy:  tx.CreatedBy,
	}
}

func toBalanceDTO(r inventory.BalanceRow) BalanceDTO {
	return BalanceDTO{
		GroupName:   r.GroupName,
		ProductCode: r.ProductCode,
		ProductName: r.ProductName,
		MfgDate:     r.MfgDate.Format("2006-01-02"),
		LotNo:       r.LotNo,
		QtyOnHand:   r.QtyOnHand,
		LastTxAt:    r.LastTxAt,
	}
}

func toAuditDTO(e inventory.AuditEntry) AuditDTO {
	return AuditDTO{
		ID:         e.ID,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     string(e.Action),
		Before:     e.Before,
		After:      e.After,
		Reason:     e.Reason,
		Actor:      e.Actor,
		CreatedAt:  e.CreatedAt,
	}
}
