/*
handlers.go - HTTP API handlers for the inventory ledger

PURPOSE:
  Exposes the inventory engine via REST API. Handles HTTP
  request/response, JSON serialization and validation, and delegates to
  the domain logic.

ENDPOINTS:
  Masters:
    POST/GET   /api/product-groups          Create / list groups
    GET/PUT    /api/product-groups/{id}     Get / update group
    POST/GET   /api/products                Create / list products
    GET/PUT    /api/products/{id}           Get / update product
    POST/GET   /api/lots                    Create / list lots
    GET/PUT    /api/lots/{id}               Get / update lot

  Movements:
    POST /api/inventory/in                  Post inbound
    POST /api/inventory/out                 Post outbound (shortage handshake)
    GET  /api/inventory/transactions        List journal rows
    PUT  /api/inventory/transactions/{id}   Correct a transaction

  Queries:
    GET /api/inventory/balance              On-hand per (product, lot)
    GET /api/audit-logs                     Audit trail
    GET /api/dashboard/summary              Rollup counts

ERROR HANDLING:
  Domain errors map to HTTP status:
  - 400: validation, Inactive, ProductMismatch, DuplicateKey, bad qty
  - 404: NotFound
  - 409: InsufficientStock (carries current_qty + requires_confirm)
  - 500: everything else; DeletionForbidden is also logged at Error
    since it means something bypassed the orchestrator

SECURITY NOTE:
  No authentication or authorization; all endpoints are public.

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/inventory-ledger/inventory"
	"github.com/warp/inventory-ledger/store/sqlite"
)

const dateLayout = "2006-01-02"

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Ledger *inventory.Ledger

	validate *validator.Validate
	log      logrus.FieldLogger
}

// NewHandler creates a new handler with the given store and ledger.
func NewHandler(store *sqlite.Store, ledger *inventory.Ledger, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Store:    store,
		Ledger:   ledger,
		validate: validator.New(),
		log:      log,
	}
}

// =============================================================================
// PRODUCT GROUP HANDLERS
// =============================================================================

// CreateGroup creates a product group.
// POST /api/product-groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !h.decode(w, r, &req) {
		return
	}

	now := time.Now().UTC()
	g := inventory.ProductGroup{
		ID:        inventory.GroupID(uuid.NewString()),
		Name:      req.Name,
		IsActive:  boolOrDefault(req.IsActive, true),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Store.SaveGroup(r.Context(), g); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(g))
}

// ListGroups returns groups, filterable by is_active and q.
// GET /api/product-groups
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	filter := sqlite.GroupFilter{
		IsActive: queryBool(r, "is_active"),
		Query:    r.URL.Query().Get("q"),
	}
	groups, err := h.Store.ListGroups(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list product groups", err)
		return
	}
	dtos := make([]GroupDTO, len(groups))
	for i, g := range groups {
		dtos[i] = toGroupDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetGroup returns one group.
// GET /api/product-groups/{id}
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id := inventory.GroupID(chi.URLParam(r, "id"))
	g, err := h.Store.GetGroup(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get product group", err)
		return
	}
	if g == nil {
		h.writeDomainError(w, &inventory.NotFoundError{Kind: "product group", ID: string(id)})
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(*g))
}

// UpdateGroup applies a partial update to a group.
// PUT /api/product-groups/{id}
func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id := inventory.GroupID(chi.URLParam(r, "id"))
	var req UpdateGroupRequest
	if !h.decode(w, r, &req) {
		return
	}

	g, err := h.Store.GetGroup(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get product group", err)
		return
	}
	if g == nil {
		h.writeDomainError(w, &inventory.NotFoundError{Kind: "product group", ID: string(id)})
		return
	}

	if req.Name != nil {
		g.Name = *req.Name
	}
	if req.IsActive != nil {
		g.IsActive = *req.IsActive
	}
	g.UpdatedAt = time.Now().UTC()

	if err := h.Store.SaveGroup(r.Context(), *g); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(*g))
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// CreateProduct creates a product under an active group.
// POST /api/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.assertGroupActive(r, inventory.GroupID(req.GroupID)); err != nil {
		h.writeDomainError(w, err)
		return
	}

	now := time.Now().UTC()
	p := inventory.Product{
		ID:        inventory.ProductID(uuid.NewString()),
		GroupID:   inventory.GroupID(req.GroupID),
		Code:      req.Code,
		Name:      req.Name,
		Spec:      req.Spec,
		IsActive:  boolOrDefault(req.IsActive, true),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Store.SaveProduct(r.Context(), p); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

// ListProducts returns products, filterable by group/code/is_active/q.
// GET /api/products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filter := sqlite.ProductFilter{
		GroupID:  inventory.GroupID(r.URL.Query().Get("group_id")),
		Code:     r.URL.Query().Get("product_code"),
		IsActive: queryBool(r, "is_active"),
		Query:    r.URL.Query().Get("q"),
	}
	products, err := h.Store.ListProducts(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list products", err)
		return
	}
	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProduct returns one product.
// GET /api/products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProductID(chi.URLParam(r, "id"))
	p, err := h.Store.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get product", err)
		return
	}
	if p == nil {
		h.writeDomainError(w, &inventory.NotFoundError{Kind: "product", ID: string(id)})
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}

// UpdateProduct applies a partial update. A group change requires the
// new group to be active.
// PUT /api/products/{id}
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := inventory.ProductID(chi.URLParam(r, "id"))
	var req UpdateProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.Store.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get product", err)
		return
	}
	if p == nil {
		h.writeDomainError(w, &inventory.NotFoundError{Kind: "product", ID: string(id)})
		return
	}

	if req.GroupID != nil {
		if err := h.assertGroupActive(r, inventory.GroupID(*req.GroupID)); err != nil {
			h.writeDomainError(w, err)
			return
		}
		p.GroupID = inventory.GroupID(*req.GroupID)
	}
	if req.Code != nil {
		p.Code = *req.Code
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Spec != nil {
		p.Spec = *req.Spec
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	p.UpdatedAt = time.Now().UTC()

	if err := h.Store.SaveProduct(r.Context(), *p); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*p))
}

// =============================================================================
// LOT HANDLERS
// =============================================================================

// CreateLot creates a lot under an active product.
// POST /api/lots
func (h *Handler) CreateLot(w http.ResponseWriter, r *http.Request) {
	var req CreateLotRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.assertProductActive(r, inventory.ProductID(req.ProductID)); err != nil {
		h.writeDomainError(w, err)
		return
	}

	mfgDate, err := time.Parse(dateLayout, req.MfgDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid mfg_date", err)
		return
	}

	now := time.Now().UTC()
	l := inventory.Lot{
		ID:        inventory.LotID(uuid.NewString()),
		ProductID: inventory.ProductID(req.ProductID),
		MfgDate:   mfgDate,
		LotNo:     req.LotNo,
		IsActive:  boolOrDefault(req.IsActive, true),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Store.SaveLot(r.Context(), l); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLotDTO(l))
}

// ListLots returns lots with the original's filters.
// GET /api/lots
func (h *Handler) ListLots(w http.ResponseWriter, r *http.Request) {
	filter := sqlite.LotFilter{
		ProductID: inventory.ProductID(r.URL.Query().Get("product_id")),
		MfgFrom:   queryDate(r, "mfg_date_from"),
		MfgTo:     queryDate(r, "mfg_date_to"),
		LotNo:     r.URL.Query().Get("lot_no"),
		IsActive:  queryBool(r, "is_active"),
	}
	lots, err := h.Store.ListLots(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list lots", err)
		return
	}
	dtos := make([]LotDTO, len(lots))
	for i, l := range lots {
		dtos[i] = toLotDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLot returns one lot.
// GET /api/lots/{id}
func (h *Handler) GetLot(w http.ResponseWriter, r *http.Request) {
	id := inventory.LotID(chi.URLParam(r, "id"))
	l, err := h.Store.GetLot(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get lot", err)
		return
	}
	if l == nil {
		h.writeDomainError(w, &inventory.NotFoundError{Kind: "lot", ID: string(id)})
		return
	}
	writeJSON(w, http.StatusOK, toLotDTO(*l))
}

// UpdateLot applies a partial update. A product change requires the new
// product to be active.
// PUT /api/lots/{id}
func (h *Handler) UpdateLot(w http.ResponseWriter, r *http.Request) {
	id := inventory.LotID(chi.URLParam(r, "id"))
	var req UpdateLotRequest
	if !h.decode(w, r, &req) {
		return
	}

	l, err := h.Store.GetLot(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get lot", err)
		return
	}
	if l == nil {
		h.writeDomainError(w, &inventory.NotFoundError{Kind: "lot", ID: string(id)})
		return
	}

	if req.ProductID != nil {
		if err := h.assertProductActive(r, inventory.ProductID(*req.ProductID)); err != nil {
			h.writeDomainError(w, err)
			return
		}
		l.ProductID = inventory.ProductID(*req.ProductID)
	}
	if req.MfgDate != nil {
		mfgDate, err := time.Parse(dateLayout, *req.MfgDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid mfg_date", err)
			return
		}
		l.MfgDate = mfgDate
	}
	if req.LotNo != nil {
		l.LotNo = *req.LotNo
	}
	if req.IsActive != nil {
		l.IsActive = *req.IsActive
	}
	l.UpdatedAt = time.Now().UTC()

	if err := h.Store.SaveLot(r.Context(), *l); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLotDTO(*l))
}

// =============================================================================
// MOVEMENT HANDLERS
// =============================================================================

// PostInbound posts an IN movement.
// POST /api/inventory/in
func (h *Handler) PostInbound(w http.ResponseWriter, r *http.Request) {
	var req PostInboundRequest
	if !h.decode(w, r, &req) {
		return
	}

	tx, err := h.Ledger.PostInbound(r.Context(), inventory.PostInput{
		ProductID: inventory.ProductID(req.ProductID),
		LotID:     inventory.LotID(req.LotID),
		Qty:       req.Qty,
		RefDoc:    req.RefDoc,
		Note:      req.Note,
		Actor:     req.Actor,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// PostOutbound posts an OUT movement with the shortage handshake.
// POST /api/inventory/out
func (h *Handler) PostOutbound(w http.ResponseWriter, r *http.Request) {
	var req PostOutboundRequest
	if !h.decode(w, r, &req) {
		return
	}

	tx, err := h.Ledger.PostOutbound(r.Context(), inventory.PostInput{
		ProductID: inventory.ProductID(req.ProductID),
		LotID:     inventory.LotID(req.LotID),
		Qty:       req.Qty,
		RefDoc:    req.RefDoc,
		Note:      req.Note,
		Actor:     req.Actor,
	}, req.ConfirmShortage)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// CorrectTransaction edits a historical transaction in place.
// PUT /api/inventory/transactions/{id}
func (h *Handler) CorrectTransaction(w http.ResponseWriter, r *http.Request) {
	id := inventory.TxID(chi.URLParam(r, "id"))
	var req CorrectTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}

	patch := inventory.Correction{
		Qty:    req.Qty,
		RefDoc: req.RefDoc,
		Note:   req.Note,
	}
	if req.LotID != nil {
		lotID := inventory.LotID(*req.LotID)
		patch.LotID = &lotID
	}

	tx, err := h.Ledger.Correct(r.Context(), id, patch, req.Reason, req.Actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// ListTransactions returns journal rows with the original's filters.
// GET /api/inventory/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter := sqlite.TxFilter{
		From:        queryTime(r, "start_datetime"),
		To:          queryTime(r, "end_datetime"),
		ProductCode: r.URL.Query().Get("product_code"),
		LotID:       inventory.LotID(r.URL.Query().Get("lot_id")),
	}
	txs, err := h.Store.ListTransactions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// QUERY HANDLERS
// =============================================================================

// ListBalances returns the joined on-hand view.
// GET /api/inventory/balance
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	filter := sqlite.BalanceFilter{
		GroupID:     inventory.GroupID(r.URL.Query().Get("group_id")),
		ProductCode: r.URL.Query().Get("product_code"),
		MfgFrom:     queryDate(r, "mfg_date_from"),
		MfgTo:       queryDate(r, "mfg_date_to"),
		LotNo:       r.URL.Query().Get("lot_no"),
	}
	balances, err := h.Store.ListBalances(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list balances", err)
		return
	}
	dtos := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = toBalanceDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListAuditLogs returns the audit trail, filterable by entity type/id.
// GET /api/audit-logs
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	filter := inventory.AuditFilter{
		EntityType: r.URL.Query().Get("entity_type"),
		EntityID:   r.URL.Query().Get("entity_id"),
	}
	entries, err := h.Store.ListAudit(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list audit logs", err)
		return
	}
	dtos := make([]AuditDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DashboardSummary returns rollup counts.
// GET /api/dashboard/summary
func (h *Handler) DashboardSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Store.DashboardSummary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute summary", err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardSummaryDTO{
		ProductCount: sum.ProductCount,
		LotCount:     sum.LotCount,
		TotalQty:     sum.TotalQty,
	})
}

// =============================================================================
// SHARED CHECKS
// =============================================================================

func (h *Handler) assertGroupActive(r *http.Request, id inventory.GroupID) error {
	g, err := h.Store.GetGroup(r.Context(), id)
	if err != nil {
		return err
	}
	if g == nil {
		return &inventory.NotFoundError{Kind: "product group", ID: string(id)}
	}
	if !g.IsActive {
		return &inventory.InactiveError{Level: "product group", ID: string(id)}
	}
	return nil
}

func (h *Handler) assertProductActive(r *http.Request, id inventory.ProductID) error {
	p, err := h.Store.GetProduct(r.Context(), id)
	if err != nil {
		return err
	}
	if p == nil {
		return &inventory.NotFoundError{Kind: "product", ID: string(id)}
	}
	if !p.IsActive {
		return &inventory.InactiveError{Level: "product", ID: string(id)}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// decode parses and validates the request body. Writes the error
// response itself and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var ise *inventory.InsufficientStockError
	if errors.As(err, &ise) {
		writeJSON(w, http.StatusConflict, InsufficientStockResponse{
			Message:         "Insufficient stock",
			CurrentQty:      ise.CurrentQty,
			RequiresConfirm: ise.RequiresConfirm,
		})
		return
	}

	switch {
	case inventory.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case inventory.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, inventory.ErrDeletionForbidden) || sqlite.IsDeletionBlocked(err):
		// Nothing on this API deletes journal rows; reaching here means
		// something bypassed the orchestrator.
		h.log.WithError(err).Error("journal delete attempt blocked")
		writeError(w, http.StatusInternalServerError, "Deletion forbidden", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func boolOrDefault(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func queryBool(r *http.Request, key string) *bool {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func queryDate(r *http.Request, key string) *time.Time {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil
	}
	return &t
}

func queryTime(r *http.Request, key string) *time.Time {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}
