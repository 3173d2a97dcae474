package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ricemill/ricemill-backend/internal/ledger"
	"github.com/ricemill/ricemill-backend/internal/stock/service"
	"github.com/ricemill/ricemill-backend/pkg/actor"
	"github.com/ricemill/ricemill-backend/pkg/httputil"
	"github.com/ricemill/ricemill-backend/pkg/logger"
)

// StockHandler handles stock movement endpoints
type StockHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(svc *service.StockService, log *logger.Logger) *StockHandler {
	return &StockHandler{
		service: svc,
		logger:  log,
	}
}

// AssignRequest is the request body for assigning stock to a location
type AssignRequest struct {
	ProductID  string  `json:"product_id" validate:"required,uuid"`
	LocationID string  `json:"location_id" validate:"required,uuid"`
	Quantity   int     `json:"quantity" validate:"required,gt=0"`
	Note       *string `json:"note"`
}

// Assign places stock at a location
func (h *StockHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	txn, err := h.service.Assign(r.Context(), req.ProductID, req.LocationID, req.Quantity, req.Note, actor.UserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, txn)
}

// TransferRequest is the request body for transferring stock
type TransferRequest struct {
	ProductID        string  `json:"product_id" validate:"required,uuid"`
	SourceLocationID string  `json:"source_location_id" validate:"required,uuid"`
	TargetLocationID string  `json:"target_location_id" validate:"required,uuid"`
	Quantity         int     `json:"quantity" validate:"required,gt=0"`
	Note             *string `json:"note"`
}

// Transfer moves stock between locations
func (h *StockHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	err := h.service.Transfer(r.Context(), req.ProductID, req.SourceLocationID, req.TargetLocationID, req.Quantity, req.Note, actor.UserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

// AdjustRequest is the request body for a manual stock adjustment
type AdjustRequest struct {
	ProductID      string `json:"product_id" validate:"required,uuid"`
	LocationID     string `json:"location_id" validate:"required,uuid"`
	AdjustmentType string `json:"adjustment_type" validate:"required,oneof=ADD REMOVE SET"`
	Quantity       int    `json:"quantity" validate:"gte=0"`
	Reason         string `json:"reason" validate:"required"`
}

// Adjust manually corrects a location's stock
func (h *StockHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Adjust(r.Context(), ledger.Adjustment{
		ProductID:  req.ProductID,
		LocationID: req.LocationID,
		Mode:       ledger.AdjustMode(req.AdjustmentType),
		Quantity:   req.Quantity,
		Reason:     req.Reason,
		CreatedBy:  actor.UserID(r.Context()),
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// GetByProduct returns a product's stock broken down by location
func (h *StockHandler) GetByProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	view, err := h.service.GetByProduct(r.Context(), productID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, view)
}

// GetByLocation returns the stock held at a location
func (h *StockHandler) GetByLocation(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "id")
	rows, err := h.service.GetByLocation(r.Context(), locationID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rows)
}

// ListTransactions returns a product's audit trail
func (h *StockHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	txns, total, err := h.service.ListTransactions(r.Context(), productID, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	httputil.JSONWithMeta(w, http.StatusOK, txns, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Reconcile checks aggregate consistency, optionally repairing drift
func (h *StockHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	repair := r.URL.Query().Get("repair") == "true"
	report, err := h.service.Reconcile(r.Context(), repair, actor.UserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}
