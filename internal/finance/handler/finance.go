package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ricemill/ricemill-backend/internal/finance/service"
	"github.com/ricemill/ricemill-backend/pkg/httputil"
	"github.com/ricemill/ricemill-backend/pkg/logger"
)

// FinanceHandler handles finance ledger endpoints
type FinanceHandler struct {
	service *service.FinanceService
	logger  *logger.Logger
}

// NewFinanceHandler creates a new finance handler
func NewFinanceHandler(svc *service.FinanceService, log *logger.Logger) *FinanceHandler {
	return &FinanceHandler{
		service: svc,
		logger:  log,
	}
}

// List lists finance transactions; ?kind= and ?status= filter
func (h *FinanceHandler) List(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	status := r.URL.Query().Get("status")

	txns, err := h.service.List(r.Context(), kind, status)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, txns)
}

// Get gets a finance transaction by ID
func (h *FinanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	txn, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, txn)
}

// MarkPaid settles a pending transaction
func (h *FinanceHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	txn, err := h.service.MarkPaid(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, txn)
}

// ListByPurchaseOrder lists the finance trail of a purchase order
func (h *FinanceHandler) ListByPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	txns, err := h.service.ListByPurchaseOrder(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, txns)
}

// ListByOrder lists the finance trail of a sales order
func (h *FinanceHandler) ListByOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	txns, err := h.service.ListByOrder(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, txns)
}
