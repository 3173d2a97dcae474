package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ricemill/ricemill-backend/internal/purchasing/service"
	"github.com/ricemill/ricemill-backend/pkg/httputil"
	"github.com/ricemill/ricemill-backend/pkg/logger"
)

// BackorderHandler handles backorder endpoints
type BackorderHandler struct {
	service *service.PurchasingService
	logger  *logger.Logger
}

// NewBackorderHandler creates a new backorder handler
func NewBackorderHandler(svc *service.PurchasingService, log *logger.Logger) *BackorderHandler {
	return &BackorderHandler{
		service: svc,
		logger:  log,
	}
}

// List lists backorders; ?outstanding=true restricts to open ones
func (h *BackorderHandler) List(w http.ResponseWriter, r *http.Request) {
	outstandingOnly := r.URL.Query().Get("outstanding") == "true"
	backorders, err := h.service.ListBackorders(r.Context(), outstandingOnly)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, backorders)
}

// Get gets a backorder with its order, product and supplier
func (h *BackorderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, err := h.service.GetBackorder(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, detail)
}

// Remind publishes a supplier reminder for an open backorder
func (h *BackorderHandler) Remind(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, err := h.service.RemindBackorder(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, detail)
}
