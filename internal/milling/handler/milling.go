package handler

import (
	"net/http"

	"github.com/ricemill/ricemill-backend/internal/milling/service"
	"github.com/ricemill/ricemill-backend/pkg/actor"
	"github.com/ricemill/ricemill-backend/pkg/httputil"
	"github.com/ricemill/ricemill-backend/pkg/logger"
)

// MillingHandler handles milling conversion endpoints
type MillingHandler struct {
	service *service.MillingService
	logger  *logger.Logger
}

// NewMillingHandler creates a new milling handler
func NewMillingHandler(svc *service.MillingService, log *logger.Logger) *MillingHandler {
	return &MillingHandler{
		service: svc,
		logger:  log,
	}
}

// MillRequest is the request body for a milling conversion
type MillRequest struct {
	SourceProductID  string `json:"source_product_id" validate:"required,uuid"`
	SourceLocationID string `json:"source_location_id" validate:"required,uuid"`
	TargetLocationID string `json:"target_location_id" validate:"required,uuid"`
	Quantity         int    `json:"quantity" validate:"required,gt=0"`
}

// Mill converts unmilled rice into its derived milled product
func (h *MillingHandler) Mill(w http.ResponseWriter, r *http.Request) {
	var req MillRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Mill(r.Context(),
		req.SourceProductID, req.SourceLocationID, req.TargetLocationID,
		req.Quantity, actor.UserID(r.Context()),
	)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
