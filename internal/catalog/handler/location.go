package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ricemill/ricemill-backend/internal/catalog/repository"
	"github.com/ricemill/ricemill-backend/internal/catalog/service"
	"github.com/ricemill/ricemill-backend/pkg/httputil"
	"github.com/ricemill/ricemill-backend/pkg/logger"
)

// LocationHandler handles location endpoints
type LocationHandler struct {
	service *service.CatalogService
	logger  *logger.Logger
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(svc *service.CatalogService, log *logger.Logger) *LocationHandler {
	return &LocationHandler{
		service: svc,
		logger:  log,
	}
}

// CreateLocationRequest is the request body for creating a location
type CreateLocationRequest struct {
	Name     string  `json:"name" validate:"required"`
	Code     string  `json:"code" validate:"required"`
	Type     string  `json:"type" validate:"required,oneof=WAREHOUSE ZONE SHELF BIN"`
	ParentID *string `json:"parent_id" validate:"omitempty,uuid"`
	Capacity *int    `json:"capacity" validate:"omitempty,gt=0"`
}

// Create creates a new location
func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateLocationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	loc := &repository.Location{
		Name:     req.Name,
		Code:     req.Code,
		Type:     req.Type,
		ParentID: req.ParentID,
		Capacity: req.Capacity,
	}
	if err := h.service.CreateLocation(r.Context(), loc); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, loc)
}

// Get gets a location by ID
func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	loc, err := h.service.GetLocation(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, loc)
}

// List lists active locations, optionally filtered by type
func (h *LocationHandler) List(w http.ResponseWriter, r *http.Request) {
	locationType := r.URL.Query().Get("type")
	locations, err := h.service.ListLocations(r.Context(), locationType)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, locations)
}

// GetTree returns the full warehouse hierarchy
func (h *LocationHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.service.GetLocationTree(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, tree)
}

// UpdateLocationRequest is the request body for updating a location
type UpdateLocationRequest struct {
	Name     string `json:"name" validate:"required"`
	Code     string `json:"code" validate:"required"`
	Capacity *int   `json:"capacity" validate:"omitempty,gt=0"`
	IsActive bool   `json:"is_active"`
}

// Update updates a location
func (h *LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateLocationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	loc := &repository.Location{
		ID:       id,
		Name:     req.Name,
		Code:     req.Code,
		Capacity: req.Capacity,
		IsActive: req.IsActive,
	}
	if err := h.service.UpdateLocation(r.Context(), loc); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, loc)
}

// Deactivate marks a location inactive
func (h *LocationHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeactivateLocation(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}
