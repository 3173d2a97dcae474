package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ricemill/ricemill-backend/internal/purchasing/repository"
	"github.com/ricemill/ricemill-backend/internal/purchasing/service"
	"github.com/ricemill/ricemill-backend/pkg/httputil"
	"github.com/ricemill/ricemill-backend/pkg/logger"
)

// SupplierHandler handles supplier endpoints
type SupplierHandler struct {
	service *service.PurchasingService
	logger  *logger.Logger
}

// NewSupplierHandler creates a new supplier handler
func NewSupplierHandler(svc *service.PurchasingService, log *logger.Logger) *SupplierHandler {
	return &SupplierHandler{
		service: svc,
		logger:  log,
	}
}

// SupplierRequest is the request body for creating or updating a supplier
type SupplierRequest struct {
	Name        string  `json:"name" validate:"required"`
	ContactName *string `json:"contact_name"`
	Phone       *string `json:"phone"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Address     *string `json:"address"`
	IsActive    *bool   `json:"is_active"`
}

// Create creates a supplier
func (h *SupplierHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req SupplierRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	sup := &repository.Supplier{
		Name:        req.Name,
		ContactName: req.ContactName,
		Phone:       req.Phone,
		Email:       req.Email,
		Address:     req.Address,
	}
	if err := h.service.CreateSupplier(r.Context(), sup); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, sup)
}

// Get gets a supplier by ID
func (h *SupplierHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sup, err := h.service.GetSupplier(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, sup)
}

// List lists active suppliers
func (h *SupplierHandler) List(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.service.ListSuppliers(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, suppliers)
}

// Update updates a supplier
func (h *SupplierHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SupplierRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	sup := &repository.Supplier{
		ID:          id,
		Name:        req.Name,
		ContactName: req.ContactName,
		Phone:       req.Phone,
		Email:       req.Email,
		Address:     req.Address,
		IsActive:    isActive,
	}
	if err := h.service.UpdateSupplier(r.Context(), sup); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, sup)
}
