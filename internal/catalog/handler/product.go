package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ricemill/ricemill-backend/internal/catalog/repository"
	"github.com/ricemill/ricemill-backend/internal/catalog/service"
	"github.com/ricemill/ricemill-backend/pkg/httputil"
	"github.com/ricemill/ricemill-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// ProductHandler handles product endpoints
type ProductHandler struct {
	service *service.CatalogService
	logger  *logger.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(svc *service.CatalogService, log *logger.Logger) *ProductHandler {
	return &ProductHandler{
		service: svc,
		logger:  log,
	}
}

// CreateProductRequest is the request body for creating a product
type CreateProductRequest struct {
	Name             string           `json:"name" validate:"required"`
	Category         string           `json:"category" validate:"required"`
	Price            decimal.Decimal  `json:"price"`
	IsMilledRice     bool             `json:"is_milled_rice"`
	MillingYieldRate *decimal.Decimal `json:"milling_yield_rate"`
	ReorderPoint     int              `json:"reorder_point" validate:"gte=0"`
	SupplierID       *string          `json:"supplier_id" validate:"omitempty,uuid"`
	IsHidden         bool             `json:"is_hidden"`
}

// Create creates a new product
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	p := &repository.Product{
		Name:             req.Name,
		Category:         req.Category,
		Price:            req.Price,
		IsMilledRice:     req.IsMilledRice,
		MillingYieldRate: req.MillingYieldRate,
		ReorderPoint:     req.ReorderPoint,
		SupplierID:       req.SupplierID,
		IsHidden:         req.IsHidden,
	}
	if err := h.service.CreateProduct(r.Context(), p); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, p)
}

// Get gets a product by ID
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, p)
}

// List lists products with pagination
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	category := r.URL.Query().Get("category")
	includeHidden := r.URL.Query().Get("include_hidden") == "true"

	products, total, err := h.service.ListProducts(r.Context(), page, perPage, category, includeHidden)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	httputil.JSONWithMeta(w, http.StatusOK, products, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// UpdateProductRequest is the request body for updating a product
type UpdateProductRequest struct {
	Name             string           `json:"name" validate:"required"`
	Category         string           `json:"category" validate:"required"`
	Price            decimal.Decimal  `json:"price"`
	IsMilledRice     bool             `json:"is_milled_rice"`
	MillingYieldRate *decimal.Decimal `json:"milling_yield_rate"`
	ReorderPoint     int              `json:"reorder_point" validate:"gte=0"`
	SupplierID       *string          `json:"supplier_id" validate:"omitempty,uuid"`
	IsHidden         bool             `json:"is_hidden"`
}

// Update updates a product
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateProductRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	p := &repository.Product{
		ID:               id,
		Name:             req.Name,
		Category:         req.Category,
		Price:            req.Price,
		IsMilledRice:     req.IsMilledRice,
		MillingYieldRate: req.MillingYieldRate,
		ReorderPoint:     req.ReorderPoint,
		SupplierID:       req.SupplierID,
		IsHidden:         req.IsHidden,
	}
	if err := h.service.UpdateProduct(r.Context(), p); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, p)
}

// Delete soft deletes a product
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// LowStock lists products below their reorder point
func (h *ProductHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListLowStock(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, products)
}
