package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ricemill/ricemill-backend/internal/sales/repository"
	"github.com/ricemill/ricemill-backend/internal/sales/service"
	"github.com/ricemill/ricemill-backend/pkg/actor"
	"github.com/ricemill/ricemill-backend/pkg/httputil"
	"github.com/ricemill/ricemill-backend/pkg/logger"
)

// SalesHandler handles sales order and delivery endpoints
type SalesHandler struct {
	service *service.SalesService
	logger  *logger.Logger
}

// NewSalesHandler creates a new sales handler
func NewSalesHandler(svc *service.SalesService, log *logger.Logger) *SalesHandler {
	return &SalesHandler{
		service: svc,
		logger:  log,
	}
}

// CreateOrderRequest is the request body for creating a sales order
type CreateOrderRequest struct {
	CustomerName  string  `json:"customer_name" validate:"required"`
	CustomerPhone *string `json:"customer_phone"`
	Address       *string `json:"address"`
	Note          *string `json:"note"`
	Lines         []struct {
		ProductID string `json:"product_id" validate:"required,uuid"`
		Quantity  int    `json:"quantity" validate:"required,gt=0"`
	} `json:"lines" validate:"required,min=1,dive"`
}

// CreateOrder creates a sales order
func (h *SalesHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	in := service.CreateOrderInput{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Address:       req.Address,
		Note:          req.Note,
		CreatedBy:     actor.UserID(r.Context()),
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, service.NewOrderLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}

	o, err := h.service.CreateOrder(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, o)
}

// OrderWithDeliveries is the detail view of an order
type OrderWithDeliveries struct {
	*repository.Order
	Deliveries []*repository.Delivery `json:"deliveries"`
}

// GetOrder gets an order with its lines and deliveries
func (h *SalesHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, deliveries, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, &OrderWithDeliveries{Order: o, Deliveries: deliveries})
}

// ListOrders lists sales orders
func (h *SalesHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	status := r.URL.Query().Get("status")

	orders, total, err := h.service.ListOrders(r.Context(), page, perPage, status)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	httputil.JSONWithMeta(w, http.StatusOK, orders, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// CreateDeliveryRequest is the request body for splitting off a delivery
type CreateDeliveryRequest struct {
	Lines []struct {
		OrderItemID string `json:"order_item_id" validate:"required,uuid"`
		Quantity    int    `json:"quantity" validate:"required,gt=0"`
	} `json:"lines" validate:"required,min=1,dive"`
	Note *string `json:"note"`
}

// CreateDelivery splits part of an order into a shipment
func (h *SalesHandler) CreateDelivery(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req CreateDeliveryRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	var lines []service.NewDeliveryLine
	for _, line := range req.Lines {
		lines = append(lines, service.NewDeliveryLine{
			OrderItemID: line.OrderItemID,
			Quantity:    line.Quantity,
		})
	}

	d, err := h.service.CreateDelivery(r.Context(), orderID, lines, req.Note)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, d)
}

// GetDelivery gets a delivery with its lines
func (h *SalesHandler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := h.service.GetDelivery(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, d)
}

// ShipmentStatusRequest is the request body for advancing shipment status
type ShipmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof='Processing Order' 'In Transit' Delivered"`
}

// UpdateShipmentStatus advances a delivery's shipment status
func (h *SalesHandler) UpdateShipmentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ShipmentStatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	d, err := h.service.UpdateShipmentStatus(r.Context(), id, req.Status)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, d)
}

// Fulfill books the stock-out for a delivered shipment
func (h *SalesHandler) Fulfill(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := h.service.Fulfill(r.Context(), id, actor.UserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, d)
}
