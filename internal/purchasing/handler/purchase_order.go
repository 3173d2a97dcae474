package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ricemill/ricemill-backend/internal/purchasing/service"
	"github.com/ricemill/ricemill-backend/pkg/actor"
	"github.com/ricemill/ricemill-backend/pkg/httputil"
	"github.com/ricemill/ricemill-backend/pkg/logger"
)

// PurchaseOrderHandler handles purchase order endpoints
type PurchaseOrderHandler struct {
	service *service.PurchasingService
	logger  *logger.Logger
}

// NewPurchaseOrderHandler creates a new purchase order handler
func NewPurchaseOrderHandler(svc *service.PurchasingService, log *logger.Logger) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{
		service: svc,
		logger:  log,
	}
}

// CreateOrderRequest is the request body for creating a purchase order
type CreateOrderRequest struct {
	SupplierID   string     `json:"supplier_id" validate:"required,uuid"`
	PaymentType  string     `json:"payment_type" validate:"required,oneof=FULL MONTHLY"`
	MonthlyTerms *int       `json:"monthly_terms" validate:"omitempty,gt=0"`
	DueDate      *time.Time `json:"due_date"`
	Note         *string    `json:"note"`
	Lines        []struct {
		ProductID string `json:"product_id" validate:"required,uuid"`
		Quantity  int    `json:"quantity" validate:"required,gt=0"`
	} `json:"lines" validate:"required,min=1,dive"`
}

// Create creates a purchase order
func (h *PurchaseOrderHandler) Create(w http.ResponseWriter, r *http.Request) {
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
		SupplierID:   req.SupplierID,
		PaymentType:  req.PaymentType,
		MonthlyTerms: req.MonthlyTerms,
		DueDate:      req.DueDate,
		Note:         req.Note,
		CreatedBy:    actor.UserID(r.Context()),
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, service.NewOrderLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}

	po, err := h.service.CreateOrder(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, po)
}

// Get gets a purchase order with its lines
func (h *PurchaseOrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	po, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, po)
}

// List lists purchase orders
func (h *PurchaseOrderHandler) List(w http.ResponseWriter, r *http.Request) {
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

// Place moves a pending purchase order to Ordered
func (h *PurchaseOrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	po, err := h.service.PlaceOrder(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, po)
}

// Cancel cancels a purchase order that has received nothing
func (h *PurchaseOrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.CancelOrder(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// ReceiveRequest is the request body for receiving stock against an order
type ReceiveRequest struct {
	Lines []struct {
		PurchaseOrderItemID string     `json:"purchase_order_item_id" validate:"required,uuid"`
		LocationID          string     `json:"location_id" validate:"required,uuid"`
		ReceivedNow         int        `json:"received_now" validate:"required,gt=0"`
		ExpectedDate        *time.Time `json:"expected_date"`
	} `json:"lines" validate:"required,min=1,dive"`
	Note *string `json:"note"`
}

// Receive books arrived stock against a purchase order
func (h *PurchaseOrderHandler) Receive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ReceiveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	in := service.ReceiveInput{
		PurchaseOrderID: id,
		Note:            req.Note,
		PerformedBy:     actor.UserID(r.Context()),
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, service.ReceiveLine{
			PurchaseOrderItemID: line.PurchaseOrderItemID,
			LocationID:          line.LocationID,
			ReceivedNow:         line.ReceivedNow,
			ExpectedDate:        line.ExpectedDate,
		})
	}

	result, err := h.service.Receive(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// CreateReturnRequest is the request body for returning stock to the supplier
type CreateReturnRequest struct {
	Reason string `json:"reason" validate:"required"`
	Items  []struct {
		PurchaseOrderItemID string  `json:"purchase_order_item_id" validate:"required,uuid"`
		Quantity            int     `json:"quantity" validate:"required,gt=0"`
		Note                *string `json:"note"`
	} `json:"items" validate:"required,min=1,dive"`
}

// CreateReturn books a return against a purchase order
func (h *PurchaseOrderHandler) CreateReturn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CreateReturnRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	in := service.CreateReturnInput{
		PurchaseOrderID: id,
		Reason:          req.Reason,
		PerformedBy:     actor.UserID(r.Context()),
	}
	for _, item := range req.Items {
		in.Lines = append(in.Lines, service.ReturnLine{
			PurchaseOrderItemID: item.PurchaseOrderItemID,
			Quantity:            item.Quantity,
			Note:                item.Note,
		})
	}

	ret, err := h.service.CreateReturn(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, ret)
}

// ListReturns lists returns against a purchase order
func (h *PurchaseOrderHandler) ListReturns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	returns, err := h.service.ListReturnsByOrder(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, returns)
}
