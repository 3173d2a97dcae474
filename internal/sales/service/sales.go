package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	catalogrepo "github.com/ricemill/ricemill-backend/internal/catalog/repository"
	financerepo "github.com/ricemill/ricemill-backend/internal/finance/repository"
	"github.com/ricemill/ricemill-backend/internal/ledger"
	"github.com/ricemill/ricemill-backend/internal/sales/repository"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
	"github.com/ricemill/ricemill-backend/pkg/logger"
)

// SalesService handles customer orders, deliveries and fulfillment
type SalesService struct {
	db           *database.DB
	ledger       *ledger.Ledger
	orderRepo    *repository.OrderRepository
	deliveryRepo *repository.DeliveryRepository
	productRepo  *catalogrepo.ProductRepository
	financeRepo  *financerepo.TransactionRepository
	logger       *logger.Logger
}

// NewSalesService creates a new sales service
func NewSalesService(
	db *database.DB,
	led *ledger.Ledger,
	orderRepo *repository.OrderRepository,
	deliveryRepo *repository.DeliveryRepository,
	productRepo *catalogrepo.ProductRepository,
	financeRepo *financerepo.TransactionRepository,
	log *logger.Logger,
) *SalesService {
	return &SalesService{
		db:           db,
		ledger:       led,
		orderRepo:    orderRepo,
		deliveryRepo: deliveryRepo,
		productRepo:  productRepo,
		financeRepo:  financeRepo,
		logger:       log,
	}
}

// NewOrderLine describes one line of a new sales order
type NewOrderLine struct {
	ProductID string
	Quantity  int
}

// CreateOrderInput describes a new sales order
type CreateOrderInput struct {
	CustomerName  string
	CustomerPhone *string
	Address       *string
	Note          *string
	Lines         []NewOrderLine
	CreatedBy     string
}

// CreateOrder creates a sales order in processing status and books a
// receivable for the order total. Prices are snapshotted from the catalog;
// stock is not touched until a delivery is fulfilled.
func (s *SalesService) CreateOrder(ctx context.Context, in CreateOrderInput) (*repository.Order, error) {
	if len(in.Lines) == 0 {
		return nil, errors.BadRequest("an order requires at least one line")
	}

	o := &repository.Order{
		OrderNumber:   newOrderNumber(),
		CustomerName:  in.CustomerName,
		CustomerPhone: in.CustomerPhone,
		Address:       in.Address,
		Status:        repository.OrderStatusProcessing,
		Note:          in.Note,
		CreatedBy:     in.CreatedBy,
	}

	for _, line := range in.Lines {
		p, err := s.productRepo.GetByID(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if line.Quantity <= 0 {
			return nil, errors.Validation(map[string]string{"quantity": "must be positive"})
		}
		o.Items = append(o.Items, &repository.OrderItem{
			ProductID: p.ID,
			Quantity:  line.Quantity,
			Price:     p.Price,
		})
	}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.orderRepo.Create(ctx, tx, o); err != nil {
			return err
		}
		return s.financeRepo.Create(ctx, tx, &financerepo.Transaction{
			Kind:      financerepo.KindReceivable,
			OrderID:   &o.ID,
			Amount:    o.Total(),
			CreatedBy: in.CreatedBy,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", o.ID).
		Str("order_number", o.OrderNumber).
		Msg("sales order created")

	return o, nil
}

// GetOrder gets an order with its lines and deliveries
func (s *SalesService) GetOrder(ctx context.Context, id string) (*repository.Order, []*repository.Delivery, error) {
	o, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	deliveries, err := s.deliveryRepo.ListByOrder(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return o, deliveries, nil
}

// ListOrders lists sales orders
func (s *SalesService) ListOrders(ctx context.Context, page, perPage int, status string) ([]*repository.Order, int64, error) {
	return s.orderRepo.List(ctx, page, perPage, status)
}

// NewDeliveryLine describes one line of a new delivery
type NewDeliveryLine struct {
	OrderItemID string
	Quantity    int
}

// CreateDelivery splits part of an order into a shipment. Each line is
// capped at the order line's pending quantity net of what earlier pending
// deliveries already plan to ship.
func (s *SalesService) CreateDelivery(ctx context.Context, orderID string, lines []NewDeliveryLine, note *string) (*repository.Delivery, error) {
	if len(lines) == 0 {
		return nil, errors.BadRequest("a delivery requires at least one line")
	}

	var d *repository.Delivery
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		o, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		itemsByID := make(map[string]*repository.OrderItem, len(o.Items))
		for _, item := range o.Items {
			itemsByID[item.ID] = item
		}

		planned, err := s.plannedQuantities(ctx, tx, orderID)
		if err != nil {
			return err
		}

		d = &repository.Delivery{OrderID: orderID, Note: note}
		for _, line := range lines {
			item, ok := itemsByID[line.OrderItemID]
			if !ok {
				return errors.NotFound("order item")
			}
			if line.Quantity <= 0 {
				return errors.Validation(map[string]string{"quantity": "must be positive"})
			}

			shippable := item.QuantityPending - planned[item.ID]
			if line.Quantity > shippable {
				return errors.Conflict(fmt.Sprintf(
					"order line %s has only %d units left to ship", item.ID, shippable))
			}

			d.Items = append(d.Items, &repository.DeliveryItem{
				OrderItemID: item.ID,
				ProductID:   item.ProductID,
				Quantity:    line.Quantity,
			})
		}

		return s.deliveryRepo.Create(ctx, tx, d)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("delivery_id", d.ID).
		Str("order_id", orderID).
		Msg("delivery created")

	return d, nil
}

// plannedQuantities sums, per order line, the quantities already claimed by
// pending deliveries of the order.
func (s *SalesService) plannedQuantities(ctx context.Context, q database.Queryer, orderID string) (map[string]int, error) {
	deliveries, err := s.deliveryRepo.ListByOrderIn(ctx, q, orderID)
	if err != nil {
		return nil, err
	}

	planned := make(map[string]int)
	for _, d := range deliveries {
		if d.FulfillmentStatus != repository.FulfillmentPending {
			continue
		}
		full, err := s.deliveryRepo.GetByIDForUpdate(ctx, q, d.ID)
		if err != nil {
			return nil, err
		}
		for _, item := range full.Items {
			planned[item.OrderItemID] += item.Quantity
		}
	}
	return planned, nil
}

// GetDelivery gets a delivery with its lines
func (s *SalesService) GetDelivery(ctx context.Context, id string) (*repository.Delivery, error) {
	return s.deliveryRepo.GetByID(ctx, id)
}

// shipmentOrder drives the forward-only shipment progression
var shipmentOrder = map[string]int{
	repository.ShipmentProcessing: 0,
	repository.ShipmentInTransit:  1,
	repository.ShipmentDelivered:  2,
}

// UpdateShipmentStatus advances a delivery's shipment status. Moving
// backwards is rejected; fulfillment separately requires Delivered.
func (s *SalesService) UpdateShipmentStatus(ctx context.Context, id, status string) (*repository.Delivery, error) {
	rank, ok := shipmentOrder[status]
	if !ok {
		return nil, errors.BadRequest("unknown shipment status")
	}

	d, err := s.deliveryRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rank <= shipmentOrder[d.ShipmentStatus] {
		return nil, errors.Conflict(fmt.Sprintf(
			"shipment status cannot move from %q to %q", d.ShipmentStatus, status))
	}

	if err := s.deliveryRepo.UpdateShipmentStatus(ctx, id, status); err != nil {
		return nil, err
	}
	d.ShipmentStatus = status

	s.logger.Info().
		Str("delivery_id", id).
		Str("shipment_status", status).
		Msg("shipment status updated")

	return d, nil
}

// Fulfill books the ledger stock-out for a delivered shipment. Every line
// is deducted FIFO; if any single line cannot be fully satisfied the whole
// fulfillment aborts with the short product named, leaving all stock and
// counters untouched. On success the order's allocated aggregate grows by
// the shipped quantities and the delivery and order statuses are refolded.
func (s *SalesService) Fulfill(ctx context.Context, deliveryID, performedBy string) (*repository.Delivery, error) {
	var d *repository.Delivery
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		d, err = s.deliveryRepo.GetByIDForUpdate(ctx, tx, deliveryID)
		if err != nil {
			return err
		}
		if d.ShipmentStatus != repository.ShipmentDelivered {
			return errors.Conflict("delivery has not arrived yet; shipment status must be Delivered")
		}
		if d.FulfillmentStatus != repository.FulfillmentPending {
			return errors.Conflict("delivery is already fulfilled")
		}

		o, err := s.orderRepo.GetByIDForUpdate(ctx, tx, d.OrderID)
		if err != nil {
			return err
		}
		itemsByID := make(map[string]*repository.OrderItem, len(o.Items))
		for _, item := range o.Items {
			itemsByID[item.ID] = item
		}

		for _, line := range d.Items {
			item, ok := itemsByID[line.OrderItemID]
			if !ok {
				return errors.NotFound("order item")
			}

			if _, err := s.ledger.StockOut(ctx, tx, ledger.Entry{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: &item.Price,
				CreatedBy: performedBy,
			}, ledger.FIFO); err != nil {
				return err
			}

			if err := s.productRepo.AddStockAllocated(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return err
			}

			item.QuantityFulfilled += line.Quantity
			item.QuantityPending -= line.Quantity
			if err := s.orderRepo.UpdateItemProgress(ctx, tx, item); err != nil {
				return err
			}
		}

		if err := s.deliveryRepo.MarkFulfilled(ctx, tx, d.ID); err != nil {
			return err
		}
		d.FulfillmentStatus = repository.FulfillmentFulfilled

		status, err := s.foldOrderStatus(ctx, tx, o)
		if err != nil {
			return err
		}
		return s.orderRepo.UpdateStatus(ctx, tx, o.ID, status)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("delivery_id", deliveryID).
		Str("order_id", d.OrderID).
		Msg("delivery fulfilled")

	return d, nil
}

// foldOrderStatus derives the order status from its deliveries and line
// counters: completed once every line is fully fulfilled, partial once any
// delivery has been fulfilled, processing otherwise.
func (s *SalesService) foldOrderStatus(ctx context.Context, q database.Queryer, o *repository.Order) (string, error) {
	allFulfilled := true
	for _, item := range o.Items {
		if item.QuantityPending > 0 {
			allFulfilled = false
			break
		}
	}
	if allFulfilled {
		return repository.OrderStatusCompleted, nil
	}

	deliveries, err := s.deliveryRepo.ListByOrderIn(ctx, q, o.ID)
	if err != nil {
		return "", err
	}
	for _, d := range deliveries {
		if d.FulfillmentStatus == repository.FulfillmentFulfilled {
			return repository.OrderStatusPartial, nil
		}
	}
	return repository.OrderStatusProcessing, nil
}

func newOrderNumber() string {
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("SO-%s-%s", time.Now().UTC().Format("20060102"), strings.ToUpper(suffix))
}
