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
	"github.com/ricemill/ricemill-backend/internal/purchasing/repository"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
	"github.com/ricemill/ricemill-backend/pkg/logger"
)

// EventPublisher publishes domain events. Satisfied by messaging.Publisher
// and by the test mock.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// PurchasingService handles the purchase order lifecycle: creation,
// placement, receiving, returns, backorders.
type PurchasingService struct {
	db            *database.DB
	ledger        *ledger.Ledger
	orderRepo     *repository.PurchaseOrderRepository
	backorderRepo *repository.BackorderRepository
	returnRepo    *repository.PurchaseReturnRepository
	supplierRepo  *repository.SupplierRepository
	productRepo   *catalogrepo.ProductRepository
	financeRepo   *financerepo.TransactionRepository
	publisher     EventPublisher
	logger        *logger.Logger
}

// NewPurchasingService creates a new purchasing service
func NewPurchasingService(
	db *database.DB,
	led *ledger.Ledger,
	orderRepo *repository.PurchaseOrderRepository,
	backorderRepo *repository.BackorderRepository,
	returnRepo *repository.PurchaseReturnRepository,
	supplierRepo *repository.SupplierRepository,
	productRepo *catalogrepo.ProductRepository,
	financeRepo *financerepo.TransactionRepository,
	publisher EventPublisher,
	log *logger.Logger,
) *PurchasingService {
	return &PurchasingService{
		db:            db,
		ledger:        led,
		orderRepo:     orderRepo,
		backorderRepo: backorderRepo,
		returnRepo:    returnRepo,
		supplierRepo:  supplierRepo,
		productRepo:   productRepo,
		financeRepo:   financeRepo,
		publisher:     publisher,
		logger:        log,
	}
}

// NewOrderLine describes one line of a new purchase order
type NewOrderLine struct {
	ProductID string
	Quantity  int
}

// CreateOrderInput describes a new purchase order
type CreateOrderInput struct {
	SupplierID   string
	PaymentType  string
	MonthlyTerms *int
	DueDate      *time.Time
	Note         *string
	Lines        []NewOrderLine
	CreatedBy    string
}

// CreateOrder creates a purchase order in Pending status. Line prices are
// snapshotted from the product catalog at creation time.
func (s *PurchasingService) CreateOrder(ctx context.Context, in CreateOrderInput) (*repository.PurchaseOrder, error) {
	if len(in.Lines) == 0 {
		return nil, errors.BadRequest("a purchase order requires at least one line")
	}

	supplier, err := s.supplierRepo.GetByID(ctx, in.SupplierID)
	if err != nil {
		return nil, err
	}
	if !supplier.IsActive {
		return nil, errors.BadRequest("supplier is inactive")
	}

	po := &repository.PurchaseOrder{
		OrderNumber:  newOrderNumber(),
		SupplierID:   in.SupplierID,
		Status:       repository.POStatusPending,
		PaymentType:  in.PaymentType,
		MonthlyTerms: in.MonthlyTerms,
		OrderDate:    time.Now().UTC(),
		DueDate:      in.DueDate,
		Note:         in.Note,
		CreatedBy:    in.CreatedBy,
	}

	for _, line := range in.Lines {
		p, err := s.productRepo.GetByID(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		po.Items = append(po.Items, &repository.PurchaseOrderItem{
			ProductID:  p.ID,
			OrderedQty: line.Quantity,
			Price:      p.Price,
			Status:     repository.LineStatusPending,
		})
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return s.orderRepo.Create(ctx, tx, po)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("purchase_order_id", po.ID).
		Str("order_number", po.OrderNumber).
		Str("supplier_id", po.SupplierID).
		Msg("purchase order created")

	return po, nil
}

// PlaceOrder moves a Pending order to Ordered: each line's ordered quantity
// becomes on-order stock, and a payable is booked against the supplier for
// the order total.
func (s *PurchasingService) PlaceOrder(ctx context.Context, id string) (*repository.PurchaseOrder, error) {
	var po *repository.PurchaseOrder
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		po, err = s.orderRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if po.Status != repository.POStatusPending {
			return errors.Conflict(fmt.Sprintf("purchase order %s is %s, not Pending", po.OrderNumber, po.Status))
		}

		for _, item := range po.Items {
			if err := s.productRepo.AddStockOnOrder(ctx, tx, item.ProductID, item.OrderedQty); err != nil {
				return err
			}
		}

		if err := s.financeRepo.Create(ctx, tx, &financerepo.Transaction{
			Kind:            financerepo.KindPayable,
			PurchaseOrderID: &po.ID,
			Amount:          po.TotalCost(),
			DueDate:         po.DueDate,
			CreatedBy:       po.CreatedBy,
		}); err != nil {
			return err
		}

		po.Status = repository.POStatusOrdered
		return s.orderRepo.UpdateStatus(ctx, tx, po.ID, po.Status)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("purchase_order_id", po.ID).
		Str("order_number", po.OrderNumber).
		Msg("purchase order placed")

	return po, nil
}

// CancelOrder cancels an order that has received nothing yet, releasing any
// on-order stock it reserved.
func (s *PurchasingService) CancelOrder(ctx context.Context, id string) error {
	return s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		po, err := s.orderRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if po.Status != repository.POStatusPending && po.Status != repository.POStatusOrdered {
			return errors.Conflict(fmt.Sprintf("purchase order %s is %s and cannot be cancelled", po.OrderNumber, po.Status))
		}
		for _, item := range po.Items {
			if item.ReceivedQty > 0 {
				return errors.Conflict(fmt.Sprintf("purchase order %s has received stock and cannot be cancelled", po.OrderNumber))
			}
		}

		if po.Status == repository.POStatusOrdered {
			for _, item := range po.Items {
				if err := s.productRepo.AddStockOnOrder(ctx, tx, item.ProductID, -item.OrderedQty); err != nil {
					return err
				}
			}
		}

		s.logger.Info().Str("purchase_order_id", po.ID).Msg("purchase order cancelled")
		return s.orderRepo.UpdateStatus(ctx, tx, po.ID, repository.POStatusCancelled)
	})
}

// GetOrder gets a purchase order with its lines
func (s *PurchasingService) GetOrder(ctx context.Context, id string) (*repository.PurchaseOrder, error) {
	return s.orderRepo.GetByID(ctx, id)
}

// ListOrders lists purchase orders
func (s *PurchasingService) ListOrders(ctx context.Context, page, perPage int, status string) ([]*repository.PurchaseOrder, int64, error) {
	return s.orderRepo.List(ctx, page, perPage, status)
}

// newOrderNumber builds a human-readable order number from the date and a
// short random suffix.
func newOrderNumber() string {
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("PO-%s-%s", time.Now().UTC().Format("20060102"), strings.ToUpper(suffix))
}
