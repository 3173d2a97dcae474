package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	catalogrepo "github.com/ricemill/ricemill-backend/internal/catalog/repository"
	"github.com/ricemill/ricemill-backend/internal/ledger"
	"github.com/ricemill/ricemill-backend/internal/stock/repository"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
	"github.com/ricemill/ricemill-backend/pkg/logger"
	"github.com/ricemill/ricemill-backend/pkg/messaging"
)

// EventPublisher publishes domain events. Satisfied by messaging.Publisher
// and by the test mock.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// StockService handles stock movement operations
type StockService struct {
	db           *database.DB
	ledger       *ledger.Ledger
	stockRepo    *repository.StockRepository
	productRepo  *catalogrepo.ProductRepository
	locationRepo *catalogrepo.LocationRepository
	publisher    EventPublisher
	logger       *logger.Logger
}

// NewStockService creates a new stock service
func NewStockService(
	db *database.DB,
	led *ledger.Ledger,
	stockRepo *repository.StockRepository,
	productRepo *catalogrepo.ProductRepository,
	locationRepo *catalogrepo.LocationRepository,
	publisher EventPublisher,
	log *logger.Logger,
) *StockService {
	return &StockService{
		db:           db,
		ledger:       led,
		stockRepo:    stockRepo,
		productRepo:  productRepo,
		locationRepo: locationRepo,
		publisher:    publisher,
		logger:       log,
	}
}

// Assign places quantity of a product at a location. This is the manual
// intake path for stock that did not arrive through a purchase order, such
// as opening balances.
func (s *StockService) Assign(ctx context.Context, productID, locationID string, quantity int, note *string, performedBy string) (*ledger.Transaction, error) {
	if _, err := s.locationRepo.GetByID(ctx, locationID); err != nil {
		return nil, err
	}

	var txn *ledger.Transaction
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		txn, err = s.ledger.StockIn(ctx, tx, ledger.Entry{
			ProductID:  productID,
			LocationID: locationID,
			Quantity:   quantity,
			Note:       note,
			CreatedBy:  performedBy,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("product_id", productID).
		Str("location_id", locationID).
		Int("quantity", quantity).
		Msg("stock assigned")

	return txn, nil
}

// Transfer moves quantity of a product between two locations
func (s *StockService) Transfer(ctx context.Context, productID, sourceLocationID, targetLocationID string, quantity int, note *string, performedBy string) error {
	if _, err := s.locationRepo.GetByID(ctx, targetLocationID); err != nil {
		return err
	}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		return s.ledger.Transfer(ctx, tx, productID, sourceLocationID, targetLocationID, quantity, note, performedBy)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("product_id", productID).
		Str("source", sourceLocationID).
		Str("target", targetLocationID).
		Int("quantity", quantity).
		Msg("stock transferred")

	return nil
}

// Adjust manually corrects a location's quantity and publishes the change.
// A decrease that leaves the product below its reorder point also raises a
// low-stock event.
func (s *StockService) Adjust(ctx context.Context, adj ledger.Adjustment) (*ledger.AdjustResult, error) {
	var result *ledger.AdjustResult
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		result, err = s.ledger.Adjust(ctx, tx, adj)
		return err
	})
	if err != nil {
		return nil, err
	}

	delta := result.NewQuantity - result.OldQuantity
	if pubErr := s.publisher.Publish(ctx, messaging.EventStockAdjusted, messaging.StockAdjustedEvent{
		ProductID:   adj.ProductID,
		LocationID:  adj.LocationID,
		Delta:       delta,
		NewQuantity: result.NewQuantity,
		Reason:      adj.Reason,
		PerformedBy: adj.CreatedBy,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish stock adjusted event")
	}

	if delta < 0 {
		s.checkReorderPoint(ctx, adj.ProductID)
	}

	return result, nil
}

// checkReorderPoint raises a low-stock event if the product has fallen
// below its reorder point. Best effort: a publish failure never fails the
// stock operation that triggered the check.
func (s *StockService) checkReorderPoint(ctx context.Context, productID string) {
	p, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		s.logger.Warn().Err(err).Str("product_id", productID).Msg("reorder point check skipped")
		return
	}
	if p.StockOnHand >= p.ReorderPoint {
		return
	}

	if err := s.publisher.Publish(ctx, messaging.EventStockLow, messaging.StockLowEvent{
		ProductID:    p.ID,
		ProductName:  p.Name,
		StockOnHand:  p.StockOnHand,
		ReorderPoint: p.ReorderPoint,
	}); err != nil {
		s.logger.Warn().Err(err).Str("product_id", productID).Msg("failed to publish low stock event")
	}
}

// ProductStockView is a product with its per-location breakdown
type ProductStockView struct {
	Product *catalogrepo.Product        `json:"product"`
	Items   []*repository.LocationStock `json:"items"`
}

// GetByProduct returns a product's stock broken down by location
func (s *StockService) GetByProduct(ctx context.Context, productID string) (*ProductStockView, error) {
	p, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	items, err := s.stockRepo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	return &ProductStockView{Product: p, Items: items}, nil
}

// GetByLocation returns the stock held at a location, by product
func (s *StockService) GetByLocation(ctx context.Context, locationID string) ([]*repository.ProductStock, error) {
	if _, err := s.locationRepo.GetByID(ctx, locationID); err != nil {
		return nil, err
	}
	return s.stockRepo.ListByLocation(ctx, locationID)
}

// ListTransactions returns the audit trail for a product, newest first
func (s *StockService) ListTransactions(ctx context.Context, productID string, page, perPage int) ([]*ledger.Transaction, int64, error) {
	if _, err := s.productRepo.GetByID(ctx, productID); err != nil {
		return nil, 0, err
	}
	return s.ledger.ListTransactions(ctx, s.db, productID, page, perPage)
}

// ReconciliationReport summarizes an aggregate consistency check
type ReconciliationReport struct {
	Checked  int                         `json:"checked"`
	Drifted  []*repository.AggregateCheck `json:"drifted"`
	Repaired int                         `json:"repaired"`
}

// Reconcile compares every product's on-hand aggregate against the sum of
// its current-state rows and the replay of its transaction log. With repair
// set, drifted aggregates are reset to the current-state sum; the rows are
// the operational truth, the counter is the cache.
func (s *StockService) Reconcile(ctx context.Context, repair bool, performedBy string) (*ReconciliationReport, error) {
	checks, err := s.stockRepo.CheckAggregates(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconciliationReport{Checked: len(checks)}
	for _, c := range checks {
		if !c.Drifted() {
			continue
		}
		report.Drifted = append(report.Drifted, c)

		s.logger.Warn().
			Str("product_id", c.ProductID).
			Int("stock_on_hand", c.StockOnHand).
			Int("items_total", c.ItemsTotal).
			Int("replay_total", c.ReplayTotal).
			Msg("stock aggregate drift detected")

		if !repair || c.StockOnHand == c.ItemsTotal {
			continue
		}

		drift := c.ItemsTotal - c.StockOnHand
		err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
			return s.stockRepo.RepairAggregate(ctx, tx, c.ProductID, drift, performedBy)
		})
		if err != nil {
			// A product with no inventory rows has nowhere to anchor the
			// adjustment; leave its drift reported but unrepaired.
			if errors.Is(err, errors.ErrConflict) {
				s.logger.Error().Err(err).Str("product_id", c.ProductID).Msg("aggregate repair skipped")
				continue
			}
			return nil, err
		}
		report.Repaired++
	}

	return report, nil
}
