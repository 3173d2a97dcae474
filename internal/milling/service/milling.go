package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	catalogrepo "github.com/ricemill/ricemill-backend/internal/catalog/repository"
	"github.com/ricemill/ricemill-backend/internal/ledger"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
	"github.com/ricemill/ricemill-backend/pkg/logger"
	"github.com/ricemill/ricemill-backend/pkg/messaging"
	"github.com/shopspring/decimal"
)

// EventPublisher publishes domain events. Satisfied by messaging.Publisher
// and by the test mock.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// MillingService converts unmilled rice stock into its derived milled
// product.
type MillingService struct {
	db          *database.DB
	ledger      *ledger.Ledger
	productRepo *catalogrepo.ProductRepository
	publisher   EventPublisher
	logger      *logger.Logger
}

// NewMillingService creates a new milling service
func NewMillingService(
	db *database.DB,
	led *ledger.Ledger,
	productRepo *catalogrepo.ProductRepository,
	publisher EventPublisher,
	log *logger.Logger,
) *MillingService {
	return &MillingService{
		db:          db,
		ledger:      led,
		productRepo: productRepo,
		publisher:   publisher,
		logger:      log,
	}
}

// MillResult reports what a conversion did
type MillResult struct {
	SourceProduct  *catalogrepo.Product `json:"source_product"`
	MilledProduct  *catalogrepo.Product `json:"milled_product"`
	InputQuantity  int                  `json:"input_quantity"`
	OutputQuantity int                  `json:"output_quantity"`
}

var oneHundred = decimal.NewFromInt(100)

// Yield computes the milled output for an input quantity at a percentage
// yield rate, rounding down. The sub-unit remainder is lost; that is the
// accepted policy, not an error.
func Yield(quantity int, rate decimal.Decimal) int {
	return int(decimal.NewFromInt(int64(quantity)).Mul(rate).Div(oneHundred).Floor().IntPart())
}

// Mill converts quantity of an unmilled product at the source location into
// its derived "Milled {name}" product at the target location. The derived
// product is created lazily on first conversion, copying the source's
// catalog attributes. Both ledger legs run in one transaction; a shortfall
// at the source aborts the whole conversion.
func (s *MillingService) Mill(ctx context.Context, sourceProductID, sourceLocationID, targetLocationID string, quantity int, performedBy string) (*MillResult, error) {
	if quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be positive"})
	}

	var result *MillResult
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		source, err := s.productRepo.GetByIDForUpdate(ctx, tx, sourceProductID)
		if err != nil {
			return err
		}
		if source.IsMilledRice {
			return errors.BadRequest(fmt.Sprintf("product %s is already milled rice", source.Name))
		}
		if source.MillingYieldRate == nil {
			return errors.BadRequest(fmt.Sprintf("product %s has no milling yield rate configured", source.Name))
		}

		output := Yield(quantity, *source.MillingYieldRate)
		if output == 0 {
			return errors.BadRequest("quantity too small to produce any milled output at the configured yield rate")
		}

		milled, err := s.milledVariant(ctx, tx, source)
		if err != nil {
			return err
		}

		if _, err := s.ledger.StockOut(ctx, tx, ledger.Entry{
			ProductID:  source.ID,
			LocationID: sourceLocationID,
			Quantity:   quantity,
			Kind:       ledger.KindMillingOut,
			CreatedBy:  performedBy,
		}, ledger.FIFO); err != nil {
			return err
		}

		if _, err := s.ledger.StockIn(ctx, tx, ledger.Entry{
			ProductID:  milled.ID,
			LocationID: targetLocationID,
			Quantity:   output,
			Kind:       ledger.KindMillingIn,
			CreatedBy:  performedBy,
		}); err != nil {
			return err
		}

		result = &MillResult{
			SourceProduct:  source,
			MilledProduct:  milled,
			InputQuantity:  quantity,
			OutputQuantity: output,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if pubErr := s.publisher.Publish(ctx, messaging.EventMillingCompleted, messaging.MillingCompletedEvent{
		SourceProductID: result.SourceProduct.ID,
		MilledProductID: result.MilledProduct.ID,
		InputQuantity:   result.InputQuantity,
		OutputQuantity:  result.OutputQuantity,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish milling completed event")
	}

	s.logger.Info().
		Str("source_product_id", result.SourceProduct.ID).
		Str("milled_product_id", result.MilledProduct.ID).
		Int("input", result.InputQuantity).
		Int("output", result.OutputQuantity).
		Msg("milling conversion completed")

	return result, nil
}

// milledVariant finds or lazily creates the derived milled product for a
// source product, inside the caller's transaction.
func (s *MillingService) milledVariant(ctx context.Context, tx *sqlx.Tx, source *catalogrepo.Product) (*catalogrepo.Product, error) {
	name := "Milled " + source.Name

	milled, err := s.productRepo.GetByName(ctx, tx, name)
	if err == nil {
		return milled, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	milled = &catalogrepo.Product{
		Name:             name,
		Category:         source.Category,
		Price:            source.Price,
		IsMilledRice:     true,
		MillingYieldRate: source.MillingYieldRate,
		ReorderPoint:     source.ReorderPoint,
		SupplierID:       source.SupplierID,
	}
	if err := s.productRepo.CreateIn(ctx, tx, milled); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("source_product_id", source.ID).
		Str("milled_product_id", milled.ID).
		Msg("derived milled product created")

	return milled, nil
}
