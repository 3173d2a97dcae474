package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ricemill/ricemill-backend/internal/ledger"
	"github.com/ricemill/ricemill-backend/internal/purchasing/repository"
	"github.com/ricemill/ricemill-backend/pkg/errors"
	"github.com/ricemill/ricemill-backend/pkg/messaging"
)

// ReceiveLine describes one line of a receipt
type ReceiveLine struct {
	PurchaseOrderItemID string
	LocationID          string
	ReceivedNow         int
	ExpectedDate        *time.Time
}

// ReceiveInput describes a receipt against a purchase order
type ReceiveInput struct {
	PurchaseOrderID string
	Lines           []ReceiveLine
	Note            *string
	PerformedBy     string
}

// ReceiveResult reports what a receipt did
type ReceiveResult struct {
	Order      *repository.PurchaseOrder `json:"order"`
	Backorders []*repository.Backorder   `json:"backorders"`
}

// Receive books arrived stock against a purchase order. For each line the
// received quantity is clamped to the outstanding amount (over-receipts are
// truncated and logged), stocked in at the chosen location, and used to
// drain the line's outstanding backorders oldest first. A shortfall that
// remains after the receipt tops up the line's open backorder, or creates
// one. Line and order statuses are then refolded from the counters. The
// whole receipt is one transaction.
func (s *PurchasingService) Receive(ctx context.Context, in ReceiveInput) (*ReceiveResult, error) {
	if len(in.Lines) == 0 {
		return nil, errors.BadRequest("a receipt requires at least one line")
	}

	result := &ReceiveResult{}
	var created []*repository.Backorder

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		po, err := s.orderRepo.GetByIDForUpdate(ctx, tx, in.PurchaseOrderID)
		if err != nil {
			return err
		}
		if po.Status != repository.POStatusOrdered && po.Status != repository.POStatusPartial {
			return errors.Conflict(fmt.Sprintf("purchase order %s is %s and cannot receive stock", po.OrderNumber, po.Status))
		}

		itemsByID := make(map[string]*repository.PurchaseOrderItem, len(po.Items))
		for _, item := range po.Items {
			itemsByID[item.ID] = item
		}

		for _, line := range in.Lines {
			item, ok := itemsByID[line.PurchaseOrderItemID]
			if !ok {
				return errors.NotFound("purchase order item")
			}
			if line.ReceivedNow <= 0 {
				return errors.Validation(map[string]string{"received_now": "must be positive"})
			}
			if line.LocationID == "" {
				return errors.Validation(map[string]string{"location_id": "this field is required"})
			}

			receivedNow := line.ReceivedNow
			if short := item.Shortfall(); receivedNow > short {
				s.logger.Warn().
					Str("purchase_order_item_id", item.ID).
					Int("received_now", receivedNow).
					Int("outstanding", short).
					Msg("over-receipt truncated to outstanding quantity")
				receivedNow = short
			}
			if receivedNow == 0 {
				return errors.Conflict(fmt.Sprintf("purchase order line %s is already fully received", item.ID))
			}

			if _, err := s.ledger.StockIn(ctx, tx, ledger.Entry{
				ProductID:           item.ProductID,
				LocationID:          line.LocationID,
				Quantity:            receivedNow,
				UnitPrice:           &item.Price,
				PurchaseOrderID:     &po.ID,
				PurchaseOrderItemID: &item.ID,
				Note:                in.Note,
				CreatedBy:           in.PerformedBy,
			}); err != nil {
				return err
			}

			item.ReceivedQty += receivedNow

			if err := s.productRepo.AddStockOnOrder(ctx, tx, item.ProductID, -receivedNow); err != nil {
				return err
			}

			if err := s.settleBackorders(ctx, tx, item, receivedNow); err != nil {
				return err
			}

			bo, isNew, err := s.recordShortfall(ctx, tx, item, line.ExpectedDate)
			if err != nil {
				return err
			}
			if bo != nil {
				result.Backorders = append(result.Backorders, bo)
				if isNew {
					created = append(created, bo)
				}
			}

			item.Status = repository.FoldLineStatus(item, receivedNow)
			if err := s.orderRepo.UpdateItemProgress(ctx, tx, item); err != nil {
				return err
			}
		}

		po.Status = repository.FoldStatus(po.Items)
		if err := s.orderRepo.UpdateStatus(ctx, tx, po.ID, po.Status); err != nil {
			return err
		}

		result.Order = po
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, bo := range created {
		if pubErr := s.publisher.Publish(ctx, messaging.EventBackorderCreated, messaging.BackorderCreatedEvent{
			BackorderID:         bo.ID,
			PurchaseOrderItemID: bo.PurchaseOrderItemID,
			Quantity:            bo.Quantity,
			ExpectedDate:        bo.ExpectedDate,
		}); pubErr != nil {
			s.logger.Warn().Err(pubErr).Str("backorder_id", bo.ID).Msg("failed to publish backorder created event")
		}
	}

	s.logger.Info().
		Str("purchase_order_id", in.PurchaseOrderID).
		Int("lines", len(in.Lines)).
		Str("status", result.Order.Status).
		Msg("purchase order receipt booked")

	return result, nil
}

// settleBackorders drains a line's outstanding backorders oldest first with
// the quantity that just arrived. A backorder drained to zero is Closed;
// one partially drained becomes Partial. Once the line is fully received,
// any stragglers are force-closed at zero quantity.
func (s *PurchasingService) settleBackorders(ctx context.Context, tx *sqlx.Tx, item *repository.PurchaseOrderItem, receivedNow int) error {
	backorders, err := s.backorderRepo.ListOutstandingForItem(ctx, tx, item.ID)
	if err != nil {
		return err
	}

	remaining := receivedNow
	for _, bo := range backorders {
		if remaining == 0 {
			break
		}
		take := bo.Quantity
		if take > remaining {
			take = remaining
		}

		bo.Quantity -= take
		if bo.Quantity == 0 {
			bo.Status = repository.BackorderStatusClosed
		} else {
			bo.Status = repository.BackorderStatusPartial
		}
		if err := s.backorderRepo.Update(ctx, tx, bo); err != nil {
			return err
		}
		remaining -= take
	}

	if item.ReceivedQty >= item.OrderedQty {
		for _, bo := range backorders {
			if !bo.Outstanding() {
				continue
			}
			bo.Quantity = 0
			bo.Status = repository.BackorderStatusClosed
			if err := s.backorderRepo.Update(ctx, tx, bo); err != nil {
				return err
			}
		}
	}

	return nil
}

// recordShortfall tops up the line's newest outstanding backorder with the
// still-unreceived quantity, or creates one. Returns nil when the line has
// no shortfall; the second result reports whether a new backorder was
// created.
func (s *PurchasingService) recordShortfall(ctx context.Context, tx *sqlx.Tx, item *repository.PurchaseOrderItem, expectedDate *time.Time) (*repository.Backorder, bool, error) {
	short := item.Shortfall()
	if short == 0 {
		return nil, false, nil
	}

	backorders, err := s.backorderRepo.ListOutstandingForItem(ctx, tx, item.ID)
	if err != nil {
		return nil, false, err
	}

	outstanding := 0
	var last *repository.Backorder
	for _, bo := range backorders {
		outstanding += bo.Quantity
		last = bo
	}

	if outstanding >= short {
		return last, false, nil
	}

	if last != nil {
		last.Quantity += short - outstanding
		if expectedDate != nil {
			last.ExpectedDate = expectedDate
		}
		if err := s.backorderRepo.Update(ctx, tx, last); err != nil {
			return nil, false, err
		}
		return last, false, nil
	}

	bo := &repository.Backorder{
		PurchaseOrderItemID: item.ID,
		Quantity:            short,
		Status:              repository.BackorderStatusOpen,
		ExpectedDate:        expectedDate,
	}
	if err := s.backorderRepo.Create(ctx, tx, bo); err != nil {
		return nil, false, err
	}
	return bo, true, nil
}
