package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/ricemill/ricemill-backend/internal/ledger"
	"github.com/ricemill/ricemill-backend/internal/purchasing/repository"
	"github.com/ricemill/ricemill-backend/pkg/errors"
)

// ReturnLine describes one line of a purchase return
type ReturnLine struct {
	PurchaseOrderItemID string
	Quantity            int
	Note                *string
}

// CreateReturnInput describes a return against a purchase order
type CreateReturnInput struct {
	PurchaseOrderID string
	Reason          string
	Lines           []ReturnLine
	PerformedBy     string
}

// CreateReturn sends previously received stock back to the supplier. Each
// line's quantity is capped at what was received and not already returned,
// and the physical stock is deducted LIFO so the most recent receipt is
// undone first. The whole return aborts on the first line that cannot be
// satisfied; stock already consumed by sales is a manual-adjustment case
// for the operator, never auto-resolved here.
func (s *PurchasingService) CreateReturn(ctx context.Context, in CreateReturnInput) (*repository.PurchaseReturn, error) {
	if len(in.Lines) == 0 {
		return nil, errors.BadRequest("a return requires at least one line")
	}
	if in.Reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "this field is required"})
	}

	var ret *repository.PurchaseReturn
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		po, err := s.orderRepo.GetByIDForUpdate(ctx, tx, in.PurchaseOrderID)
		if err != nil {
			return err
		}

		itemsByID := make(map[string]*repository.PurchaseOrderItem, len(po.Items))
		for _, item := range po.Items {
			itemsByID[item.ID] = item
		}

		ret = &repository.PurchaseReturn{
			PurchaseOrderID: po.ID,
			Reason:          in.Reason,
			CreatedBy:       in.PerformedBy,
		}
		if err := s.returnRepo.Create(ctx, tx, ret); err != nil {
			return err
		}

		for _, line := range in.Lines {
			item, ok := itemsByID[line.PurchaseOrderItemID]
			if !ok {
				return errors.NotFound("purchase order item")
			}
			if line.Quantity <= 0 {
				return errors.Validation(map[string]string{"quantity": "must be positive"})
			}

			returnable := item.ReceivedQty - item.ReturnedQty
			quantity := line.Quantity
			if quantity > returnable {
				s.logger.Warn().
					Str("purchase_order_item_id", item.ID).
					Int("requested", quantity).
					Int("returnable", returnable).
					Msg("over-return truncated to returnable quantity")
				quantity = returnable
			}
			if quantity == 0 {
				return errors.Conflict(fmt.Sprintf("purchase order line %s has nothing left to return", item.ID))
			}

			if _, err := s.ledger.StockOut(ctx, tx, ledger.Entry{
				ProductID:           item.ProductID,
				Quantity:            quantity,
				Kind:                ledger.KindReturnOut,
				UnitPrice:           &item.Price,
				PurchaseOrderID:     &po.ID,
				PurchaseOrderItemID: &item.ID,
				PurchaseReturnID:    &ret.ID,
				Note:                line.Note,
				CreatedBy:           in.PerformedBy,
			}, ledger.LIFO); err != nil {
				return err
			}

			item.ReturnedQty += quantity
			if err := s.orderRepo.UpdateItemProgress(ctx, tx, item); err != nil {
				return err
			}

			if err := s.returnRepo.CreateItem(ctx, tx, &repository.PurchaseReturnItem{
				PurchaseReturnID:    ret.ID,
				PurchaseOrderItemID: item.ID,
				Quantity:            quantity,
				Note:                line.Note,
			}); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("purchase_return_id", ret.ID).
		Str("purchase_order_id", in.PurchaseOrderID).
		Int("lines", len(in.Lines)).
		Msg("purchase return booked")

	return s.returnRepo.GetByID(ctx, ret.ID)
}

// GetReturn gets a return with its items
func (s *PurchasingService) GetReturn(ctx context.Context, id string) (*repository.PurchaseReturn, error) {
	return s.returnRepo.GetByID(ctx, id)
}

// ListReturnsByOrder lists returns against a purchase order
func (s *PurchasingService) ListReturnsByOrder(ctx context.Context, purchaseOrderID string) ([]*repository.PurchaseReturn, error) {
	return s.returnRepo.ListByOrder(ctx, purchaseOrderID)
}
