package service

import (
	"context"

	"github.com/ricemill/ricemill-backend/internal/purchasing/repository"
	"github.com/ricemill/ricemill-backend/pkg/messaging"
)

// ListBackorders lists backorders, optionally only outstanding ones
func (s *PurchasingService) ListBackorders(ctx context.Context, outstandingOnly bool) ([]*repository.BackorderDetail, error) {
	return s.backorderRepo.List(ctx, outstandingOnly)
}

// GetBackorder gets a backorder with its order, product and supplier
func (s *PurchasingService) GetBackorder(ctx context.Context, id string) (*repository.BackorderDetail, error) {
	return s.backorderRepo.GetDetail(ctx, id)
}

// RemindBackorder publishes a reminder event for the notifier to chase the
// supplier, then marks the backorder Reminded. Delivery is fire-and-forget;
// only the publish itself can fail the call.
func (s *PurchasingService) RemindBackorder(ctx context.Context, id string) (*repository.BackorderDetail, error) {
	detail, err := s.backorderRepo.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, messaging.EventBackorderReminder, messaging.BackorderReminderEvent{
		BackorderID:     detail.ID,
		PurchaseOrderID: detail.PurchaseOrderID,
		SupplierID:      detail.SupplierID,
		ProductName:     detail.ProductName,
		Quantity:        detail.Quantity,
	}); err != nil {
		return nil, err
	}

	if err := s.backorderRepo.MarkReminded(ctx, id); err != nil {
		return nil, err
	}
	detail.Status = repository.BackorderStatusReminded

	s.logger.Info().
		Str("backorder_id", id).
		Str("supplier_id", detail.SupplierID).
		Msg("backorder reminder sent")

	return detail, nil
}
