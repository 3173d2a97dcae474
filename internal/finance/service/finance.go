package service

import (
	"context"

	"github.com/ricemill/ricemill-backend/internal/finance/repository"
	"github.com/ricemill/ricemill-backend/pkg/logger"
)

// FinanceService exposes the thin payable/receivable ledger. Entries are
// booked by the purchasing and sales flows; this service only reads them
// and settles payments.
type FinanceService struct {
	repo   *repository.TransactionRepository
	logger *logger.Logger
}

// NewFinanceService creates a new finance service
func NewFinanceService(repo *repository.TransactionRepository, log *logger.Logger) *FinanceService {
	return &FinanceService{
		repo:   repo,
		logger: log,
	}
}

// Get gets a finance transaction by ID
func (s *FinanceService) Get(ctx context.Context, id string) (*repository.Transaction, error) {
	return s.repo.GetByID(ctx, id)
}

// List lists finance transactions, optionally filtered by kind and status
func (s *FinanceService) List(ctx context.Context, kind, status string) ([]*repository.Transaction, error) {
	return s.repo.List(ctx, kind, status)
}

// ListByPurchaseOrder lists the finance trail of a purchase order
func (s *FinanceService) ListByPurchaseOrder(ctx context.Context, purchaseOrderID string) ([]*repository.Transaction, error) {
	return s.repo.ListByPurchaseOrder(ctx, purchaseOrderID)
}

// ListByOrder lists the finance trail of a sales order
func (s *FinanceService) ListByOrder(ctx context.Context, orderID string) ([]*repository.Transaction, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

// MarkPaid settles a pending transaction
func (s *FinanceService) MarkPaid(ctx context.Context, id string) (*repository.Transaction, error) {
	if err := s.repo.MarkPaid(ctx, id); err != nil {
		return nil, err
	}

	s.logger.Info().Str("finance_transaction_id", id).Msg("finance transaction settled")
	return s.repo.GetByID(ctx, id)
}
