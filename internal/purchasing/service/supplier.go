package service

import (
	"context"

	"github.com/ricemill/ricemill-backend/internal/purchasing/repository"
)

// CreateSupplier creates a new supplier
func (s *PurchasingService) CreateSupplier(ctx context.Context, sup *repository.Supplier) error {
	sup.IsActive = true
	return s.supplierRepo.Create(ctx, sup)
}

// GetSupplier gets a supplier by ID
func (s *PurchasingService) GetSupplier(ctx context.Context, id string) (*repository.Supplier, error) {
	return s.supplierRepo.GetByID(ctx, id)
}

// ListSuppliers lists active suppliers
func (s *PurchasingService) ListSuppliers(ctx context.Context) ([]*repository.Supplier, error) {
	return s.supplierRepo.List(ctx)
}

// UpdateSupplier updates a supplier
func (s *PurchasingService) UpdateSupplier(ctx context.Context, sup *repository.Supplier) error {
	return s.supplierRepo.Update(ctx, sup)
}
