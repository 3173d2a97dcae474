package service

import (
	"context"
	"fmt"

	"github.com/ricemill/ricemill-backend/internal/catalog/repository"
	"github.com/ricemill/ricemill-backend/pkg/errors"
	"github.com/ricemill/ricemill-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// CatalogService handles product and location business logic
type CatalogService struct {
	productRepo  *repository.ProductRepository
	locationRepo *repository.LocationRepository
	logger       *logger.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(
	productRepo *repository.ProductRepository,
	locationRepo *repository.LocationRepository,
	log *logger.Logger,
) *CatalogService {
	return &CatalogService{
		productRepo:  productRepo,
		locationRepo: locationRepo,
		logger:       log,
	}
}

// Product operations

// CreateProduct creates a new product
func (s *CatalogService) CreateProduct(ctx context.Context, p *repository.Product) error {
	if err := validateYieldRate(p.MillingYieldRate); err != nil {
		return err
	}
	return s.productRepo.Create(ctx, p)
}

// GetProduct gets a product by ID
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*repository.Product, error) {
	return s.productRepo.GetByID(ctx, id)
}

// ListProducts lists products with pagination
func (s *CatalogService) ListProducts(ctx context.Context, page, perPage int, category string, includeHidden bool) ([]*repository.Product, int64, error) {
	return s.productRepo.List(ctx, page, perPage, category, includeHidden)
}

// UpdateProduct updates a product's catalog attributes
func (s *CatalogService) UpdateProduct(ctx context.Context, p *repository.Product) error {
	if err := validateYieldRate(p.MillingYieldRate); err != nil {
		return err
	}
	return s.productRepo.Update(ctx, p)
}

// DeleteProduct soft deletes a product. Refused while any stock remains so
// the transaction log never references an invisible product.
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	p, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.StockOnHand > 0 || p.StockAllocated > 0 {
		return errors.Conflict(fmt.Sprintf("product %s still has stock on hand; adjust it to zero first", p.Name))
	}

	s.logger.Info().Str("product_id", id).Msg("product deleted")
	return s.productRepo.SoftDelete(ctx, id)
}

// ListLowStock lists products below their reorder point
func (s *CatalogService) ListLowStock(ctx context.Context) ([]*repository.Product, error) {
	return s.productRepo.ListBelowReorderPoint(ctx)
}

func validateYieldRate(rate *decimal.Decimal) error {
	if rate == nil {
		return nil
	}
	if rate.LessThanOrEqual(decimal.Zero) || rate.GreaterThan(decimal.NewFromInt(100)) {
		return errors.BadRequest("milling yield rate must be between 0 and 100 percent")
	}
	return nil
}

// Location operations

// parentTypeFor maps each location type to the type its parent must have.
var parentTypeFor = map[string]string{
	repository.LocationTypeZone:  repository.LocationTypeWarehouse,
	repository.LocationTypeShelf: repository.LocationTypeZone,
	repository.LocationTypeBin:   repository.LocationTypeShelf,
}

// CreateLocation creates a location after validating its place in the
// warehouse hierarchy: warehouses have no parent, zones sit under
// warehouses, shelves under zones, bins under shelves.
func (s *CatalogService) CreateLocation(ctx context.Context, loc *repository.Location) error {
	if loc.Type == repository.LocationTypeWarehouse {
		if loc.ParentID != nil {
			return errors.BadRequest("a warehouse cannot have a parent location")
		}
	} else {
		wantParent, ok := parentTypeFor[loc.Type]
		if !ok {
			return errors.BadRequest("unknown location type")
		}
		if loc.ParentID == nil {
			return errors.BadRequest(fmt.Sprintf("a %s requires a parent location", loc.Type))
		}
		parent, err := s.locationRepo.GetByID(ctx, *loc.ParentID)
		if err != nil {
			return err
		}
		if !parent.IsActive {
			return errors.BadRequest("parent location is inactive")
		}
		if parent.Type != wantParent {
			return errors.BadRequest(fmt.Sprintf("a %s must belong to a %s", loc.Type, wantParent))
		}
	}

	loc.IsActive = true
	return s.locationRepo.Create(ctx, loc)
}

// GetLocation gets a location by ID
func (s *CatalogService) GetLocation(ctx context.Context, id string) (*repository.Location, error) {
	return s.locationRepo.GetByID(ctx, id)
}

// ListLocations lists locations, optionally filtered by type
func (s *CatalogService) ListLocations(ctx context.Context, locationType string) ([]*repository.Location, error) {
	return s.locationRepo.List(ctx, locationType, true)
}

// GetLocationTree returns the full warehouse hierarchy
func (s *CatalogService) GetLocationTree(ctx context.Context) ([]*repository.LocationNode, error) {
	return s.locationRepo.GetTree(ctx)
}

// UpdateLocation updates a location
func (s *CatalogService) UpdateLocation(ctx context.Context, loc *repository.Location) error {
	return s.locationRepo.Update(ctx, loc)
}

// DeactivateLocation marks a location inactive. Refused while the location
// holds stock or has active children, so no inventory ever sits in an
// unreachable corner of the tree.
func (s *CatalogService) DeactivateLocation(ctx context.Context, id string) error {
	loc, err := s.locationRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	total, err := s.locationRepo.StockTotal(ctx, id)
	if err != nil {
		return err
	}
	if total > 0 {
		return errors.Conflict(fmt.Sprintf("location %s still holds %d units; transfer them out first", loc.Code, total))
	}

	hasChildren, err := s.locationRepo.HasActiveChildren(ctx, id)
	if err != nil {
		return err
	}
	if hasChildren {
		return errors.Conflict(fmt.Sprintf("location %s has active child locations; deactivate them first", loc.Code))
	}

	s.logger.Info().Str("location_id", id).Str("code", loc.Code).Msg("location deactivated")
	return s.locationRepo.Deactivate(ctx, id)
}
