package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
)

// Location types, from coarsest to finest.
const (
	LocationTypeWarehouse = "WAREHOUSE"
	LocationTypeZone      = "ZONE"
	LocationTypeShelf     = "SHELF"
	LocationTypeBin       = "BIN"
)

// Location represents a storage location in the warehouse hierarchy:
// warehouses contain zones, zones contain shelves, shelves contain bins.
// ParentID is nil only for warehouses.
type Location struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	Type      string    `db:"type" json:"type"`
	ParentID  *string   `db:"parent_id" json:"parent_id,omitempty"`
	Capacity  *int      `db:"capacity" json:"capacity,omitempty"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LocationNode is a location with its children, for the tree view
type LocationNode struct {
	Location
	Children []*LocationNode `json:"children"`
}

const locationColumns = `id, name, code, type, parent_id, capacity, is_active, created_at, updated_at`

// LocationRepository handles location persistence
type LocationRepository struct {
	db *database.DB
}

// NewLocationRepository creates a new location repository
func NewLocationRepository(db *database.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// Create creates a new location
func (r *LocationRepository) Create(ctx context.Context, loc *Location) error {
	if loc.ID == "" {
		loc.ID = uuid.New().String()
	}

	query := `
		INSERT INTO locations (id, name, code, type, parent_id, capacity, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		loc.ID, loc.Name, loc.Code, loc.Type, loc.ParentID, loc.Capacity, loc.IsActive,
	).Scan(&loc.CreatedAt, &loc.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a location by ID
func (r *LocationRepository) GetByID(ctx context.Context, id string) (*Location, error) {
	var loc Location
	err := r.db.GetContext(ctx, &loc,
		`SELECT `+locationColumns+` FROM locations WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("location")
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// List lists locations, optionally filtered by type
func (r *LocationRepository) List(ctx context.Context, locationType string, activeOnly bool) ([]*Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE 1=1`
	args := []interface{}{}

	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	if locationType != "" {
		query += ` AND type = $1`
		args = append(args, locationType)
	}
	query += ` ORDER BY code`

	var locations []*Location
	if err := r.db.SelectContext(ctx, &locations, query, args...); err != nil {
		return nil, err
	}
	return locations, nil
}

// Update updates a location
func (r *LocationRepository) Update(ctx context.Context, loc *Location) error {
	query := `
		UPDATE locations SET name = $2, code = $3, capacity = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		loc.ID, loc.Name, loc.Code, loc.Capacity, loc.IsActive,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("location")
	}
	return nil
}

// StockTotal returns the total on-hand quantity stored at a location.
func (r *LocationRepository) StockTotal(ctx context.Context, id string) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(quantity), 0) FROM inventory_items WHERE location_id = $1`, id)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// HasActiveChildren reports whether a location has active child locations.
func (r *LocationRepository) HasActiveChildren(ctx context.Context, id string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM locations WHERE parent_id = $1 AND is_active = TRUE`, id)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Deactivate marks a location inactive. The service layer guarantees the
// location holds no stock first.
func (r *LocationRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE locations SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("location")
	}
	return nil
}

// GetTree returns the full location hierarchy as a forest of warehouses
func (r *LocationRepository) GetTree(ctx context.Context) ([]*LocationNode, error) {
	locations, err := r.List(ctx, "", true)
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]*LocationNode, len(locations))
	for _, loc := range locations {
		nodes[loc.ID] = &LocationNode{
			Location: *loc,
			Children: []*LocationNode{},
		}
	}

	var roots []*LocationNode
	for _, loc := range locations {
		node := nodes[loc.ID]
		if loc.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		if parent, ok := nodes[*loc.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		} else {
			// Parent deactivated; surface the orphan at the top rather
			// than hiding its subtree.
			roots = append(roots, node)
		}
	}

	return roots, nil
}
