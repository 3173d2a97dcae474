package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
)

// Supplier represents a rice supplier
type Supplier struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	ContactName *string   `db:"contact_name" json:"contact_name,omitempty"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	Email       *string   `db:"email" json:"email,omitempty"`
	Address     *string   `db:"address" json:"address,omitempty"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SupplierRepository handles supplier persistence
type SupplierRepository struct {
	db *database.DB
}

// NewSupplierRepository creates a new supplier repository
func NewSupplierRepository(db *database.DB) *SupplierRepository {
	return &SupplierRepository{db: db}
}

// Create creates a new supplier
func (r *SupplierRepository) Create(ctx context.Context, s *Supplier) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	query := `
		INSERT INTO suppliers (id, name, contact_name, phone, email, address, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		s.ID, s.Name, s.ContactName, s.Phone, s.Email, s.Address, s.IsActive,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a supplier by ID
func (r *SupplierRepository) GetByID(ctx context.Context, id string) (*Supplier, error) {
	var s Supplier
	err := r.db.GetContext(ctx, &s,
		`SELECT id, name, contact_name, phone, email, address, is_active, created_at, updated_at
		 FROM suppliers WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("supplier")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List lists active suppliers
func (r *SupplierRepository) List(ctx context.Context) ([]*Supplier, error) {
	var suppliers []*Supplier
	err := r.db.SelectContext(ctx, &suppliers,
		`SELECT id, name, contact_name, phone, email, address, is_active, created_at, updated_at
		 FROM suppliers WHERE is_active = TRUE ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return suppliers, nil
}

// Update updates a supplier
func (r *SupplierRepository) Update(ctx context.Context, s *Supplier) error {
	query := `
		UPDATE suppliers SET name = $2, contact_name = $3, phone = $4, email = $5,
		       address = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		s.ID, s.Name, s.ContactName, s.Phone, s.Email, s.Address, s.IsActive,
	)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("supplier")
	}
	return nil
}
