package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Product represents a sellable SKU. The stock_* columns are denormalized
// aggregates maintained transactionally alongside the inventory ledger;
// they are caches of the transaction log, never the system of record.
type Product struct {
	ID               string           `db:"id" json:"id"`
	Name             string           `db:"name" json:"name"`
	Category         string           `db:"category" json:"category"`
	Price            decimal.Decimal  `db:"price" json:"price"`
	IsMilledRice     bool             `db:"is_milled_rice" json:"is_milled_rice"`
	MillingYieldRate *decimal.Decimal `db:"milling_yield_rate" json:"milling_yield_rate,omitempty"`
	StockOnHand      int              `db:"stock_on_hand" json:"stock_on_hand"`
	StockAllocated   int              `db:"stock_allocated" json:"stock_allocated"`
	StockOnOrder     int              `db:"stock_on_order" json:"stock_on_order"`
	ReorderPoint     int              `db:"reorder_point" json:"reorder_point"`
	SupplierID       *string          `db:"supplier_id" json:"supplier_id,omitempty"`
	IsHidden         bool             `db:"is_hidden" json:"is_hidden"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time       `db:"deleted_at" json:"-"`
}

const productColumns = `id, name, category, price, is_milled_rice, milling_yield_rate,
	       stock_on_hand, stock_allocated, stock_on_order, reorder_point,
	       supplier_id, is_hidden, created_at, updated_at`

// ProductRepository handles product persistence
type ProductRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *database.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create creates a new product
func (r *ProductRepository) Create(ctx context.Context, p *Product) error {
	return r.CreateIn(ctx, r.db, p)
}

// CreateIn creates a product within the caller's transaction. Used by the
// milling service to lazily create the derived milled product atomically
// with the conversion itself.
func (r *ProductRepository) CreateIn(ctx context.Context, q database.Queryer, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO products (
			id, name, category, price, is_milled_rice, milling_yield_rate,
			stock_on_hand, stock_allocated, stock_on_order, reorder_point,
			supplier_id, is_hidden
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err := q.QueryRowxContext(ctx, query,
		p.ID, p.Name, p.Category, p.Price, p.IsMilledRice, p.MillingYieldRate,
		p.StockOnHand, p.StockAllocated, p.StockOnOrder, p.ReorderPoint,
		p.SupplierID, p.IsHidden,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a product by ID
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	return r.getByID(ctx, r.db, id, false)
}

// GetByIDForUpdate loads a product inside the caller's transaction with a
// row lock, so aggregate updates do not race.
func (r *ProductRepository) GetByIDForUpdate(ctx context.Context, q database.Queryer, id string) (*Product, error) {
	return r.getByID(ctx, q, id, true)
}

func (r *ProductRepository) getByID(ctx context.Context, q database.Queryer, id string, forUpdate bool) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND deleted_at IS NULL`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var p Product
	err := q.GetContext(ctx, &p, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("product")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByName gets a product by exact name. Used to find the derived
// "Milled {name}" product of a milling conversion.
func (r *ProductRepository) GetByName(ctx context.Context, q database.Queryer, name string) (*Product, error) {
	var p Product
	err := q.GetContext(ctx, &p,
		`SELECT `+productColumns+` FROM products WHERE name = $1 AND deleted_at IS NULL`,
		name,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("product")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List lists products with pagination
func (r *ProductRepository) List(ctx context.Context, page, perPage int, category string, includeHidden bool) ([]*Product, int64, error) {
	countQuery := `SELECT COUNT(*) FROM products WHERE deleted_at IS NULL`
	query := `SELECT ` + productColumns + ` FROM products WHERE deleted_at IS NULL`
	args := []interface{}{}

	if !includeHidden {
		countQuery += ` AND is_hidden = FALSE`
		query += ` AND is_hidden = FALSE`
	}

	if category != "" {
		countQuery += ` AND category = $1`
		query += ` AND category = $1`
		args = append(args, category)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query += ` ORDER BY name`
	if category != "" {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, perPage, offset)

	var products []*Product
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

// Update updates a product's catalog attributes. Stock aggregates are not
// touched here; only ledger operations move them.
func (r *ProductRepository) Update(ctx context.Context, p *Product) error {
	query := `
		UPDATE products SET
			name = $2, category = $3, price = $4, is_milled_rice = $5,
			milling_yield_rate = $6, reorder_point = $7, supplier_id = $8,
			is_hidden = $9, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Category, p.Price, p.IsMilledRice,
		p.MillingYieldRate, p.ReorderPoint, p.SupplierID, p.IsHidden,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("product")
	}

	return nil
}

// SoftDelete soft deletes a product
func (r *ProductRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE products SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("product")
	}

	return nil
}

// ListBelowReorderPoint lists visible products whose on-hand stock has
// dropped below their reorder point.
func (r *ProductRepository) ListBelowReorderPoint(ctx context.Context) ([]*Product, error) {
	var products []*Product
	err := r.db.SelectContext(ctx, &products,
		`SELECT `+productColumns+`
		 FROM products
		 WHERE deleted_at IS NULL AND is_hidden = FALSE AND stock_on_hand < reorder_point
		 ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	return products, nil
}

// AddStockOnOrder shifts the on-order aggregate within the caller's
// transaction, flooring at zero.
func (r *ProductRepository) AddStockOnOrder(ctx context.Context, q database.Queryer, id string, delta int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE products SET stock_on_order = GREATEST(stock_on_order + $2, 0), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`,
		id, delta,
	)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("product")
	}
	return nil
}

// AddStockAllocated shifts the allocated aggregate within the caller's
// transaction.
func (r *ProductRepository) AddStockAllocated(ctx context.Context, q database.Queryer, id string, delta int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE products SET stock_allocated = stock_allocated + $2, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`,
		id, delta,
	)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("product")
	}
	return nil
}
