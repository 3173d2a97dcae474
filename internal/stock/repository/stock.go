package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
)

// LocationStock is one inventory row joined with its location, for the
// per-product stock view.
type LocationStock struct {
	LocationID   string    `db:"location_id" json:"location_id"`
	LocationName string    `db:"location_name" json:"location_name"`
	LocationCode string    `db:"location_code" json:"location_code"`
	Quantity     int       `db:"quantity" json:"quantity"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AggregateCheck holds the three quantities that must agree for a product:
// the denormalized aggregate, the sum of current-state rows, and the replay
// of the transaction log.
type AggregateCheck struct {
	ProductID   string `db:"product_id" json:"product_id"`
	ProductName string `db:"product_name" json:"product_name"`
	StockOnHand int    `db:"stock_on_hand" json:"stock_on_hand"`
	ItemsTotal  int    `db:"items_total" json:"items_total"`
	ReplayTotal int    `db:"replay_total" json:"replay_total"`
}

// Drifted reports whether any of the three quantities disagree.
func (c *AggregateCheck) Drifted() bool {
	return c.StockOnHand != c.ItemsTotal || c.ItemsTotal != c.ReplayTotal
}

// StockRepository handles stock view and reconciliation queries
type StockRepository struct {
	db *database.DB
}

// NewStockRepository creates a new stock repository
func NewStockRepository(db *database.DB) *StockRepository {
	return &StockRepository{db: db}
}

// ListByProduct returns a product's inventory rows joined with locations,
// oldest first so the view mirrors FIFO deduction order.
func (r *StockRepository) ListByProduct(ctx context.Context, productID string) ([]*LocationStock, error) {
	var rows []*LocationStock
	err := r.db.SelectContext(ctx, &rows,
		`SELECT i.location_id, l.name AS location_name, l.code AS location_code,
		        i.quantity, i.updated_at
		 FROM inventory_items i
		 JOIN locations l ON l.id = i.location_id
		 WHERE i.product_id = $1
		 ORDER BY i.created_at ASC`,
		productID,
	)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByLocation returns the stock held at a location, by product
func (r *StockRepository) ListByLocation(ctx context.Context, locationID string) ([]*ProductStock, error) {
	var rows []*ProductStock
	err := r.db.SelectContext(ctx, &rows,
		`SELECT i.product_id, p.name AS product_name, i.quantity, i.updated_at
		 FROM inventory_items i
		 JOIN products p ON p.id = i.product_id
		 WHERE i.location_id = $1 AND p.deleted_at IS NULL
		 ORDER BY p.name`,
		locationID,
	)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ProductStock is one inventory row joined with its product, for the
// per-location stock view.
type ProductStock struct {
	ProductID   string    `db:"product_id" json:"product_id"`
	ProductName string    `db:"product_name" json:"product_name"`
	Quantity    int       `db:"quantity" json:"quantity"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CheckAggregates computes, for every live product, the aggregate counter,
// the sum of its current-state rows, and the replay of its transaction log.
func (r *StockRepository) CheckAggregates(ctx context.Context) ([]*AggregateCheck, error) {
	var checks []*AggregateCheck
	err := r.db.SelectContext(ctx, &checks,
		`SELECT p.id AS product_id,
		        p.name AS product_name,
		        p.stock_on_hand,
		        COALESCE((SELECT SUM(i.quantity) FROM inventory_items i WHERE i.product_id = p.id), 0) AS items_total,
		        COALESCE((SELECT SUM(CASE
		                WHEN t.kind IN ('STOCK_IN', 'MILLING_IN') THEN t.quantity
		                WHEN t.kind = 'ADJUSTMENT' THEN 0
		                ELSE -t.quantity
		            END) FROM inventory_transactions t WHERE t.product_id = p.id), 0) AS replay_total
		 FROM products p
		 WHERE p.deleted_at IS NULL
		 ORDER BY p.name`,
	)
	if err != nil {
		return nil, err
	}
	return checks, nil
}

// RepairAggregate resets a product's on-hand aggregate to the sum of its
// current-state rows and logs an ADJUSTMENT row documenting the correction.
// Runs inside the caller's transaction. The current-state rows are the
// operational truth during repair; only the counter moves. The adjustment
// row anchors to the product's oldest inventory row, so a product with no
// rows cannot be repaired here; it needs a manual adjustment at a chosen
// location instead.
func (r *StockRepository) RepairAggregate(ctx context.Context, q database.Queryer, productID string, drift int, performedBy string) error {
	magnitude := drift
	if magnitude < 0 {
		magnitude = -magnitude
	}

	note := "aggregate reconciliation repair"
	result, err := q.ExecContext(ctx,
		`INSERT INTO inventory_transactions (id, product_id, location_id, kind, quantity, note, created_by)
		 SELECT $1, $2, i.location_id, 'ADJUSTMENT', $3, $4, $5
		 FROM inventory_items i
		 WHERE i.product_id = $2
		 ORDER BY i.created_at ASC
		 LIMIT 1`,
		uuid.New().String(), productID, magnitude, note, performedBy,
	)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("product has no inventory rows to anchor the repair adjustment")
	}

	_, err = q.ExecContext(ctx,
		`UPDATE products SET
			stock_on_hand = COALESCE((SELECT SUM(quantity) FROM inventory_items WHERE product_id = $1), 0),
			updated_at = NOW()
		 WHERE id = $1`,
		productID,
	)
	return err
}
