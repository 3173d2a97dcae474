package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
)

// Backorder statuses. A backorder ends as Closed whether receipts drained
// it to zero or the line completed through another path. Fulfilled is
// likewise settled and excluded from outstanding listings.
const (
	BackorderStatusOpen      = "Open"
	BackorderStatusReminded  = "Reminded"
	BackorderStatusPartial   = "Partial"
	BackorderStatusClosed    = "Closed"
	BackorderStatusFulfilled = "Fulfilled"
)

// Backorder records the remaining shortfall on a purchase order line
type Backorder struct {
	ID                  string     `db:"id" json:"id"`
	PurchaseOrderItemID string     `db:"purchase_order_item_id" json:"purchase_order_item_id"`
	Quantity            int        `db:"quantity" json:"quantity"`
	Status              string     `db:"status" json:"status"`
	ExpectedDate        *time.Time `db:"expected_date" json:"expected_date,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// Outstanding reports whether the backorder still awaits stock
func (b *Backorder) Outstanding() bool {
	return b.Status == BackorderStatusOpen ||
		b.Status == BackorderStatusReminded ||
		b.Status == BackorderStatusPartial
}

// BackorderDetail is a backorder joined with its line, order, product and
// supplier, for listings and reminder payloads.
type BackorderDetail struct {
	Backorder
	PurchaseOrderID string `db:"purchase_order_id" json:"purchase_order_id"`
	OrderNumber     string `db:"order_number" json:"order_number"`
	ProductID       string `db:"product_id" json:"product_id"`
	ProductName     string `db:"product_name" json:"product_name"`
	SupplierID      string `db:"supplier_id" json:"supplier_id"`
	SupplierName    string `db:"supplier_name" json:"supplier_name"`
}

const backorderColumns = `id, purchase_order_item_id, quantity, status, expected_date, created_at, updated_at`

// BackorderRepository handles backorder persistence
type BackorderRepository struct {
	db *database.DB
}

// NewBackorderRepository creates a new backorder repository
func NewBackorderRepository(db *database.DB) *BackorderRepository {
	return &BackorderRepository{db: db}
}

// Create creates a backorder within the caller's transaction
func (r *BackorderRepository) Create(ctx context.Context, q database.Queryer, b *Backorder) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Status == "" {
		b.Status = BackorderStatusOpen
	}

	query := `
		INSERT INTO backorders (id, purchase_order_item_id, quantity, status, expected_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err := q.QueryRowxContext(ctx, query,
		b.ID, b.PurchaseOrderItemID, b.Quantity, b.Status, b.ExpectedDate,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a backorder by ID
func (r *BackorderRepository) GetByID(ctx context.Context, id string) (*Backorder, error) {
	var b Backorder
	err := r.db.GetContext(ctx, &b,
		`SELECT `+backorderColumns+` FROM backorders WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("backorder")
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetDetail gets a backorder with its line, order, product and supplier
func (r *BackorderRepository) GetDetail(ctx context.Context, id string) (*BackorderDetail, error) {
	var d BackorderDetail
	err := r.db.GetContext(ctx, &d,
		`SELECT b.id, b.purchase_order_item_id, b.quantity, b.status, b.expected_date,
		        b.created_at, b.updated_at,
		        i.purchase_order_id, po.order_number,
		        i.product_id, p.name AS product_name,
		        po.supplier_id, s.name AS supplier_name
		 FROM backorders b
		 JOIN purchase_order_items i ON i.id = b.purchase_order_item_id
		 JOIN purchase_orders po ON po.id = i.purchase_order_id
		 JOIN products p ON p.id = i.product_id
		 JOIN suppliers s ON s.id = po.supplier_id
		 WHERE b.id = $1`,
		id,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("backorder")
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListOutstandingForItem loads a line's outstanding backorders oldest first,
// locked within the caller's transaction. Settlement drains them in this
// order.
func (r *BackorderRepository) ListOutstandingForItem(ctx context.Context, q database.Queryer, itemID string) ([]*Backorder, error) {
	var backorders []*Backorder
	err := q.SelectContext(ctx, &backorders,
		`SELECT `+backorderColumns+`
		 FROM backorders
		 WHERE purchase_order_item_id = $1 AND status IN ('Open', 'Reminded', 'Partial')
		 ORDER BY created_at ASC
		 FOR UPDATE`,
		itemID,
	)
	if err != nil {
		return nil, err
	}
	return backorders, nil
}

// List lists backorders, optionally filtered to outstanding ones
func (r *BackorderRepository) List(ctx context.Context, outstandingOnly bool) ([]*BackorderDetail, error) {
	query := `
		SELECT b.id, b.purchase_order_item_id, b.quantity, b.status, b.expected_date,
		       b.created_at, b.updated_at,
		       i.purchase_order_id, po.order_number,
		       i.product_id, p.name AS product_name,
		       po.supplier_id, s.name AS supplier_name
		FROM backorders b
		JOIN purchase_order_items i ON i.id = b.purchase_order_item_id
		JOIN purchase_orders po ON po.id = i.purchase_order_id
		JOIN products p ON p.id = i.product_id
		JOIN suppliers s ON s.id = po.supplier_id
	`
	if outstandingOnly {
		query += ` WHERE b.status IN ('Open', 'Reminded', 'Partial')`
	}
	query += ` ORDER BY b.created_at ASC`

	var backorders []*BackorderDetail
	if err := r.db.SelectContext(ctx, &backorders, query); err != nil {
		return nil, err
	}
	return backorders, nil
}

// Update persists a backorder's quantity and status within the caller's
// transaction.
func (r *BackorderRepository) Update(ctx context.Context, q database.Queryer, b *Backorder) error {
	result, err := q.ExecContext(ctx,
		`UPDATE backorders SET quantity = $2, status = $3, expected_date = $4, updated_at = NOW()
		 WHERE id = $1`,
		b.ID, b.Quantity, b.Status, b.ExpectedDate,
	)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("backorder")
	}
	return nil
}

// MarkReminded flags an open backorder as reminded
func (r *BackorderRepository) MarkReminded(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE backorders SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status = $3`,
		id, BackorderStatusReminded, BackorderStatusOpen,
	)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("backorder is not open")
	}
	return nil
}
