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

// Purchase order statuses. Status is derived: recomputed from the line
// items after every receive or return, never set directly once ordered.
const (
	POStatusPending   = "Pending"
	POStatusOrdered   = "Ordered"
	POStatusPartial   = "Partial"
	POStatusCompleted = "Completed"
	POStatusCancelled = "Cancelled"
)

// Purchase order line statuses
const (
	LineStatusPending     = "Pending"
	LineStatusPartial     = "Partial"
	LineStatusCompleted   = "Completed"
	LineStatusBackordered = "Backordered"
)

// Payment types
const (
	PaymentTypeFull    = "FULL"
	PaymentTypeMonthly = "MONTHLY"
)

// PurchaseOrder represents a purchase order to a supplier
type PurchaseOrder struct {
	ID           string     `db:"id" json:"id"`
	OrderNumber  string     `db:"order_number" json:"order_number"`
	SupplierID   string     `db:"supplier_id" json:"supplier_id"`
	Status       string     `db:"status" json:"status"`
	PaymentType  string     `db:"payment_type" json:"payment_type"`
	MonthlyTerms *int       `db:"monthly_terms" json:"monthly_terms,omitempty"`
	OrderDate    time.Time  `db:"order_date" json:"order_date"`
	DueDate      *time.Time `db:"due_date" json:"due_date,omitempty"`
	Note         *string    `db:"note" json:"note,omitempty"`
	CreatedBy    string     `db:"created_by" json:"created_by"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	Items []*PurchaseOrderItem `db:"-" json:"items,omitempty"`
}

// TotalCost sums price times ordered quantity over the lines
func (po *PurchaseOrder) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, item := range po.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.OrderedQty))))
	}
	return total
}

// PurchaseOrderItem is one line of a purchase order
type PurchaseOrderItem struct {
	ID              string          `db:"id" json:"id"`
	PurchaseOrderID string          `db:"purchase_order_id" json:"purchase_order_id"`
	ProductID       string          `db:"product_id" json:"product_id"`
	OrderedQty      int             `db:"ordered_qty" json:"ordered_qty"`
	ReceivedQty     int             `db:"received_qty" json:"received_qty"`
	ReturnedQty     int             `db:"returned_qty" json:"returned_qty"`
	Price           decimal.Decimal `db:"price" json:"price"`
	Status          string          `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Shortfall returns the quantity still outstanding on the line
func (i *PurchaseOrderItem) Shortfall() int {
	short := i.OrderedQty - i.ReceivedQty
	if short < 0 {
		return 0
	}
	return short
}

const poColumns = `id, order_number, supplier_id, status, payment_type, monthly_terms,
	       order_date, due_date, note, created_by, created_at, updated_at`

const poItemColumns = `id, purchase_order_id, product_id, ordered_qty, received_qty,
	       returned_qty, price, status, created_at, updated_at`

// PurchaseOrderRepository handles purchase order persistence
type PurchaseOrderRepository struct {
	db *database.DB
}

// NewPurchaseOrderRepository creates a new purchase order repository
func NewPurchaseOrderRepository(db *database.DB) *PurchaseOrderRepository {
	return &PurchaseOrderRepository{db: db}
}

// Create creates a purchase order with its lines in one transaction scope
func (r *PurchaseOrderRepository) Create(ctx context.Context, q database.Queryer, po *PurchaseOrder) error {
	if po.ID == "" {
		po.ID = uuid.New().String()
	}

	query := `
		INSERT INTO purchase_orders (id, order_number, supplier_id, status, payment_type,
		       monthly_terms, order_date, due_date, note, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := q.QueryRowxContext(ctx, query,
		po.ID, po.OrderNumber, po.SupplierID, po.Status, po.PaymentType,
		po.MonthlyTerms, po.OrderDate, po.DueDate, po.Note, po.CreatedBy,
	).Scan(&po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	for _, item := range po.Items {
		item.PurchaseOrderID = po.ID
		if err := r.CreateItem(ctx, q, item); err != nil {
			return err
		}
	}
	return nil
}

// CreateItem creates a purchase order line
func (r *PurchaseOrderRepository) CreateItem(ctx context.Context, q database.Queryer, item *PurchaseOrderItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Status == "" {
		item.Status = LineStatusPending
	}

	query := `
		INSERT INTO purchase_order_items (id, purchase_order_id, product_id,
		       ordered_qty, received_qty, returned_qty, price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := q.QueryRowxContext(ctx, query,
		item.ID, item.PurchaseOrderID, item.ProductID,
		item.OrderedQty, item.ReceivedQty, item.ReturnedQty, item.Price, item.Status,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a purchase order with its lines
func (r *PurchaseOrderRepository) GetByID(ctx context.Context, id string) (*PurchaseOrder, error) {
	return r.getByID(ctx, r.db, id, false)
}

// GetByIDForUpdate loads a purchase order and its lines inside the caller's
// transaction with row locks, serializing concurrent receive/return calls
// against the same order.
func (r *PurchaseOrderRepository) GetByIDForUpdate(ctx context.Context, q database.Queryer, id string) (*PurchaseOrder, error) {
	return r.getByID(ctx, q, id, true)
}

func (r *PurchaseOrderRepository) getByID(ctx context.Context, q database.Queryer, id string, forUpdate bool) (*PurchaseOrder, error) {
	query := `SELECT ` + poColumns + ` FROM purchase_orders WHERE id = $1`
	itemQuery := `SELECT ` + poItemColumns + ` FROM purchase_order_items
		 WHERE purchase_order_id = $1 ORDER BY created_at ASC`
	if forUpdate {
		query += ` FOR UPDATE`
		itemQuery += ` FOR UPDATE`
	}

	var po PurchaseOrder
	err := q.GetContext(ctx, &po, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("purchase order")
	}
	if err != nil {
		return nil, err
	}

	if err := q.SelectContext(ctx, &po.Items, itemQuery, id); err != nil {
		return nil, err
	}
	return &po, nil
}

// List lists purchase orders, optionally filtered by status
func (r *PurchaseOrderRepository) List(ctx context.Context, page, perPage int, status string) ([]*PurchaseOrder, int64, error) {
	countQuery := `SELECT COUNT(*) FROM purchase_orders`
	query := `SELECT ` + poColumns + ` FROM purchase_orders`
	args := []interface{}{}

	if status != "" {
		countQuery += ` WHERE status = $1`
		query += ` WHERE status = $1`
		args = append(args, status)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query += ` ORDER BY order_date DESC`
	if status != "" {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, perPage, offset)

	var orders []*PurchaseOrder
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateStatus sets a purchase order's status within the caller's transaction
func (r *PurchaseOrderRepository) UpdateStatus(ctx context.Context, q database.Queryer, id, status string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE purchase_orders SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("purchase order")
	}
	return nil
}

// UpdateItemProgress persists a line's received/returned counters and status
// within the caller's transaction.
func (r *PurchaseOrderRepository) UpdateItemProgress(ctx context.Context, q database.Queryer, item *PurchaseOrderItem) error {
	result, err := q.ExecContext(ctx,
		`UPDATE purchase_order_items
		 SET received_qty = $2, returned_qty = $3, status = $4, updated_at = NOW()
		 WHERE id = $1`,
		item.ID, item.ReceivedQty, item.ReturnedQty, item.Status,
	)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("purchase order item")
	}
	return nil
}

// FoldStatus derives an order-level status from its line statuses: Completed
// when every line is complete, Ordered when nothing has arrived, Partial
// otherwise. Pure and idempotent; safe to recompute on every call.
func FoldStatus(items []*PurchaseOrderItem) string {
	if len(items) == 0 {
		return POStatusOrdered
	}

	completed := 0
	touched := 0
	for _, item := range items {
		if item.Status == LineStatusCompleted {
			completed++
		}
		if item.ReceivedQty > 0 {
			touched++
		}
	}

	switch {
	case completed == len(items):
		return POStatusCompleted
	case touched == 0:
		return POStatusOrdered
	default:
		return POStatusPartial
	}
}

// FoldLineStatus derives a line's status from its counters: Completed once
// fully received, Backordered when a shortfall remains and nothing arrived
// in the call that triggered the recompute, Partial otherwise.
func FoldLineStatus(item *PurchaseOrderItem, receivedThisCall int) string {
	switch {
	case item.ReceivedQty >= item.OrderedQty:
		return LineStatusCompleted
	case receivedThisCall == 0:
		return LineStatusBackordered
	default:
		return LineStatusPartial
	}
}
