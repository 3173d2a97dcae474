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

// Order statuses, derived by folding over the order's deliveries and item
// counters after every fulfillment.
const (
	OrderStatusProcessing = "processing"
	OrderStatusPartial    = "partial"
	OrderStatusCompleted  = "completed"
)

// Order represents a customer sales order
type Order struct {
	ID            string    `db:"id" json:"id"`
	OrderNumber   string    `db:"order_number" json:"order_number"`
	CustomerName  string    `db:"customer_name" json:"customer_name"`
	CustomerPhone *string   `db:"customer_phone" json:"customer_phone,omitempty"`
	Address       *string   `db:"address" json:"address,omitempty"`
	Status        string    `db:"status" json:"status"`
	Note          *string   `db:"note" json:"note,omitempty"`
	CreatedBy     string    `db:"created_by" json:"created_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`

	Items []*OrderItem `db:"-" json:"items,omitempty"`
}

// Total sums price times quantity over the lines
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// OrderItem is one line of a sales order. QuantityFulfilled and
// QuantityPending always sum to Quantity.
type OrderItem struct {
	ID                string          `db:"id" json:"id"`
	OrderID           string          `db:"order_id" json:"order_id"`
	ProductID         string          `db:"product_id" json:"product_id"`
	Quantity          int             `db:"quantity" json:"quantity"`
	QuantityFulfilled int             `db:"quantity_fulfilled" json:"quantity_fulfilled"`
	QuantityPending   int             `db:"quantity_pending" json:"quantity_pending"`
	Price             decimal.Decimal `db:"price" json:"price"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

const orderColumns = `id, order_number, customer_name, customer_phone, address, status,
	       note, created_by, created_at, updated_at`

const orderItemColumns = `id, order_id, product_id, quantity, quantity_fulfilled,
	       quantity_pending, price, created_at, updated_at`

// OrderRepository handles sales order persistence
type OrderRepository struct {
	db *database.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create creates an order with its lines within the caller's transaction
func (r *OrderRepository) Create(ctx context.Context, q database.Queryer, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}

	err := q.QueryRowxContext(ctx,
		`INSERT INTO orders (id, order_number, customer_name, customer_phone, address,
		        status, note, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		o.ID, o.OrderNumber, o.CustomerName, o.CustomerPhone, o.Address,
		o.Status, o.Note, o.CreatedBy,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	for _, item := range o.Items {
		item.OrderID = o.ID
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.QuantityPending = item.Quantity
		err := q.QueryRowxContext(ctx,
			`INSERT INTO order_items (id, order_id, product_id, quantity,
			        quantity_fulfilled, quantity_pending, price)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING created_at, updated_at`,
			item.ID, item.OrderID, item.ProductID, item.Quantity,
			item.QuantityFulfilled, item.QuantityPending, item.Price,
		).Scan(&item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
	}
	return nil
}

// GetByID gets an order with its lines
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*Order, error) {
	return r.getByID(ctx, r.db, id, false)
}

// GetByIDForUpdate loads an order and its lines inside the caller's
// transaction with row locks.
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, q database.Queryer, id string) (*Order, error) {
	return r.getByID(ctx, q, id, true)
}

func (r *OrderRepository) getByID(ctx context.Context, q database.Queryer, id string, forUpdate bool) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	itemQuery := `SELECT ` + orderItemColumns + ` FROM order_items
		 WHERE order_id = $1 ORDER BY created_at ASC`
	if forUpdate {
		query += ` FOR UPDATE`
		itemQuery += ` FOR UPDATE`
	}

	var o Order
	err := q.GetContext(ctx, &o, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("order")
	}
	if err != nil {
		return nil, err
	}

	if err := q.SelectContext(ctx, &o.Items, itemQuery, id); err != nil {
		return nil, err
	}
	return &o, nil
}

// List lists orders, optionally filtered by status
func (r *OrderRepository) List(ctx context.Context, page, perPage int, status string) ([]*Order, int64, error) {
	countQuery := `SELECT COUNT(*) FROM orders`
	query := `SELECT ` + orderColumns + ` FROM orders`
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
	query += ` ORDER BY created_at DESC`
	if status != "" {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, perPage, offset)

	var orders []*Order
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateStatus sets an order's status within the caller's transaction
func (r *OrderRepository) UpdateStatus(ctx context.Context, q database.Queryer, id, status string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("order")
	}
	return nil
}

// UpdateItemProgress persists a line's fulfillment counters within the
// caller's transaction.
func (r *OrderRepository) UpdateItemProgress(ctx context.Context, q database.Queryer, item *OrderItem) error {
	result, err := q.ExecContext(ctx,
		`UPDATE order_items
		 SET quantity_fulfilled = $2, quantity_pending = $3, updated_at = NOW()
		 WHERE id = $1`,
		item.ID, item.QuantityFulfilled, item.QuantityPending,
	)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("order item")
	}
	return nil
}
