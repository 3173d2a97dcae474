package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
)

// Shipment statuses, advanced forward-only
const (
	ShipmentProcessing = "Processing Order"
	ShipmentInTransit  = "In Transit"
	ShipmentDelivered  = "Delivered"
)

// Fulfillment statuses. Fulfillment gates whether ledger stock-out has
// happened for the delivery.
const (
	FulfillmentPending   = "pending"
	FulfillmentFulfilled = "fulfilled"
)

// Delivery is one partial shipment of a sales order
type Delivery struct {
	ID                string     `db:"id" json:"id"`
	OrderID           string     `db:"order_id" json:"order_id"`
	ShipmentStatus    string     `db:"shipment_status" json:"shipment_status"`
	FulfillmentStatus string     `db:"fulfillment_status" json:"fulfillment_status"`
	FulfilledAt       *time.Time `db:"fulfilled_at" json:"fulfilled_at,omitempty"`
	Note              *string    `db:"note" json:"note,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`

	Items []*DeliveryItem `db:"-" json:"items,omitempty"`
}

// DeliveryItem is one line of a delivery, tied back to the order line it
// partially ships.
type DeliveryItem struct {
	ID          string    `db:"id" json:"id"`
	DeliveryID  string    `db:"delivery_id" json:"delivery_id"`
	OrderItemID string    `db:"order_item_id" json:"order_item_id"`
	ProductID   string    `db:"product_id" json:"product_id"`
	Quantity    int       `db:"quantity" json:"quantity"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

const deliveryColumns = `id, order_id, shipment_status, fulfillment_status, fulfilled_at,
	       note, created_at, updated_at`

const deliveryItemColumns = `id, delivery_id, order_item_id, product_id, quantity, created_at`

// DeliveryRepository handles delivery persistence
type DeliveryRepository struct {
	db *database.DB
}

// NewDeliveryRepository creates a new delivery repository
func NewDeliveryRepository(db *database.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Create creates a delivery with its lines within the caller's transaction
func (r *DeliveryRepository) Create(ctx context.Context, q database.Queryer, d *Delivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.ShipmentStatus == "" {
		d.ShipmentStatus = ShipmentProcessing
	}
	if d.FulfillmentStatus == "" {
		d.FulfillmentStatus = FulfillmentPending
	}

	err := q.QueryRowxContext(ctx,
		`INSERT INTO deliveries (id, order_id, shipment_status, fulfillment_status, note)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		d.ID, d.OrderID, d.ShipmentStatus, d.FulfillmentStatus, d.Note,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	for _, item := range d.Items {
		item.DeliveryID = d.ID
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		err := q.QueryRowxContext(ctx,
			`INSERT INTO delivery_items (id, delivery_id, order_item_id, product_id, quantity)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING created_at`,
			item.ID, item.DeliveryID, item.OrderItemID, item.ProductID, item.Quantity,
		).Scan(&item.CreatedAt)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
	}
	return nil
}

// GetByID gets a delivery with its lines
func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*Delivery, error) {
	return r.getByID(ctx, r.db, id, false)
}

// GetByIDForUpdate loads a delivery and its lines inside the caller's
// transaction with a row lock, so two concurrent fulfillments of the same
// delivery cannot both proceed.
func (r *DeliveryRepository) GetByIDForUpdate(ctx context.Context, q database.Queryer, id string) (*Delivery, error) {
	return r.getByID(ctx, q, id, true)
}

func (r *DeliveryRepository) getByID(ctx context.Context, q database.Queryer, id string, forUpdate bool) (*Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var d Delivery
	err := q.GetContext(ctx, &d, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("delivery")
	}
	if err != nil {
		return nil, err
	}

	err = q.SelectContext(ctx, &d.Items,
		`SELECT `+deliveryItemColumns+` FROM delivery_items
		 WHERE delivery_id = $1 ORDER BY created_at ASC`, id)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListByOrder lists an order's deliveries oldest first
func (r *DeliveryRepository) ListByOrder(ctx context.Context, orderID string) ([]*Delivery, error) {
	return r.listByOrder(ctx, r.db, orderID)
}

// ListByOrderIn lists an order's deliveries within the caller's transaction
func (r *DeliveryRepository) ListByOrderIn(ctx context.Context, q database.Queryer, orderID string) ([]*Delivery, error) {
	return r.listByOrder(ctx, q, orderID)
}

func (r *DeliveryRepository) listByOrder(ctx context.Context, q database.Queryer, orderID string) ([]*Delivery, error) {
	var deliveries []*Delivery
	err := q.SelectContext(ctx, &deliveries,
		`SELECT `+deliveryColumns+` FROM deliveries
		 WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

// UpdateShipmentStatus sets a delivery's shipment status
func (r *DeliveryRepository) UpdateShipmentStatus(ctx context.Context, id, status string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE deliveries SET shipment_status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("delivery")
	}
	return nil
}

// MarkFulfilled records that a delivery's stock-out has happened, within
// the caller's transaction.
func (r *DeliveryRepository) MarkFulfilled(ctx context.Context, q database.Queryer, id string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE deliveries
		 SET fulfillment_status = $2, fulfilled_at = NOW(), updated_at = NOW()
		 WHERE id = $1`,
		id, FulfillmentFulfilled,
	)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("delivery")
	}
	return nil
}
