package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
)

// PurchaseReturn groups line-level returns against a purchase order under
// one reason.
type PurchaseReturn struct {
	ID              string    `db:"id" json:"id"`
	PurchaseOrderID string    `db:"purchase_order_id" json:"purchase_order_id"`
	Reason          string    `db:"reason" json:"reason"`
	CreatedBy       string    `db:"created_by" json:"created_by"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`

	Items []*PurchaseReturnItem `db:"-" json:"items,omitempty"`
}

// PurchaseReturnItem records one line-level return quantity
type PurchaseReturnItem struct {
	ID                  string    `db:"id" json:"id"`
	PurchaseReturnID    string    `db:"purchase_return_id" json:"purchase_return_id"`
	PurchaseOrderItemID string    `db:"purchase_order_item_id" json:"purchase_order_item_id"`
	Quantity            int       `db:"quantity" json:"quantity"`
	Note                *string   `db:"note" json:"note,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// PurchaseReturnRepository handles purchase return persistence
type PurchaseReturnRepository struct {
	db *database.DB
}

// NewPurchaseReturnRepository creates a new purchase return repository
func NewPurchaseReturnRepository(db *database.DB) *PurchaseReturnRepository {
	return &PurchaseReturnRepository{db: db}
}

// Create creates a return header within the caller's transaction
func (r *PurchaseReturnRepository) Create(ctx context.Context, q database.Queryer, ret *PurchaseReturn) error {
	if ret.ID == "" {
		ret.ID = uuid.New().String()
	}

	err := q.QueryRowxContext(ctx,
		`INSERT INTO purchase_returns (id, purchase_order_id, reason, created_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		ret.ID, ret.PurchaseOrderID, ret.Reason, ret.CreatedBy,
	).Scan(&ret.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// CreateItem creates a return line within the caller's transaction
func (r *PurchaseReturnRepository) CreateItem(ctx context.Context, q database.Queryer, item *PurchaseReturnItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	err := q.QueryRowxContext(ctx,
		`INSERT INTO purchase_return_items (id, purchase_return_id, purchase_order_item_id, quantity, note)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		item.ID, item.PurchaseReturnID, item.PurchaseOrderItemID, item.Quantity, item.Note,
	).Scan(&item.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a return with its items
func (r *PurchaseReturnRepository) GetByID(ctx context.Context, id string) (*PurchaseReturn, error) {
	var ret PurchaseReturn
	err := r.db.GetContext(ctx, &ret,
		`SELECT id, purchase_order_id, reason, created_by, created_at
		 FROM purchase_returns WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("purchase return")
	}
	if err != nil {
		return nil, err
	}

	err = r.db.SelectContext(ctx, &ret.Items,
		`SELECT id, purchase_return_id, purchase_order_item_id, quantity, note, created_at
		 FROM purchase_return_items WHERE purchase_return_id = $1 ORDER BY created_at ASC`,
		id,
	)
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

// ListByOrder lists returns against a purchase order
func (r *PurchaseReturnRepository) ListByOrder(ctx context.Context, purchaseOrderID string) ([]*PurchaseReturn, error) {
	var returns []*PurchaseReturn
	err := r.db.SelectContext(ctx, &returns,
		`SELECT id, purchase_order_id, reason, created_by, created_at
		 FROM purchase_returns WHERE purchase_order_id = $1 ORDER BY created_at DESC`,
		purchaseOrderID,
	)
	if err != nil {
		return nil, err
	}
	return returns, nil
}
