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

// Finance transaction kinds
const (
	KindPayable    = "PAYABLE"
	KindReceivable = "RECEIVABLE"
	KindPayment    = "PAYMENT"
)

// Finance transaction statuses
const (
	StatusPending = "Pending"
	StatusPaid    = "Paid"
)

// Transaction is one row of the accounts-payable/receivable ledger, keyed
// to the purchase order or sales order that produced it.
type Transaction struct {
	ID              string          `db:"id" json:"id"`
	Kind            string          `db:"kind" json:"kind"`
	PurchaseOrderID *string         `db:"purchase_order_id" json:"purchase_order_id,omitempty"`
	OrderID         *string         `db:"order_id" json:"order_id,omitempty"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Status          string          `db:"status" json:"status"`
	DueDate         *time.Time      `db:"due_date" json:"due_date,omitempty"`
	Note            *string         `db:"note" json:"note,omitempty"`
	CreatedBy       string          `db:"created_by" json:"created_by"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

const transactionColumns = `id, kind, purchase_order_id, order_id, amount, status, due_date,
	       note, created_by, created_at, updated_at`

// TransactionRepository handles finance transaction persistence
type TransactionRepository struct {
	db *database.DB
}

// NewTransactionRepository creates a new finance transaction repository
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create creates a finance transaction within the caller's transaction
func (r *TransactionRepository) Create(ctx context.Context, q database.Queryer, t *Transaction) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}

	err := q.QueryRowxContext(ctx,
		`INSERT INTO finance_transactions (id, kind, purchase_order_id, order_id, amount,
		        status, due_date, note, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		t.ID, t.Kind, t.PurchaseOrderID, t.OrderID, t.Amount,
		t.Status, t.DueDate, t.Note, t.CreatedBy,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// GetByID gets a finance transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*Transaction, error) {
	var t Transaction
	err := r.db.GetContext(ctx, &t,
		`SELECT `+transactionColumns+` FROM finance_transactions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("finance transaction")
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List lists finance transactions, optionally filtered by kind and status
func (r *TransactionRepository) List(ctx context.Context, kind, status string) ([]*Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM finance_transactions WHERE 1=1`
	args := []interface{}{}

	if kind != "" {
		args = append(args, kind)
		query += ` AND kind = $1`
	}
	if status != "" {
		args = append(args, status)
		if kind != "" {
			query += ` AND status = $2`
		} else {
			query += ` AND status = $1`
		}
	}
	query += ` ORDER BY created_at DESC`

	var txns []*Transaction
	if err := r.db.SelectContext(ctx, &txns, query, args...); err != nil {
		return nil, err
	}
	return txns, nil
}

// ListByPurchaseOrder lists the finance trail of a purchase order
func (r *TransactionRepository) ListByPurchaseOrder(ctx context.Context, purchaseOrderID string) ([]*Transaction, error) {
	var txns []*Transaction
	err := r.db.SelectContext(ctx, &txns,
		`SELECT `+transactionColumns+` FROM finance_transactions
		 WHERE purchase_order_id = $1 ORDER BY created_at ASC`,
		purchaseOrderID,
	)
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// ListByOrder lists the finance trail of a sales order
func (r *TransactionRepository) ListByOrder(ctx context.Context, orderID string) ([]*Transaction, error) {
	var txns []*Transaction
	err := r.db.SelectContext(ctx, &txns,
		`SELECT `+transactionColumns+` FROM finance_transactions
		 WHERE order_id = $1 ORDER BY created_at ASC`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// MarkPaid settles a pending transaction
func (r *TransactionRepository) MarkPaid(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE finance_transactions SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status = $3`,
		id, StatusPaid, StatusPending,
	)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("finance transaction is not pending")
	}
	return nil
}
