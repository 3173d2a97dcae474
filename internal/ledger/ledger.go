package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
	"github.com/ricemill/ricemill-backend/pkg/logger"
)

// Ledger implements the atomic stock-move primitives. Every method takes a
// database.Queryer so the caller decides the transaction boundary: services
// pass the *sqlx.Tx of the enclosing database.Transaction, and all rows the
// primitive touches commit or roll back with the rest of the operation.
//
// Primitives update three things together: the inventory_items current-state
// row, the products.stock_on_hand aggregate, and the inventory_transactions
// audit log. The aggregate is never changed without a matching
// location-level transaction row.
type Ledger struct {
	logger *logger.Logger
}

// New creates a new ledger
func New(log *logger.Logger) *Ledger {
	return &Ledger{logger: log}
}

// StockIn increments (or lazily creates) the inventory row at the entry's
// location, increments the product's on-hand aggregate, and appends one
// inbound transaction. Never fails for a valid positive quantity.
func (l *Ledger) StockIn(ctx context.Context, q database.Queryer, e Entry) (*Transaction, error) {
	if e.Quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be positive"})
	}
	if e.LocationID == "" {
		return nil, errors.Validation(map[string]string{"location_id": "this field is required"})
	}

	kind := e.Kind
	if kind == "" {
		kind = KindStockIn
	}
	if !kind.Inbound() {
		return nil, errors.BadRequest(fmt.Sprintf("kind %s is not an inbound kind", kind))
	}

	if err := l.upsertItem(ctx, q, e.ProductID, e.LocationID, e.Quantity); err != nil {
		return nil, err
	}

	if err := l.bumpOnHand(ctx, q, e.ProductID, e.Quantity); err != nil {
		return nil, err
	}

	return l.appendTransaction(ctx, q, e, kind, e.LocationID, e.Quantity)
}

// StockOut deducts quantity greedily across the product's inventory rows,
// ordered by row creation time per the policy, emitting one outbound
// transaction per row touched. Availability across all applicable rows is
// checked before any row is mutated, so an insufficient-stock failure
// leaves every row untouched. If the entry names a location, only that
// location's row is eligible.
func (l *Ledger) StockOut(ctx context.Context, q database.Queryer, e Entry, policy Policy) ([]*Transaction, error) {
	if e.Quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be positive"})
	}

	kind := e.Kind
	if kind == "" {
		kind = KindStockOut
	}
	if kind.Inbound() {
		return nil, errors.BadRequest(fmt.Sprintf("kind %s is not an outbound kind", kind))
	}

	rows, err := l.lockItems(ctx, q, e.ProductID, e.LocationID, policy)
	if err != nil {
		return nil, err
	}

	available := 0
	for _, row := range rows {
		available += row.Quantity
	}
	if available < e.Quantity {
		return nil, errors.InsufficientStock(l.productName(ctx, q, e.ProductID), e.Quantity, available)
	}

	remaining := e.Quantity
	var txns []*Transaction
	for _, row := range rows {
		if remaining == 0 {
			break
		}
		take := row.Quantity
		if take > remaining {
			take = remaining
		}

		if _, err := q.ExecContext(ctx,
			`UPDATE inventory_items SET quantity = quantity - $2, updated_at = NOW() WHERE id = $1`,
			row.ID, take,
		); err != nil {
			return nil, err
		}

		txn, err := l.appendTransaction(ctx, q, e, kind, row.LocationID, take)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
		remaining -= take
	}

	if err := l.bumpOnHand(ctx, q, e.ProductID, -e.Quantity); err != nil {
		return nil, err
	}

	return txns, nil
}

// Transfer moves quantity between two locations as one atomic unit,
// recording a STOCK_OUT at the source and a STOCK_IN at the target. The
// source row is deleted when the transfer drains it to exactly zero; the
// product aggregate is unchanged because the two legs cancel out.
func (l *Ledger) Transfer(ctx context.Context, q database.Queryer, productID, sourceLocationID, targetLocationID string, quantity int, note *string, createdBy string) error {
	if quantity <= 0 {
		return errors.Validation(map[string]string{"quantity": "must be positive"})
	}
	if sourceLocationID == targetLocationID {
		return errors.BadRequest("source and target locations must differ")
	}

	var source InventoryItem
	err := q.GetContext(ctx, &source,
		`SELECT id, product_id, location_id, quantity, created_at, updated_at
		 FROM inventory_items
		 WHERE product_id = $1 AND location_id = $2
		 FOR UPDATE`,
		productID, sourceLocationID,
	)
	if err == sql.ErrNoRows {
		return errors.InsufficientStock(l.productName(ctx, q, productID), quantity, 0)
	}
	if err != nil {
		return err
	}

	if source.Quantity < quantity {
		return errors.InsufficientStock(l.productName(ctx, q, productID), quantity, source.Quantity)
	}

	if source.Quantity == quantity {
		if _, err := q.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = $1`, source.ID); err != nil {
			return err
		}
	} else {
		if _, err := q.ExecContext(ctx,
			`UPDATE inventory_items SET quantity = quantity - $2, updated_at = NOW() WHERE id = $1`,
			source.ID, quantity,
		); err != nil {
			return err
		}
	}

	if err := l.upsertItem(ctx, q, productID, targetLocationID, quantity); err != nil {
		return err
	}

	e := Entry{ProductID: productID, Quantity: quantity, Note: note, CreatedBy: createdBy}
	if _, err := l.appendTransaction(ctx, q, e, KindStockOut, sourceLocationID, quantity); err != nil {
		return err
	}
	if _, err := l.appendTransaction(ctx, q, e, KindStockIn, targetLocationID, quantity); err != nil {
		return err
	}

	return nil
}

// Adjust sets or shifts a single location's quantity directly. The
// transaction kind is classified by comparing old and new quantity:
// an increase records STOCK_IN, a decrease STOCK_OUT, no change ADJUSTMENT.
func (l *Ledger) Adjust(ctx context.Context, q database.Queryer, adj Adjustment) (*AdjustResult, error) {
	if adj.Quantity < 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must not be negative"})
	}

	old := 0
	var itemID string
	var item InventoryItem
	err := q.GetContext(ctx, &item,
		`SELECT id, product_id, location_id, quantity, created_at, updated_at
		 FROM inventory_items
		 WHERE product_id = $1 AND location_id = $2
		 FOR UPDATE`,
		adj.ProductID, adj.LocationID,
	)
	switch {
	case err == sql.ErrNoRows:
		// Row is created lazily below if the adjustment adds stock.
	case err != nil:
		return nil, err
	default:
		old = item.Quantity
		itemID = item.ID
	}

	var next int
	switch adj.Mode {
	case AdjustAdd:
		next = old + adj.Quantity
	case AdjustRemove:
		next = old - adj.Quantity
	case AdjustSet:
		next = adj.Quantity
	default:
		return nil, errors.Validation(map[string]string{"adjustment_type": "must be one of: ADD, REMOVE, SET"})
	}

	if next < 0 {
		return nil, errors.InsufficientStock(l.productName(ctx, q, adj.ProductID), old-next, old)
	}

	if itemID == "" {
		if err := l.upsertItem(ctx, q, adj.ProductID, adj.LocationID, next); err != nil {
			return nil, err
		}
	} else {
		// Adjustments may leave a zero-quantity row; only transfers delete rows.
		if _, err := q.ExecContext(ctx,
			`UPDATE inventory_items SET quantity = $2, updated_at = NOW() WHERE id = $1`,
			itemID, next,
		); err != nil {
			return nil, err
		}
	}

	delta := next - old
	kind := KindAdjustment
	magnitude := delta
	switch {
	case delta > 0:
		kind = KindStockIn
	case delta < 0:
		kind = KindStockOut
		magnitude = -delta
	}

	if delta != 0 {
		if err := l.bumpOnHand(ctx, q, adj.ProductID, delta); err != nil {
			return nil, err
		}
	}

	e := Entry{
		ProductID: adj.ProductID,
		Quantity:  magnitude,
		Note:      &adj.Reason,
		CreatedBy: adj.CreatedBy,
	}
	txn, err := l.appendTransaction(ctx, q, e, kind, adj.LocationID, magnitude)
	if err != nil {
		return nil, err
	}

	return &AdjustResult{Transaction: txn, OldQuantity: old, NewQuantity: next}, nil
}

// lockItems loads the product's nonzero inventory rows inside the caller's
// transaction, ordered per policy, locking them against concurrent writers.
func (l *Ledger) lockItems(ctx context.Context, q database.Queryer, productID, locationID string, policy Policy) ([]*InventoryItem, error) {
	order := "ASC"
	if policy == LIFO {
		order = "DESC"
	}

	var rows []*InventoryItem
	var err error
	if locationID != "" {
		err = q.SelectContext(ctx, &rows,
			`SELECT id, product_id, location_id, quantity, created_at, updated_at
			 FROM inventory_items
			 WHERE product_id = $1 AND location_id = $2 AND quantity > 0
			 ORDER BY created_at `+order+`
			 FOR UPDATE`,
			productID, locationID,
		)
	} else {
		err = q.SelectContext(ctx, &rows,
			`SELECT id, product_id, location_id, quantity, created_at, updated_at
			 FROM inventory_items
			 WHERE product_id = $1 AND quantity > 0
			 ORDER BY created_at `+order+`
			 FOR UPDATE`,
			productID,
		)
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (l *Ledger) upsertItem(ctx context.Context, q database.Queryer, productID, locationID string, quantity int) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO inventory_items (id, product_id, location_id, quantity)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (product_id, location_id)
		 DO UPDATE SET quantity = inventory_items.quantity + EXCLUDED.quantity, updated_at = NOW()`,
		uuid.New().String(), productID, locationID, quantity,
	)
	return err
}

func (l *Ledger) bumpOnHand(ctx context.Context, q database.Queryer, productID string, delta int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE products SET stock_on_hand = stock_on_hand + $2, updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`,
		productID, delta,
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

func (l *Ledger) appendTransaction(ctx context.Context, q database.Queryer, e Entry, kind Kind, locationID string, quantity int) (*Transaction, error) {
	txn := &Transaction{
		ID:                  uuid.New().String(),
		ProductID:           e.ProductID,
		LocationID:          locationID,
		Kind:                kind,
		Quantity:            quantity,
		UnitPrice:           e.UnitPrice,
		PurchaseOrderID:     e.PurchaseOrderID,
		PurchaseOrderItemID: e.PurchaseOrderItemID,
		PurchaseReturnID:    e.PurchaseReturnID,
		Note:                e.Note,
		CreatedBy:           e.CreatedBy,
	}

	err := q.QueryRowxContext(ctx,
		`INSERT INTO inventory_transactions (
			id, product_id, location_id, kind, quantity, unit_price,
			purchase_order_id, purchase_order_item_id, purchase_return_id,
			note, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		txn.ID, txn.ProductID, txn.LocationID, txn.Kind, txn.Quantity, txn.UnitPrice,
		txn.PurchaseOrderID, txn.PurchaseOrderItemID, txn.PurchaseReturnID,
		txn.Note, txn.CreatedBy,
	).Scan(&txn.CreatedAt)
	if err != nil {
		return nil, err
	}

	return txn, nil
}

// productName resolves a product name for error messages. Falls back to the
// ID if the lookup fails; the enclosing transaction is already doomed when
// this is called.
func (l *Ledger) productName(ctx context.Context, q database.Queryer, productID string) string {
	var name string
	if err := q.GetContext(ctx, &name, `SELECT name FROM products WHERE id = $1`, productID); err != nil {
		return productID
	}
	return name
}

// ListTransactions returns the audit trail for a product, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, q database.Queryer, productID string, page, perPage int) ([]*Transaction, int64, error) {
	var total int64
	if err := q.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM inventory_transactions WHERE product_id = $1`, productID,
	); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	var txns []*Transaction
	if err := q.SelectContext(ctx, &txns,
		`SELECT id, product_id, location_id, kind, quantity, unit_price,
		        purchase_order_id, purchase_order_item_id, purchase_return_id,
		        note, created_by, created_at
		 FROM inventory_transactions
		 WHERE product_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		productID, perPage, offset,
	); err != nil {
		return nil, 0, err
	}

	return txns, total, nil
}
