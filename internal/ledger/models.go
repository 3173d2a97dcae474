package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a transaction log row. Quantity is always an unsigned
// magnitude; the kind determines direction.
type Kind string

const (
	KindStockIn    Kind = "STOCK_IN"
	KindStockOut   Kind = "STOCK_OUT"
	KindAdjustment Kind = "ADJUSTMENT"
	KindMillingIn  Kind = "MILLING_IN"
	KindMillingOut Kind = "MILLING_OUT"
	KindReturnOut  Kind = "RETURN_OUT"
)

// Inbound reports whether the kind increases location stock.
func (k Kind) Inbound() bool {
	return k == KindStockIn || k == KindMillingIn
}

// Policy selects which location's stock is drained first on a deduction.
type Policy string

const (
	// FIFO deducts from the oldest inventory row first. Used for sales,
	// modelling stock rotation.
	FIFO Policy = "FIFO"
	// LIFO deducts from the newest inventory row first. Used for returns,
	// undoing the most recent receipt without per-unit lot tracking.
	LIFO Policy = "LIFO"
)

// InventoryItem is the ledger's current-state row, unique per
// (product, location). It is a cache of the transaction log: replaying all
// transactions for the pair must reproduce Quantity.
type InventoryItem struct {
	ID         string    `db:"id" json:"id"`
	ProductID  string    `db:"product_id" json:"product_id"`
	LocationID string    `db:"location_id" json:"location_id"`
	Quantity   int       `db:"quantity" json:"quantity"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction is an append-only audit log row. Never updated or deleted
// after creation; this is the system of record.
type Transaction struct {
	ID                  string           `db:"id" json:"id"`
	ProductID           string           `db:"product_id" json:"product_id"`
	LocationID          string           `db:"location_id" json:"location_id"`
	Kind                Kind             `db:"kind" json:"kind"`
	Quantity            int              `db:"quantity" json:"quantity"`
	UnitPrice           *decimal.Decimal `db:"unit_price" json:"unit_price,omitempty"`
	PurchaseOrderID     *string          `db:"purchase_order_id" json:"purchase_order_id,omitempty"`
	PurchaseOrderItemID *string          `db:"purchase_order_item_id" json:"purchase_order_item_id,omitempty"`
	PurchaseReturnID    *string          `db:"purchase_return_id" json:"purchase_return_id,omitempty"`
	Note                *string          `db:"note" json:"note,omitempty"`
	CreatedBy           string           `db:"created_by" json:"created_by"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
}

// Signed returns the transaction's signed quantity: positive for inbound
// kinds, negative for outbound. ADJUSTMENT rows record corrections that
// left the quantity unchanged, so they replay as zero.
func (t *Transaction) Signed() int {
	switch {
	case t.Kind.Inbound():
		return t.Quantity
	case t.Kind == KindAdjustment:
		return 0
	default:
		return -t.Quantity
	}
}

// Entry describes one stock movement to apply.
type Entry struct {
	ProductID           string
	LocationID          string // required for StockIn; optional filter for StockOut
	Quantity            int
	Kind                Kind // zero value defaults to STOCK_IN / STOCK_OUT
	UnitPrice           *decimal.Decimal
	PurchaseOrderID     *string
	PurchaseOrderItemID *string
	PurchaseReturnID    *string
	Note                *string
	CreatedBy           string
}

// AdjustMode selects how a manual adjustment interprets its quantity.
type AdjustMode string

const (
	AdjustAdd    AdjustMode = "ADD"
	AdjustRemove AdjustMode = "REMOVE"
	AdjustSet    AdjustMode = "SET"
)

// Adjustment describes a manual correction of a single location's quantity.
type Adjustment struct {
	ProductID  string
	LocationID string
	Mode       AdjustMode
	Quantity   int
	Reason     string
	CreatedBy  string
}

// AdjustResult reports what an adjustment did.
type AdjustResult struct {
	Transaction *Transaction `json:"transaction"`
	OldQuantity int          `json:"old_quantity"`
	NewQuantity int          `json:"new_quantity"`
}
