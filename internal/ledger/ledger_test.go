package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ricemill/ricemill-backend/pkg/errors"
	"github.com/ricemill/ricemill-backend/pkg/logger"
	"github.com/ricemill/ricemill-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger() *Ledger {
	return New(logger.New("ledger-test", "development"))
}

func itemRows() *sqlmock.Rows {
	return testutil.MockRows("id", "product_id", "location_id", "quantity", "created_at", "updated_at")
}

func TestStockIn(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	led := newTestLedger()

	mockDB.ExpectExec("INSERT INTO inventory_items").
		WithArgs(testutil.AnyUUID{}, "prod-1", "loc-1", 25).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE products SET stock_on_hand = stock_on_hand + $2").
		WithArgs("prod-1", 25).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WillReturnRows(testutil.MockRows("created_at").AddRow(time.Now()))

	txn, err := led.StockIn(context.Background(), mockDB.DB, Entry{
		ProductID:  "prod-1",
		LocationID: "loc-1",
		Quantity:   25,
		CreatedBy:  "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, KindStockIn, txn.Kind)
	assert.Equal(t, 25, txn.Quantity)
	assert.Equal(t, "loc-1", txn.LocationID)

	mockDB.ExpectationsWereMet(t)
}

func TestStockInRejectsInvalidEntries(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	led := newTestLedger()

	_, err := led.StockIn(context.Background(), mockDB.DB, Entry{ProductID: "prod-1", LocationID: "loc-1", Quantity: 0})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = led.StockIn(context.Background(), mockDB.DB, Entry{ProductID: "prod-1", Quantity: 5})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = led.StockIn(context.Background(), mockDB.DB, Entry{ProductID: "prod-1", LocationID: "loc-1", Quantity: 5, Kind: KindStockOut})
	assert.True(t, errors.Is(err, errors.ErrBadRequest))

	mockDB.ExpectationsWereMet(t)
}

func TestStockOutFIFOSpansRows(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	led := newTestLedger()
	now := time.Now()

	// Oldest row first under FIFO; 40 drains the 30 and bites into the 50.
	mockDB.Mock.ExpectQuery("ORDER BY created_at ASC").
		WithArgs("prod-1").
		WillReturnRows(itemRows().
			AddRow("item-old", "prod-1", "loc-a", 30, now.Add(-48*time.Hour), now).
			AddRow("item-new", "prod-1", "loc-b", 50, now, now))

	mockDB.ExpectExec("UPDATE inventory_items SET quantity = quantity - $2").
		WithArgs("item-old", 30).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))
	mockDB.ExpectExec("UPDATE inventory_items SET quantity = quantity - $2").
		WithArgs("item-new", 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))
	mockDB.ExpectExec("UPDATE products SET stock_on_hand = stock_on_hand + $2").
		WithArgs("prod-1", -40).
		WillReturnResult(sqlmock.NewResult(0, 1))

	txns, err := led.StockOut(context.Background(), mockDB.DB, Entry{
		ProductID: "prod-1",
		Quantity:  40,
		CreatedBy: "admin-1",
	}, FIFO)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "loc-a", txns[0].LocationID)
	assert.Equal(t, 30, txns[0].Quantity)
	assert.Equal(t, "loc-b", txns[1].LocationID)
	assert.Equal(t, 10, txns[1].Quantity)
	assert.Equal(t, KindStockOut, txns[0].Kind)

	mockDB.ExpectationsWereMet(t)
}

func TestStockOutLIFOTakesNewestFirst(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	led := newTestLedger()
	now := time.Now()

	mockDB.Mock.ExpectQuery("ORDER BY created_at DESC").
		WithArgs("prod-1").
		WillReturnRows(itemRows().
			AddRow("item-new", "prod-1", "loc-b", 50, now, now).
			AddRow("item-old", "prod-1", "loc-a", 30, now.Add(-48*time.Hour), now))

	mockDB.ExpectExec("UPDATE inventory_items SET quantity = quantity - $2").
		WithArgs("item-new", 20).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))
	mockDB.ExpectExec("UPDATE products SET stock_on_hand = stock_on_hand + $2").
		WithArgs("prod-1", -20).
		WillReturnResult(sqlmock.NewResult(0, 1))

	txns, err := led.StockOut(context.Background(), mockDB.DB, Entry{
		ProductID: "prod-1",
		Quantity:  20,
		Kind:      KindReturnOut,
		CreatedBy: "admin-1",
	}, LIFO)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "loc-b", txns[0].LocationID)
	assert.Equal(t, KindReturnOut, txns[0].Kind)

	mockDB.ExpectationsWereMet(t)
}

func TestStockOutInsufficientLeavesRowsUntouched(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	led := newTestLedger()
	now := time.Now()

	mockDB.Mock.ExpectQuery("ORDER BY created_at ASC").
		WithArgs("prod-1").
		WillReturnRows(itemRows().
			AddRow("item-1", "prod-1", "loc-a", 10, now, now).
			AddRow("item-2", "prod-1", "loc-b", 10, now, now))
	mockDB.ExpectQuery("SELECT name FROM products").
		WithArgs("prod-1").
		WillReturnRows(testutil.MockRows("name").AddRow("Jasmine Paddy"))

	// No UPDATE expectations: the availability check must fail before any
	// row is mutated.
	_, err := led.StockOut(context.Background(), mockDB.DB, Entry{
		ProductID: "prod-1",
		Quantity:  50,
		CreatedBy: "admin-1",
	}, FIFO)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "50", appErr.Details["requested"])
	assert.Equal(t, "20", appErr.Details["available"])
	assert.Equal(t, "Jasmine Paddy", appErr.Details["product"])

	mockDB.ExpectationsWereMet(t)
}

func TestStockOutLocationFilter(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	led := newTestLedger()
	now := time.Now()

	mockDB.ExpectQuery("WHERE product_id = $1 AND location_id = $2 AND quantity > 0").
		WithArgs("prod-1", "loc-a").
		WillReturnRows(itemRows().AddRow("item-1", "prod-1", "loc-a", 30, now, now))
	mockDB.ExpectExec("UPDATE inventory_items SET quantity = quantity - $2").
		WithArgs("item-1", 15).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))
	mockDB.ExpectExec("UPDATE products SET stock_on_hand = stock_on_hand + $2").
		WithArgs("prod-1", -15).
		WillReturnResult(sqlmock.NewResult(0, 1))

	txns, err := led.StockOut(context.Background(), mockDB.DB, Entry{
		ProductID:  "prod-1",
		LocationID: "loc-a",
		Quantity:   15,
		Kind:       KindMillingOut,
		CreatedBy:  "admin-1",
	}, FIFO)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, KindMillingOut, txns[0].Kind)

	mockDB.ExpectationsWereMet(t)
}

func TestTransferDeletesDrainedSourceRow(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	led := newTestLedger()
	now := time.Now()

	mockDB.ExpectQuery("WHERE product_id = $1 AND location_id = $2").
		WithArgs("prod-1", "loc-a").
		WillReturnRows(itemRows().AddRow("item-1", "prod-1", "loc-a", 20, now, now))
	mockDB.ExpectExec("DELETE FROM inventory_items").
		WithArgs("item-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO inventory_items").
		WithArgs(testutil.AnyUUID{}, "prod-1", "loc-b", 20).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))

	err := led.Transfer(context.Background(), mockDB.DB, "prod-1", "loc-a", "loc-b", 20, nil, "admin-1")
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestTransferPartialKeepsSourceRow(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	led := newTestLedger()
	now := time.Now()

	mockDB.ExpectQuery("WHERE product_id = $1 AND location_id = $2").
		WithArgs("prod-1", "loc-a").
		WillReturnRows(itemRows().AddRow("item-1", "prod-1", "loc-a", 20, now, now))
	mockDB.ExpectExec("UPDATE inventory_items SET quantity = quantity - $2").
		WithArgs("item-1", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO inventory_items").
		WithArgs(testutil.AnyUUID{}, "prod-1", "loc-b", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))

	err := led.Transfer(context.Background(), mockDB.DB, "prod-1", "loc-a", "loc-b", 5, nil, "admin-1")
	require.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestTransferRejectsSameLocation(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	led := newTestLedger()

	err := led.Transfer(context.Background(), mockDB.DB, "prod-1", "loc-a", "loc-a", 5, nil, "admin-1")
	assert.True(t, errors.Is(err, errors.ErrBadRequest))

	mockDB.ExpectationsWereMet(t)
}

func TestAdjustModes(t *testing.T) {
	tests := []struct {
		name     string
		mode     AdjustMode
		old      int
		quantity int
		wantNext int
		wantKind Kind
	}{
		{"add increases", AdjustAdd, 10, 5, 15, KindStockIn},
		{"remove decreases", AdjustRemove, 10, 4, 6, KindStockOut},
		{"set above", AdjustSet, 10, 30, 30, KindStockIn},
		{"set below", AdjustSet, 10, 3, 3, KindStockOut},
		{"set unchanged", AdjustSet, 10, 10, 10, KindAdjustment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDB := testutil.NewMockDB(t)
			defer mockDB.Close()

			led := newTestLedger()
			now := time.Now()

			mockDB.ExpectQuery("WHERE product_id = $1 AND location_id = $2").
				WithArgs("prod-1", "loc-1").
				WillReturnRows(itemRows().AddRow("item-1", "prod-1", "loc-1", tt.old, now, now))
			mockDB.ExpectExec("UPDATE inventory_items SET quantity = $2").
				WithArgs("item-1", tt.wantNext).
				WillReturnResult(sqlmock.NewResult(0, 1))

			delta := tt.wantNext - tt.old
			if delta != 0 {
				mockDB.ExpectExec("UPDATE products SET stock_on_hand = stock_on_hand + $2").
					WithArgs("prod-1", delta).
					WillReturnResult(sqlmock.NewResult(0, 1))
			}
			mockDB.ExpectQuery("INSERT INTO inventory_transactions").
				WillReturnRows(testutil.MockRows("created_at").AddRow(now))

			res, err := led.Adjust(context.Background(), mockDB.DB, Adjustment{
				ProductID:  "prod-1",
				LocationID: "loc-1",
				Mode:       tt.mode,
				Quantity:   tt.quantity,
				Reason:     "cycle count",
				CreatedBy:  "admin-1",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.old, res.OldQuantity)
			assert.Equal(t, tt.wantNext, res.NewQuantity)
			assert.Equal(t, tt.wantKind, res.Transaction.Kind)

			mockDB.ExpectationsWereMet(t)
		})
	}
}

func TestAdjustRemoveBelowZero(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	led := newTestLedger()
	now := time.Now()

	mockDB.ExpectQuery("WHERE product_id = $1 AND location_id = $2").
		WithArgs("prod-1", "loc-1").
		WillReturnRows(itemRows().AddRow("item-1", "prod-1", "loc-1", 3, now, now))
	mockDB.ExpectQuery("SELECT name FROM products").
		WithArgs("prod-1").
		WillReturnRows(testutil.MockRows("name").AddRow("Jasmine Paddy"))

	_, err := led.Adjust(context.Background(), mockDB.DB, Adjustment{
		ProductID:  "prod-1",
		LocationID: "loc-1",
		Mode:       AdjustRemove,
		Quantity:   10,
		Reason:     "damage",
		CreatedBy:  "admin-1",
	})
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	mockDB.ExpectationsWereMet(t)
}

func TestAdjustCreatesRowLazily(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	led := newTestLedger()
	now := time.Now()

	mockDB.ExpectQuery("WHERE product_id = $1 AND location_id = $2").
		WithArgs("prod-1", "loc-1").
		WillReturnRows(itemRows())
	mockDB.ExpectExec("INSERT INTO inventory_items").
		WithArgs(testutil.AnyUUID{}, "prod-1", "loc-1", 8).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE products SET stock_on_hand = stock_on_hand + $2").
		WithArgs("prod-1", 8).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectQuery("INSERT INTO inventory_transactions").
		WillReturnRows(testutil.MockRows("created_at").AddRow(now))

	res, err := led.Adjust(context.Background(), mockDB.DB, Adjustment{
		ProductID:  "prod-1",
		LocationID: "loc-1",
		Mode:       AdjustSet,
		Quantity:   8,
		Reason:     "initial count",
		CreatedBy:  "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.OldQuantity)
	assert.Equal(t, 8, res.NewQuantity)

	mockDB.ExpectationsWereMet(t)
}

func TestTransactionSigned(t *testing.T) {
	assert.Equal(t, 10, (&Transaction{Kind: KindStockIn, Quantity: 10}).Signed())
	assert.Equal(t, 10, (&Transaction{Kind: KindMillingIn, Quantity: 10}).Signed())
	assert.Equal(t, -10, (&Transaction{Kind: KindStockOut, Quantity: 10}).Signed())
	assert.Equal(t, -10, (&Transaction{Kind: KindMillingOut, Quantity: 10}).Signed())
	assert.Equal(t, -10, (&Transaction{Kind: KindReturnOut, Quantity: 10}).Signed())
	assert.Equal(t, 0, (&Transaction{Kind: KindAdjustment, Quantity: 10}).Signed())
}
