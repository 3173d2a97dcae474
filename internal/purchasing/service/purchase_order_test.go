package service

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/ricemill/ricemill-backend/internal/purchasing/repository"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
	"github.com/ricemill/ricemill-backend/pkg/logger"
	"github.com/ricemill/ricemill-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestService(mockDB *testutil.MockDB, publisher *testutil.MockPublisher) *PurchasingService {
	log := logger.New("purchasing-test", "development")
	db := database.FromSqlx(mockDB.DB, log)
	return NewPurchasingService(
		db,
		nil,
		repository.NewPurchaseOrderRepository(db),
		repository.NewBackorderRepository(db),
		repository.NewPurchaseReturnRepository(db),
		repository.NewSupplierRepository(db),
		nil,
		nil,
		publisher,
		log,
	)
}

func expectOrderForUpdate(mockDB *testutil.MockDB, id, status string, items ...[]driver.Value) {
	orderRows := testutil.MockRows("id", "order_number", "supplier_id", "status", "payment_type",
		"monthly_terms", "order_date", "due_date", "note", "created_by", "created_at", "updated_at")
	now := time.Now()
	orderRows.AddRow(id, "PO-20260829-ABCD1234", "supplier-1", status, repository.PaymentTypeFull,
		nil, now, nil, nil, "admin-1", now, now)

	itemRows := testutil.MockRows("id", "purchase_order_id", "product_id", "ordered_qty",
		"received_qty", "returned_qty", "price", "status", "created_at", "updated_at")
	for _, item := range items {
		itemRows.AddRow(item...)
	}

	mockDB.ExpectQuery("FROM purchase_orders WHERE id = $1").
		WithArgs(id).
		WillReturnRows(orderRows)
	mockDB.ExpectQuery("FROM purchase_order_items").
		WithArgs(id).
		WillReturnRows(itemRows)
}

func TestPlaceOrderRequiresPending(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newTestService(mockDB, testutil.NewMockPublisher())

	mockDB.ExpectBegin()
	expectOrderForUpdate(mockDB, "po-1", repository.POStatusOrdered)
	mockDB.ExpectRollback()

	_, err := svc.PlaceOrder(context.Background(), "po-1")
	assert.True(t, errors.Is(err, errors.ErrConflict))

	mockDB.ExpectationsWereMet(t)
}

func TestCancelOrderRejectsReceivedStock(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newTestService(mockDB, testutil.NewMockPublisher())

	now := time.Now()
	mockDB.ExpectBegin()
	expectOrderForUpdate(mockDB, "po-1", repository.POStatusOrdered,
		[]driver.Value{"item-1", "po-1", "prod-1", 100, 40, 0, "25.50", repository.LineStatusPartial, now, now})
	mockDB.ExpectRollback()

	err := svc.CancelOrder(context.Background(), "po-1")
	assert.True(t, errors.Is(err, errors.ErrConflict))

	mockDB.ExpectationsWereMet(t)
}

func TestCancelOrderRejectsTerminalStatuses(t *testing.T) {
	for _, status := range []string{repository.POStatusCompleted, repository.POStatusCancelled, repository.POStatusPartial} {
		t.Run(status, func(t *testing.T) {
			mockDB := testutil.NewMockDB(t)
			defer mockDB.Close()
			svc := newTestService(mockDB, testutil.NewMockPublisher())

			mockDB.ExpectBegin()
			expectOrderForUpdate(mockDB, "po-1", status)
			mockDB.ExpectRollback()

			err := svc.CancelOrder(context.Background(), "po-1")
			assert.True(t, errors.Is(err, errors.ErrConflict))

			mockDB.ExpectationsWereMet(t)
		})
	}
}

func TestReceiveRequiresPlacedOrder(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newTestService(mockDB, testutil.NewMockPublisher())

	mockDB.ExpectBegin()
	expectOrderForUpdate(mockDB, "po-1", repository.POStatusPending)
	mockDB.ExpectRollback()

	_, err := svc.Receive(context.Background(), ReceiveInput{
		PurchaseOrderID: "po-1",
		Lines: []ReceiveLine{
			{PurchaseOrderItemID: "item-1", LocationID: "loc-1", ReceivedNow: 10},
		},
		PerformedBy: "admin-1",
	})
	assert.True(t, errors.Is(err, errors.ErrConflict))

	mockDB.ExpectationsWereMet(t)
}

func TestNewOrderNumberFormat(t *testing.T) {
	n := newOrderNumber()
	assert.Regexp(t, regexp.MustCompile(`^PO-\d{8}-[0-9A-F]{8}$`), n)
	assert.NotEqual(t, n, newOrderNumber())
}
