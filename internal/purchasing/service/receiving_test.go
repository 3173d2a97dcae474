package service

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/ricemill/ricemill-backend/internal/purchasing/repository"
	"github.com/ricemill/ricemill-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outstandingRows(rows ...[]driver.Value) *sqlmock.Rows {
	r := testutil.MockRows("id", "purchase_order_item_id", "quantity", "status",
		"expected_date", "created_at", "updated_at")
	for _, row := range rows {
		r.AddRow(row...)
	}
	return r
}

func TestSettleBackordersDrainsOldestFirst(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newTestService(mockDB, testutil.NewMockPublisher())

	now := time.Now()
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM backorders").WithArgs("item-1").WillReturnRows(outstandingRows(
		[]driver.Value{"bo-1", "item-1", 10, repository.BackorderStatusOpen, nil, now.Add(-48 * time.Hour), now},
		[]driver.Value{"bo-2", "item-1", 5, repository.BackorderStatusOpen, nil, now.Add(-24 * time.Hour), now},
	))
	mockDB.ExpectExec("UPDATE backorders SET quantity = $2, status = $3").
		WithArgs("bo-1", 0, repository.BackorderStatusClosed, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE backorders SET quantity = $2, status = $3").
		WithArgs("bo-2", 2, repository.BackorderStatusPartial, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	item := &repository.PurchaseOrderItem{ID: "item-1", OrderedQty: 40, ReceivedQty: 13}
	err := svc.db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return svc.settleBackorders(context.Background(), tx, item, 13)
	})
	assert.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestSettleBackordersExactDrainCloses(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newTestService(mockDB, testutil.NewMockPublisher())

	now := time.Now()
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM backorders").WithArgs("item-1").WillReturnRows(outstandingRows(
		[]driver.Value{"bo-1", "item-1", 10, repository.BackorderStatusOpen, nil, now, now},
	))
	mockDB.ExpectExec("UPDATE backorders SET quantity = $2, status = $3").
		WithArgs("bo-1", 0, repository.BackorderStatusClosed, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	item := &repository.PurchaseOrderItem{ID: "item-1", OrderedQty: 40, ReceivedQty: 10}
	err := svc.db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return svc.settleBackorders(context.Background(), tx, item, 10)
	})
	assert.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestSettleBackordersPartialDrain(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newTestService(mockDB, testutil.NewMockPublisher())

	now := time.Now()
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM backorders").WithArgs("item-1").WillReturnRows(outstandingRows(
		[]driver.Value{"bo-1", "item-1", 10, repository.BackorderStatusReminded, nil, now, now},
	))
	mockDB.ExpectExec("UPDATE backorders SET quantity = $2, status = $3").
		WithArgs("bo-1", 6, repository.BackorderStatusPartial, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	item := &repository.PurchaseOrderItem{ID: "item-1", OrderedQty: 40, ReceivedQty: 4}
	err := svc.db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return svc.settleBackorders(context.Background(), tx, item, 4)
	})
	assert.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestSettleBackordersForceClosesStragglersOnCompletion(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newTestService(mockDB, testutil.NewMockPublisher())

	// The receipt drains the oldest backorder exactly; a stale second one
	// outlives the drain loop and is zeroed out once the line is complete.
	now := time.Now()
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM backorders").WithArgs("item-1").WillReturnRows(outstandingRows(
		[]driver.Value{"bo-1", "item-1", 2, repository.BackorderStatusOpen, nil, now.Add(-48 * time.Hour), now},
		[]driver.Value{"bo-2", "item-1", 5, repository.BackorderStatusReminded, nil, now.Add(-24 * time.Hour), now},
	))
	mockDB.ExpectExec("UPDATE backorders SET quantity = $2, status = $3").
		WithArgs("bo-1", 0, repository.BackorderStatusClosed, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE backorders SET quantity = $2, status = $3").
		WithArgs("bo-2", 0, repository.BackorderStatusClosed, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	item := &repository.PurchaseOrderItem{ID: "item-1", OrderedQty: 10, ReceivedQty: 10}
	err := svc.db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return svc.settleBackorders(context.Background(), tx, item, 2)
	})
	assert.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestSettleBackordersNothingOutstanding(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newTestService(mockDB, testutil.NewMockPublisher())

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM backorders").WithArgs("item-1").WillReturnRows(outstandingRows())
	mockDB.ExpectCommit()

	item := &repository.PurchaseOrderItem{ID: "item-1", OrderedQty: 40, ReceivedQty: 15}
	err := svc.db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return svc.settleBackorders(context.Background(), tx, item, 5)
	})
	assert.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}

func TestRecordShortfallTopsUpNewestBackorder(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newTestService(mockDB, testutil.NewMockPublisher())

	now := time.Now()
	expected := now.Add(7 * 24 * time.Hour)
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM backorders").WithArgs("item-1").WillReturnRows(outstandingRows(
		[]driver.Value{"bo-1", "item-1", 2, repository.BackorderStatusOpen, nil, now.Add(-48 * time.Hour), now},
		[]driver.Value{"bo-2", "item-1", 2, repository.BackorderStatusPartial, nil, now.Add(-24 * time.Hour), now},
	))
	mockDB.ExpectExec("UPDATE backorders SET quantity = $2, status = $3").
		WithArgs("bo-2", 5, repository.BackorderStatusPartial, testutil.AnyTime{}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	item := &repository.PurchaseOrderItem{ID: "item-1", OrderedQty: 10, ReceivedQty: 3}
	var bo *repository.Backorder
	var isNew bool
	err := svc.db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		var err error
		bo, isNew, err = svc.recordShortfall(context.Background(), tx, item, &expected)
		return err
	})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, "bo-2", bo.ID)
	assert.Equal(t, 5, bo.Quantity)

	mockDB.ExpectationsWereMet(t)
}

func TestRecordShortfallCreatesBackorder(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newTestService(mockDB, testutil.NewMockPublisher())

	now := time.Now()
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM backorders").WithArgs("item-1").WillReturnRows(outstandingRows())
	mockDB.ExpectQuery("INSERT INTO backorders").
		WithArgs(testutil.AnyUUID{}, "item-1", 7, repository.BackorderStatusOpen, nil).
		WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now, now))
	mockDB.ExpectCommit()

	item := &repository.PurchaseOrderItem{ID: "item-1", OrderedQty: 10, ReceivedQty: 3}
	var bo *repository.Backorder
	var isNew bool
	err := svc.db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		var err error
		bo, isNew, err = svc.recordShortfall(context.Background(), tx, item, nil)
		return err
	})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, 7, bo.Quantity)
	assert.Equal(t, repository.BackorderStatusOpen, bo.Status)

	mockDB.ExpectationsWereMet(t)
}

func TestRecordShortfallAlreadyCovered(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newTestService(mockDB, testutil.NewMockPublisher())

	now := time.Now()
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("FROM backorders").WithArgs("item-1").WillReturnRows(outstandingRows(
		[]driver.Value{"bo-1", "item-1", 7, repository.BackorderStatusOpen, nil, now, now},
	))
	mockDB.ExpectCommit()

	item := &repository.PurchaseOrderItem{ID: "item-1", OrderedQty: 10, ReceivedQty: 3}
	var bo *repository.Backorder
	var isNew bool
	err := svc.db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		var err error
		bo, isNew, err = svc.recordShortfall(context.Background(), tx, item, nil)
		return err
	})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, "bo-1", bo.ID)

	mockDB.ExpectationsWereMet(t)
}

func TestRecordShortfallNoneWhenFullyReceived(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()
	svc := newTestService(mockDB, testutil.NewMockPublisher())

	mockDB.ExpectBegin()
	mockDB.ExpectCommit()

	item := &repository.PurchaseOrderItem{ID: "item-1", OrderedQty: 10, ReceivedQty: 10}
	err := svc.db.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		bo, isNew, err := svc.recordShortfall(context.Background(), tx, item, nil)
		assert.Nil(t, bo)
		assert.False(t, isNew)
		return err
	})
	assert.NoError(t, err)

	mockDB.ExpectationsWereMet(t)
}
