package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ricemill/ricemill-backend/internal/sales/repository"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
	"github.com/ricemill/ricemill-backend/pkg/logger"
	"github.com/ricemill/ricemill-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(mockDB *testutil.MockDB) *SalesService {
	log := logger.New("sales-test", "development")
	db := database.FromSqlx(mockDB.DB, log)
	return NewSalesService(
		db,
		nil,
		repository.NewOrderRepository(db),
		repository.NewDeliveryRepository(db),
		nil,
		nil,
		log,
	)
}

func deliveryRows() *sqlmock.Rows {
	return testutil.MockRows("id", "order_id", "shipment_status", "fulfillment_status",
		"fulfilled_at", "note", "created_at", "updated_at")
}

func deliveryItemRows() *sqlmock.Rows {
	return testutil.MockRows("id", "delivery_id", "order_item_id", "product_id", "quantity", "created_at")
}

func TestFoldOrderStatus(t *testing.T) {
	now := time.Now()

	t.Run("completed when every line fully fulfilled", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		svc := newTestService(mockDB)

		o := &repository.Order{
			ID: "order-1",
			Items: []*repository.OrderItem{
				{Quantity: 10, QuantityFulfilled: 10, QuantityPending: 0},
				{Quantity: 5, QuantityFulfilled: 5, QuantityPending: 0},
			},
		}

		status, err := svc.foldOrderStatus(context.Background(), mockDB.DB, o)
		require.NoError(t, err)
		assert.Equal(t, repository.OrderStatusCompleted, status)

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("partial when a delivery is fulfilled but lines remain", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		svc := newTestService(mockDB)

		mockDB.ExpectQuery("FROM deliveries").
			WithArgs("order-1").
			WillReturnRows(deliveryRows().
				AddRow("del-1", "order-1", repository.ShipmentDelivered, repository.FulfillmentFulfilled, now, nil, now, now).
				AddRow("del-2", "order-1", repository.ShipmentProcessing, repository.FulfillmentPending, nil, nil, now, now))

		o := &repository.Order{
			ID: "order-1",
			Items: []*repository.OrderItem{
				{Quantity: 10, QuantityFulfilled: 4, QuantityPending: 6},
			},
		}

		status, err := svc.foldOrderStatus(context.Background(), mockDB.DB, o)
		require.NoError(t, err)
		assert.Equal(t, repository.OrderStatusPartial, status)

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("processing when nothing fulfilled yet", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		svc := newTestService(mockDB)

		mockDB.ExpectQuery("FROM deliveries").
			WithArgs("order-1").
			WillReturnRows(deliveryRows().
				AddRow("del-1", "order-1", repository.ShipmentInTransit, repository.FulfillmentPending, nil, nil, now, now))

		o := &repository.Order{
			ID: "order-1",
			Items: []*repository.OrderItem{
				{Quantity: 10, QuantityFulfilled: 0, QuantityPending: 10},
			},
		}

		status, err := svc.foldOrderStatus(context.Background(), mockDB.DB, o)
		require.NoError(t, err)
		assert.Equal(t, repository.OrderStatusProcessing, status)

		mockDB.ExpectationsWereMet(t)
	})
}

func TestUpdateShipmentStatusForwardOnly(t *testing.T) {
	now := time.Now()

	t.Run("advancing is allowed", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		svc := newTestService(mockDB)

		mockDB.ExpectQuery("FROM deliveries WHERE id = $1").
			WithArgs("del-1").
			WillReturnRows(deliveryRows().
				AddRow("del-1", "order-1", repository.ShipmentProcessing, repository.FulfillmentPending, nil, nil, now, now))
		mockDB.ExpectQuery("FROM delivery_items").
			WithArgs("del-1").
			WillReturnRows(deliveryItemRows())
		mockDB.ExpectExec("UPDATE deliveries SET shipment_status = $2").
			WithArgs("del-1", repository.ShipmentInTransit).
			WillReturnResult(sqlmock.NewResult(0, 1))

		d, err := svc.UpdateShipmentStatus(context.Background(), "del-1", repository.ShipmentInTransit)
		require.NoError(t, err)
		assert.Equal(t, repository.ShipmentInTransit, d.ShipmentStatus)

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("moving backwards is rejected", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		svc := newTestService(mockDB)

		mockDB.ExpectQuery("FROM deliveries WHERE id = $1").
			WithArgs("del-1").
			WillReturnRows(deliveryRows().
				AddRow("del-1", "order-1", repository.ShipmentDelivered, repository.FulfillmentPending, nil, nil, now, now))
		mockDB.ExpectQuery("FROM delivery_items").
			WithArgs("del-1").
			WillReturnRows(deliveryItemRows())

		_, err := svc.UpdateShipmentStatus(context.Background(), "del-1", repository.ShipmentInTransit)
		assert.True(t, errors.Is(err, errors.ErrConflict))

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("unknown status is rejected before any lookup", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		svc := newTestService(mockDB)

		_, err := svc.UpdateShipmentStatus(context.Background(), "del-1", "Returned")
		assert.True(t, errors.Is(err, errors.ErrBadRequest))

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("repeating the current status is rejected", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		svc := newTestService(mockDB)

		mockDB.ExpectQuery("FROM deliveries WHERE id = $1").
			WithArgs("del-1").
			WillReturnRows(deliveryRows().
				AddRow("del-1", "order-1", repository.ShipmentInTransit, repository.FulfillmentPending, nil, nil, now, now))
		mockDB.ExpectQuery("FROM delivery_items").
			WithArgs("del-1").
			WillReturnRows(deliveryItemRows())

		_, err := svc.UpdateShipmentStatus(context.Background(), "del-1", repository.ShipmentInTransit)
		assert.True(t, errors.Is(err, errors.ErrConflict))

		mockDB.ExpectationsWereMet(t)
	})
}
