package service

import (
	"context"
	"testing"
	"time"

	"github.com/ricemill/ricemill-backend/internal/catalog/repository"
	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
	"github.com/ricemill/ricemill-backend/pkg/logger"
	"github.com/ricemill/ricemill-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(mockDB *testutil.MockDB) *CatalogService {
	log := logger.New("catalog-test", "development")
	db := database.FromSqlx(mockDB.DB, log)
	return NewCatalogService(
		repository.NewProductRepository(db),
		repository.NewLocationRepository(db),
		log,
	)
}

func TestValidateYieldRate(t *testing.T) {
	rate := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}

	assert.NoError(t, validateYieldRate(nil))
	assert.NoError(t, validateYieldRate(rate("66.67")))
	assert.NoError(t, validateYieldRate(rate("100")))
	assert.Error(t, validateYieldRate(rate("0")))
	assert.Error(t, validateYieldRate(rate("-5")))
	assert.Error(t, validateYieldRate(rate("100.01")))
}

func TestCreateLocationHierarchy(t *testing.T) {
	now := time.Now()
	parentID := "parent-1"

	t.Run("warehouse must not have a parent", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		svc := newTestService(mockDB)

		err := svc.CreateLocation(context.Background(), &repository.Location{
			Name:     "Main Warehouse",
			Code:     "WH-01",
			Type:     repository.LocationTypeWarehouse,
			ParentID: &parentID,
		})
		assert.True(t, errors.Is(err, errors.ErrBadRequest))

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("zone requires a parent", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		svc := newTestService(mockDB)

		err := svc.CreateLocation(context.Background(), &repository.Location{
			Name: "Zone A",
			Code: "ZA",
			Type: repository.LocationTypeZone,
		})
		assert.True(t, errors.Is(err, errors.ErrBadRequest))

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("bin under a zone is rejected", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		svc := newTestService(mockDB)

		mockDB.ExpectQuery("FROM locations WHERE id = $1").
			WithArgs(parentID).
			WillReturnRows(testutil.MockRows("id", "name", "code", "type", "parent_id", "capacity", "is_active", "created_at", "updated_at").
				AddRow(parentID, "Zone A", "ZA", repository.LocationTypeZone, "wh-1", nil, true, now, now))

		err := svc.CreateLocation(context.Background(), &repository.Location{
			Name:     "Bin 1",
			Code:     "B1",
			Type:     repository.LocationTypeBin,
			ParentID: &parentID,
		})
		assert.True(t, errors.Is(err, errors.ErrBadRequest))

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("inactive parent is rejected", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		svc := newTestService(mockDB)

		mockDB.ExpectQuery("FROM locations WHERE id = $1").
			WithArgs(parentID).
			WillReturnRows(testutil.MockRows("id", "name", "code", "type", "parent_id", "capacity", "is_active", "created_at", "updated_at").
				AddRow(parentID, "Main Warehouse", "WH-01", repository.LocationTypeWarehouse, nil, nil, false, now, now))

		err := svc.CreateLocation(context.Background(), &repository.Location{
			Name:     "Zone A",
			Code:     "ZA",
			Type:     repository.LocationTypeZone,
			ParentID: &parentID,
		})
		assert.True(t, errors.Is(err, errors.ErrBadRequest))

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("zone under an active warehouse is created", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		svc := newTestService(mockDB)

		mockDB.ExpectQuery("FROM locations WHERE id = $1").
			WithArgs(parentID).
			WillReturnRows(testutil.MockRows("id", "name", "code", "type", "parent_id", "capacity", "is_active", "created_at", "updated_at").
				AddRow(parentID, "Main Warehouse", "WH-01", repository.LocationTypeWarehouse, nil, nil, true, now, now))
		mockDB.ExpectQuery("INSERT INTO locations").
			WillReturnRows(testutil.MockRows("created_at", "updated_at").AddRow(now, now))

		loc := &repository.Location{
			Name:     "Zone A",
			Code:     "ZA",
			Type:     repository.LocationTypeZone,
			ParentID: &parentID,
		}
		err := svc.CreateLocation(context.Background(), loc)
		require.NoError(t, err)
		assert.True(t, loc.IsActive)

		mockDB.ExpectationsWereMet(t)
	})
}
