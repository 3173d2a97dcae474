package service

import (
	"context"
	"testing"

	"github.com/ricemill/ricemill-backend/pkg/database"
	"github.com/ricemill/ricemill-backend/pkg/errors"
	"github.com/ricemill/ricemill-backend/pkg/logger"
	"github.com/ricemill/ricemill-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestYield(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
		rate     string
		want     int
	}{
		{"typical paddy rate floors", 100, "66.67", 66},
		{"large batch floors", 1000, "66.67", 666},
		{"single unit below one output", 1, "66.67", 0},
		{"full yield", 100, "100", 100},
		{"exact half", 3, "50", 1},
		{"zero input", 0, "66.67", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate := decimal.RequireFromString(tt.rate)
			assert.Equal(t, tt.want, Yield(tt.quantity, rate))
		})
	}
}

func TestMillRejectsNonPositiveQuantity(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	log := logger.New("milling-test", "development")
	db := database.FromSqlx(mockDB.DB, log)
	svc := NewMillingService(db, nil, nil, testutil.NewMockPublisher(), log)

	_, err := svc.Mill(context.Background(), "prod-1", "loc-a", "loc-b", 0, "admin-1")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = svc.Mill(context.Background(), "prod-1", "loc-a", "loc-b", -5, "admin-1")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	mockDB.ExpectationsWereMet(t)
}
