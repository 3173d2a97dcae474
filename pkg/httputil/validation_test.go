package httputil

import (
	"testing"

	"github.com/ricemill/ricemill-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	type adjustRequest struct {
		ProductID      string `validate:"required,uuid"`
		AdjustmentType string `validate:"required,oneof=ADD REMOVE SET"`
		Quantity       int    `validate:"gte=0"`
	}

	valid := adjustRequest{
		ProductID:      "a81bc81b-dead-4e5d-abff-90865d1e13b1",
		AdjustmentType: "SET",
		Quantity:       10,
	}
	assert.NoError(t, Validate(valid))

	invalid := adjustRequest{
		ProductID:      "not-a-uuid",
		AdjustmentType: "RESET",
		Quantity:       -1,
	}
	err := Validate(invalid)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "must be a valid UUID", appErr.Details["ProductID"])
	assert.Equal(t, "must be one of: ADD REMOVE SET", appErr.Details["AdjustmentType"])
	assert.Equal(t, "must be at least 0", appErr.Details["Quantity"])
}
