package errors

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorConstructors(t *testing.T) {
	err := NotFound("product")
	assert.Equal(t, http.StatusNotFound, err.StatusCode)
	assert.Equal(t, "product not found", err.Message)
	assert.True(t, Is(err, ErrNotFound))

	err = Conflict("order already cancelled")
	assert.Equal(t, http.StatusConflict, err.StatusCode)
	assert.True(t, Is(err, ErrConflict))

	err = Validation(map[string]string{"quantity": "must be positive"})
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "must be positive", err.Details["quantity"])
	assert.True(t, Is(err, ErrValidation))
}

func TestInsufficientStockDetails(t *testing.T) {
	err := InsufficientStock("Jasmine Paddy", 50, 20)

	assert.Equal(t, http.StatusConflict, err.StatusCode)
	assert.True(t, Is(err, ErrInsufficientStock))
	assert.Equal(t, "Jasmine Paddy", err.Details["product"])
	assert.Equal(t, "50", err.Details["requested"])
	assert.Equal(t, "20", err.Details["available"])
	assert.Contains(t, err.Error(), "requested 50, available 20")
}

func TestAsUnwrapsAppError(t *testing.T) {
	var appErr *AppError
	require.True(t, As(NotFound("supplier"), &appErr))
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}
