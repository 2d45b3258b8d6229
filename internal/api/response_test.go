package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"commerce-service/internal/service"
	"commerce-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordServiceError(t *testing.T, err error) (int, Envelope) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	respondServiceError(c, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestRespondServiceErrorInsufficientStock(t *testing.T) {
	code, env := recordServiceError(t, &service.InsufficientStockError{
		ProductID: 7, Name: "Widget", Available: 1, Requested: 5,
	})

	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.Equal(t, code, env.Status)
	assert.Equal(t, "insufficient quantity for product Widget", env.Message)

	details, ok := env.Errors.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 7, details["product_id"])
	assert.EqualValues(t, 1, details["available"])
	assert.EqualValues(t, 5, details["requested"])
}

func TestRespondServiceErrorUnknownProduct(t *testing.T) {
	code, env := recordServiceError(t, &service.UnknownProductError{ProductID: 99})

	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.Equal(t, code, env.Status)
}

func TestRespondServiceErrorDomainRules(t *testing.T) {
	for _, err := range []error{
		service.ErrPaidExceedsAmount,
		service.ErrInvalidPaidAmount,
		service.ErrInvalidStatus,
	} {
		code, env := recordServiceError(t, err)
		assert.Equal(t, http.StatusBadRequest, code, "error %v", err)
		assert.Equal(t, err.Error(), env.Message)
	}
}

func TestRespondServiceErrorNotFound(t *testing.T) {
	code, env := recordServiceError(t, fmt.Errorf("order 99: %w", store.ErrNotFound))

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, code, env.Status)
	assert.Equal(t, "order 99: not found", env.Message)
}

func TestRespondServiceErrorDuplicateEntrySanitized(t *testing.T) {
	dup := &pq.Error{Code: "23505", Constraint: "orders_invoice_code_key"}
	code, env := recordServiceError(t, fmt.Errorf("failed to create order: %w", dup))

	assert.Equal(t, http.StatusInternalServerError, code)
	// The constraint name is surfaced; the raw driver error stays in errors.
	assert.Equal(t, "duplicate entry for orders_invoice_code_key", env.Message)
	assert.NotNil(t, env.Errors)
}

func TestRespondServiceErrorUnknownFailure(t *testing.T) {
	code, env := recordServiceError(t, fmt.Errorf("connection reset"))

	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "failed to process request", env.Message)
	assert.Equal(t, "connection reset", env.Errors)
}

func TestRespondEnvelopeStatusMatchesHTTPStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	respond(c, http.StatusCreated, "order placed", gin.H{"id": 1})

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, rec.Code, env.Status)
	assert.True(t, env.Success)
	assert.NotNil(t, env.Data)
}
