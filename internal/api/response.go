package api

import (
	"errors"
	"fmt"
	"net/http"

	"commerce-service/internal/service"
	"commerce-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Envelope is the uniform response body. Status always equals the HTTP
// status code of the response.
type Envelope struct {
	Success bool        `json:"success"`
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Errors  interface{} `json:"errors"`
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Envelope{
		Success: true,
		Status:  status,
		Message: message,
		Data:    data,
	})
}

func respondError(c *gin.Context, status int, message string, errs interface{}) {
	c.JSON(status, Envelope{
		Success: false,
		Status:  status,
		Message: message,
		Errors:  errs,
	})
}

// respondBindingError turns gin binding failures into field-level messages
func respondBindingError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fmt.Sprintf("failed on the %q rule", fe.Tag())
		}
		respondError(c, http.StatusUnprocessableEntity, "validation failed", fields)
		return
	}
	respondError(c, http.StatusBadRequest, "invalid request body", err.Error())
}

// respondServiceError maps service and store failures onto the envelope. The
// human-readable summary goes in message; raw internals only ever appear in
// the errors field.
func respondServiceError(c *gin.Context, err error) {
	var stockErr *service.InsufficientStockError
	var productErr *service.UnknownProductError

	switch {
	case errors.As(err, &stockErr):
		respondError(c, http.StatusBadRequest, stockErr.Error(), gin.H{
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		})
	case errors.As(err, &productErr):
		respondError(c, http.StatusBadRequest, productErr.Error(), nil)
	case errors.Is(err, service.ErrPaidExceedsAmount),
		errors.Is(err, service.ErrInvalidPaidAmount),
		errors.Is(err, service.ErrInvalidStatus):
		respondError(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, err.Error(), nil)
	default:
		if summary, ok := store.DuplicateEntrySummary(err); ok {
			respondError(c, http.StatusInternalServerError, summary, err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to process request", err.Error())
	}
}
