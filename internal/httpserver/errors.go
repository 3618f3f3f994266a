package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-core/internal/domain"
	"storefront-core/internal/service/anonymous"
	"storefront-core/internal/service/checkout"
	"storefront-core/internal/service/customer"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// respondError maps service errors onto status codes. Order matters: a failed
// submission wraps the underlying network error.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status, body := classify(err)
	c.JSON(status, body)
}

func classify(err error) (int, errorBody) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorBody{Error: verr.Error(), Code: "validation_error", Field: verr.Field}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Code: "validation_error"}
	case errors.Is(err, anonymous.ErrInvalidToken), errors.Is(err, customer.ErrInvalidToken):
		return http.StatusUnauthorized, errorBody{Error: "invalid or expired token", Code: "invalid_token"}
	case errors.Is(err, domain.ErrAuthRequired):
		return http.StatusUnauthorized, errorBody{Error: "please sign in to continue", Code: "auth_required"}
	case errors.Is(err, domain.ErrAlreadyInCart):
		return http.StatusConflict, errorBody{Error: "product is already in the cart", Code: "already_in_cart"}
	case errors.Is(err, domain.ErrOutOfBounds):
		return http.StatusUnprocessableEntity, errorBody{Error: "quantity is not available", Code: "out_of_bounds"}
	case errors.Is(err, domain.ErrPromoInvalid):
		return http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "promo_invalid"}
	case errors.Is(err, checkout.ErrIllegalTransition):
		return http.StatusConflict, errorBody{Error: err.Error(), Code: "illegal_transition"}
	case errors.Is(err, checkout.ErrSubmitFailed):
		return http.StatusBadGateway, errorBody{Error: checkout.ErrSubmitFailed.Error(), Code: "submit_failed"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found", Code: "not_found"}
	case errors.Is(err, domain.ErrNetworkFailure):
		return http.StatusServiceUnavailable, errorBody{Error: "service temporarily unavailable, please retry", Code: "network_failure"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"}
	}
}
