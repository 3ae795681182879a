package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/ecpay"
	"github.com/ONE-PIECE-KING/SD-learning-platform/internal/services"
)

// APIErrorHandler maps service errors onto JSON HTTP responses. The
// signature-invalid and not-found cases deliberately carry no detail about
// what exists and what failed.
func APIErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "internal server error"

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		if msg, ok := he.Message.(string); ok && msg != "" {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	case errors.Is(err, services.ErrValidation):
		code = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, services.ErrNotFound):
		code = http.StatusNotFound
		message = "not found"
	case errors.Is(err, services.ErrInvalidState):
		code = http.StatusConflict
		message = err.Error()
	case errors.Is(err, services.ErrSignatureInvalid):
		code = http.StatusBadRequest
		message = "signature verification failed"
	case errors.Is(err, ecpay.ErrGatewayUnavailable):
		code = http.StatusBadGateway
		message = "payment gateway unavailable"
	case errors.Is(err, services.ErrDuplicateOrderNo):
		code = http.StatusConflict
		message = err.Error()
	}

	if code >= http.StatusInternalServerError {
		c.Logger().Error(err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"error": message})
}
