package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/koios/trmnl-renderer/pkg/models"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// APIError is the JSON body returned for failed requests
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

var (
	errDeviceNotFound   = &APIError{Status: http.StatusNotFound, Message: "Device is not registered."}
	errDeviceNotAllowed = &APIError{Status: http.StatusUnauthorized, Message: "Device is not authorized."}
)

// toAPIError maps pipeline errors onto HTTP responses. Device lookup and
// authorization failures are reported verbatim; anything else is a failed
// render cycle.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, models.ErrNotAuthorized):
		return errDeviceNotAllowed
	case errors.Is(err, models.ErrDeviceNotFound):
		return errDeviceNotFound
	case errors.Is(err, models.ErrReferenceImageMissing):
		return &APIError{Status: http.StatusInternalServerError, Message: "Screen image is missing."}
	default:
		return &APIError{Status: http.StatusInternalServerError, Message: "Screen could not be rendered."}
	}
}

// ErrorHandler renders handler errors as JSON. Usage: e.HTTPErrorHandler = ErrorHandler(logger)
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var httpErr *echo.HTTPError
		var apiErr *APIError
		if errors.As(err, &httpErr) {
			apiErr = &APIError{Status: httpErr.Code, Message: fmt.Sprintf("%v", httpErr.Message)}
		} else {
			apiErr = toAPIError(err)
		}

		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error("Request failed",
				zap.String("path", c.Request().URL.Path),
				zap.Error(err))
		}

		if err := c.JSON(apiErr.Status, apiErr); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
	}
}
