// ABOUTME: Error-to-HTTP mapping shared by all handlers
// ABOUTME: Translates apperr taxonomy codes into status codes and JSON bodies

package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/2389/agent-mesh/internal/apperr"
)

// errorBody is the JSON shape of every failure response.
type errorBody struct {
	Error string      `json:"error"`
	Code  apperr.Code `json:"code"`
}

var statusByCode = map[apperr.Code]int{
	apperr.CodeValidation:   http.StatusBadRequest,
	apperr.CodeNotFound:     http.StatusNotFound,
	apperr.CodeConflict:     http.StatusConflict,
	apperr.CodeForbidden:    http.StatusForbidden,
	apperr.CodeUnauthorized: http.StatusUnauthorized,
	apperr.CodeInternal:     http.StatusInternalServerError,
}

// fail writes the HTTP response for a service error. Internal errors are
// logged with their cause but reported opaquely to the caller.
func (h *Handler) fail(c echo.Context, err error) error {
	code := apperr.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := "internal error"
	var appErr *apperr.Error
	if code != apperr.CodeInternal && errors.As(err, &appErr) {
		message = appErr.Message
	} else {
		h.logger.Error("request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"error", err)
	}

	return c.JSON(status, errorBody{Error: message, Code: code})
}

// badRequest rejects a request that never reached a service.
func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: message, Code: apperr.CodeValidation})
}
