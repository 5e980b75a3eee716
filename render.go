package pubapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pubapi/apperr"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Respond writes a success envelope carrying data.
func Respond(c echo.Context, code int, data any) error {
	return c.JSON(code, Envelope{Success: true, Data: data})
}

// RespondMessage writes a success envelope with only a message.
func RespondMessage(c echo.Context, code int, msg string) error {
	return c.JSON(code, Envelope{Success: true, Message: msg})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation, apperr.KindConflict:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// httpErrorHandler turns every error into a failure envelope. Store and
// unclassified errors are logged and answered with a generic message.
func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := apperr.PublicMessage(nil)

	var ae *apperr.Error
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		msg = http.StatusText(code)
		if m, ok := he.Message.(string); ok && m != "" && code < http.StatusInternalServerError {
			msg = m
		}
	case errors.As(err, &ae):
		code = StatusFor(ae.Kind)
		msg = apperr.PublicMessage(err)
	}

	if code >= http.StatusInternalServerError {
		a.Logger.ErrorContext(c.Request().Context(), "request failed",
			"error", err,
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)
	}

	env := Envelope{Success: false, Message: msg}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, env)
	}
	if err != nil {
		a.Logger.Error("write error response", "error", err)
	}
}
