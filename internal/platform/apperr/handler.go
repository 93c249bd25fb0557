package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the failure envelope written for every error response.
type Body struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HTTPErrorHandler returns an echo.HTTPErrorHandler that renders errors as
// Body. When expose is false, the text of INTERNAL errors is replaced by a
// generic message; the full error is always logged.
func HTTPErrorHandler(logger zerolog.Logger, expose bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := Render(err, expose)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, Body{Success: false, Message: msg})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

// Render maps err to a status code and client-facing message.
func Render(err error, expose bool) (int, string) {
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Kind == KindInternal {
			if expose {
				return ae.Kind.Status(), ae.Error()
			}
			return ae.Kind.Status(), "internal server error"
		}
		return ae.Kind.Status(), ae.Message
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		switch m := he.Message.(type) {
		case string:
			msg = m
		case error:
			msg = m.Error()
		case nil:
		default:
			msg = fmt.Sprintf("%v", m)
		}
		if he.Code >= http.StatusInternalServerError && !expose {
			msg = "internal server error"
		}
		return he.Code, msg
	}

	if expose {
		return http.StatusInternalServerError, err.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}
