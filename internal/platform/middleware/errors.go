package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medimart/medimart/internal/platform/apperr"
)

// ErrorHandler writes every error as the apperr.Result envelope.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := resultFor(err)
		if status >= 500 {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Int("status", status).Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func resultFor(err error) (int, apperr.Result) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return apperr.HTTPStatus(ae.Kind), apperr.Fail(err)
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		} else if he.Message != nil {
			msg = fmt.Sprintf("%v", he.Message)
		}
		return he.Code, apperr.Result{Message: msg, Kind: kindForStatus(he.Code)}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, apperr.Result{Message: "request processing exceeded the allowed time limit"}
	}

	return http.StatusInternalServerError, apperr.Result{Message: "internal server error"}
}

func kindForStatus(code int) apperr.Kind {
	switch code {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return apperr.KindValidation
	case http.StatusNotFound:
		return apperr.KindNotFound
	case http.StatusConflict:
		return apperr.KindConflict
	case http.StatusForbidden:
		return apperr.KindForbidden
	default:
		return ""
	}
}
