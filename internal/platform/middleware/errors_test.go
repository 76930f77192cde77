package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medimart/medimart/internal/platform/apperr"
)

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind apperr.Kind
		wantMsg  string
	}{
		{"conflict", apperr.Conflict("order is completed"), http.StatusConflict, apperr.KindConflict, "order is completed"},
		{"wrapped not found", fmt.Errorf("get: %w", apperr.NotFound("order not found")), http.StatusNotFound, apperr.KindNotFound, "order not found"},
		{"upstream", apperr.Upstream(errors.New("502"), "render invoice"), http.StatusBadGateway, apperr.KindUpstream, "render invoice"},
		{"echo bad request", echo.NewHTTPError(http.StatusBadRequest, "invalid order id"), http.StatusBadRequest, apperr.KindValidation, "invalid order id"},
		{"echo unauthorized", echo.NewHTTPError(http.StatusUnauthorized, "missing token"), http.StatusUnauthorized, "", "missing token"},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "", "request processing exceeded the allowed time limit"},
		{"untyped", errors.New("nil map"), http.StatusInternalServerError, "", "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			ErrorHandler(zerolog.Nop())(tt.err, c)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var body apperr.Result
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success {
				t.Error("expected success=false")
			}
			if body.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", body.Kind, tt.wantKind)
			}
			if body.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", body.Message, tt.wantMsg)
			}
		})
	}
}

func TestErrorHandler_SkipsCommitted(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = c.String(http.StatusOK, "partial")

	ErrorHandler(zerolog.Nop())(apperr.Conflict("late"), c)

	if rec.Code != http.StatusOK || rec.Body.String() != "partial" {
		t.Errorf("committed response was modified: %d %q", rec.Code, rec.Body.String())
	}
}
