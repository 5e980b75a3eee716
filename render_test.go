package pubapi

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/eringen/pubapi/apperr"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(apperr.KindValidation))
	assert.Equal(t, http.StatusBadRequest, StatusFor(apperr.KindConflict))
	assert.Equal(t, http.StatusNotFound, StatusFor(apperr.KindNotFound))
	assert.Equal(t, http.StatusForbidden, StatusFor(apperr.KindForbidden))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(apperr.KindStore))
}

func TestHTTPErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		err      error
		wantCode int
		wantBody string
		wantLog  bool
	}{
		{"validation", http.MethodGet, apperr.Validation("title is required"), 400,
			`{"success":false,"message":"title is required"}`, false},
		{"not found", http.MethodGet, apperr.NotFound("blog not found"), 404,
			`{"success":false,"message":"blog not found"}`, false},
		{"store error hidden", http.MethodGet, apperr.Store("list blogs", errors.New("disk I/O error")), 500,
			`{"success":false,"message":"internal server error"}`, true},
		{"plain error hidden", http.MethodGet, errors.New("boom"), 500,
			`{"success":false,"message":"internal server error"}`, true},
		{"echo error keeps message", http.MethodGet, echo.NewHTTPError(http.StatusTooManyRequests, "slow down"), 429,
			`{"success":false,"message":"slow down"}`, false},
		{"unknown route", http.MethodGet, echo.ErrNotFound, 404,
			`{"success":false,"message":"Not Found"}`, false},
		{"timeout wins over cause", http.MethodGet,
			echo.NewHTTPError(http.StatusServiceUnavailable, "x").SetInternal(apperr.Store("q", errors.New("ctx"))), 503,
			`{"success":false,"message":"Service Unavailable"}`, true},
		{"head has no body", http.MethodHead, apperr.NotFound("blog not found"), 404, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			a := &App{Echo: echo.New(), Logger: slog.New(slog.NewTextHandler(&logs, nil))}

			req := httptest.NewRequest(tt.method, "/x", nil)
			rec := httptest.NewRecorder()
			a.httpErrorHandler(tt.err, a.Echo.NewContext(req, rec))

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody == "" {
				assert.Empty(t, rec.Body.String())
			} else {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
			assert.Equal(t, tt.wantLog, logs.Len() > 0)
		})
	}
}
