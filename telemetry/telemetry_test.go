package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/eringen/pubapi/apperr"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{TracingEnabled: true}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	shutdown, err = Setup(context.Background(), Config{OTLPEndpoint: "http://localhost:4318"}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestMetricsMiddlewareCountsByRoute(t *testing.T) {
	m := NewMetrics()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/blogs/:slug", func(c echo.Context) error {
		if c.Param("slug") == "missing" {
			return echo.NewHTTPError(http.StatusNotFound)
		}
		return c.String(http.StatusOK, "ok")
	})

	for _, path := range []string{"/api/blogs/a", "/api/blogs/b", "/api/blogs/missing"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `pubapi_http_requests_total{method="GET",route="/api/blogs/:slug",status="200"} 2`), body)
	assert.True(t, strings.Contains(body, `pubapi_http_requests_total{method="GET",route="/api/blogs/:slug",status="404"} 1`), body)
	assert.True(t, strings.Contains(body, "pubapi_http_request_duration_seconds_bucket"))
}

func TestTracingSetsRequestSpan(t *testing.T) {
	e := echo.New()
	e.Use(Tracing())
	var sawSpan bool
	e.GET("/api/health", func(c echo.Context) error {
		sawSpan = trace.SpanFromContext(c.Request().Context()) != nil
		return c.NoContent(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, sawSpan)
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func statusAttr(span sdktrace.ReadOnlySpan) int64 {
	for _, kv := range span.Attributes() {
		if kv.Key == attribute.Key("http.response.status_code") {
			return kv.Value.AsInt64()
		}
	}
	return 0
}

func TestTracingRecordsWrittenErrorStatus(t *testing.T) {
	sr := recordSpans(t)

	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		switch {
		case apperr.Is(err, apperr.KindNotFound):
			code = http.StatusNotFound
		case apperr.Is(err, apperr.KindValidation):
			code = http.StatusBadRequest
		}
		_ = c.NoContent(code)
	}
	e.Use(Tracing())
	// Writes the error response before Tracing sees the error.
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			return err
		}
	})
	e.GET("/api/blogs/:slug", func(c echo.Context) error {
		return apperr.NotFound("blog not found")
	})
	e.POST("/api/contact", func(c echo.Context) error {
		return apperr.Validation("invalid email address")
	})
	e.GET("/api/boom", func(c echo.Context) error {
		return errors.New("boom")
	})

	tests := []struct {
		method    string
		path      string
		wantSpan  string
		wantCode  int
		wantError bool
	}{
		{http.MethodGet, "/api/blogs/missing", "GET /api/blogs/:slug", http.StatusNotFound, false},
		{http.MethodPost, "/api/contact", "POST /api/contact", http.StatusBadRequest, false},
		{http.MethodGet, "/api/boom", "GET /api/boom", http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		require.Equal(t, tt.wantCode, rec.Code, tt.path)
	}

	spans := sr.Ended()
	require.Len(t, spans, len(tests))
	for i, tt := range tests {
		span := spans[i]
		assert.Equal(t, tt.wantSpan, span.Name())
		assert.Equal(t, int64(tt.wantCode), statusAttr(span), tt.path)
		if tt.wantError {
			assert.Equal(t, codes.Error, span.Status().Code, tt.path)
		} else {
			assert.NotEqual(t, codes.Error, span.Status().Code, tt.path)
		}
	}
}

func TestTracingUnwrittenErrorStatus(t *testing.T) {
	sr := recordSpans(t)

	e := echo.New()
	mw := Tracing()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/x", nil), httptest.NewRecorder())

	_ = mw(func(echo.Context) error { return echo.NewHTTPError(http.StatusTooManyRequests) })(c)
	_ = mw(func(echo.Context) error { return apperr.NotFound("gone") })(c)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, int64(http.StatusTooManyRequests), statusAttr(spans[0]))
	assert.Equal(t, int64(http.StatusInternalServerError), statusAttr(spans[1]))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
