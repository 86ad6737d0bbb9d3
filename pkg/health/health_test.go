package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestCheckReportsFailingProbe(t *testing.T) {
	h := New(
		Pinger{Name: "database", Ping: func(context.Context) error { return nil }},
		Pinger{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }},
	)

	out := h.Check(context.Background())
	require.Equal(t, StatusUnhealthy, out.Status)
	require.Len(t, out.Deps, 2)
	require.Equal(t, StatusHealthy, out.Deps[0].Status)
	require.Equal(t, "connection refused", out.Deps[1].Message)
}

func TestReadinessStatusCode(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/ok", New().Readiness)
	r.GET("/bad", New(Pinger{Name: "db", Ping: func(context.Context) error { return errors.New("down") }}).Readiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
