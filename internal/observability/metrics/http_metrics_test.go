package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGinMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{ServiceName: "payoutd"})

	router := gin.New()
	router.Use(GinMiddleware(m))
	router.GET("/admin/v1/payouts/:id", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/payouts/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/admin/v1/payouts/:id", "404"))
	if got != 1 {
		t.Fatalf("expected 1 request recorded, got %v", got)
	}
	if inflight := testutil.ToFloat64(m.inFlight); inflight != 0 {
		t.Fatalf("expected no in-flight requests, got %v", inflight)
	}
}
