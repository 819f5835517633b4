package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New("test")
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/properties/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/properties/abc", nil))
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/properties/:id", "204"))
	if got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
}

func TestObserveAnalysisCountsCredits(t *testing.T) {
	m := New("test")
	m.ObserveAnalysis(OutcomeSuccess)
	m.ObserveAnalysis(OutcomeNoCredits)
	m.ObserveAnalysis(OutcomeSuccess)

	if got := testutil.ToFloat64(m.analyses.WithLabelValues(OutcomeSuccess)); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.creditsConsumed); got != 2 {
		t.Fatalf("expected 2 credits consumed, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("test")
	m.ObserveTopUp(20)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "test_credits_added_total 20") {
		t.Fatalf("expected credits metric in output")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAnalysis(OutcomeSuccess)
	m.ObserveUpload("text/csv")
	m.ObserveGeocode("ok")
	m.ObserveTopUp(1)
}
