package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hotline_backend/internal/events"

	"github.com/gin-gonic/gin"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestHandleCountsIncidentEvents(t *testing.T) {
	m := New()
	ctx := context.Background()
	duration := 42

	_ = m.Handle(ctx, events.IncidentActivated{Tier: "Gold", CallPlaced: true, Persisted: true})
	_ = m.Handle(ctx, events.IncidentActivated{Tier: "Gold", CallPlaced: true, Persisted: true})
	_ = m.Handle(ctx, events.IncidentResolved{Status: "resolved", Reason: "completed", DurationSeconds: &duration})
	_ = m.Handle(ctx, events.CallbackOrphaned{CallSid: "CAunknown"})

	if got := counterValue(t, m, "hotline_activations_total", map[string]string{"tier": "Gold"}); got != 2 {
		t.Fatalf("expected 2 activations, got %v", got)
	}
	if got := counterValue(t, m, "hotline_incidents_resolved_total", map[string]string{"status": "resolved"}); got != 1 {
		t.Fatalf("expected 1 resolution, got %v", got)
	}
	if got := counterValue(t, m, "hotline_callbacks_orphaned_total", nil); got != 1 {
		t.Fatalf("expected 1 orphan, got %v", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(Handler(m.Registry())))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `hotline_http_request_duration_seconds_count{method="GET",route="/api/health",status="200"} 1`) {
		t.Fatalf("expected request latency series, got:\n%s", w.Body.String())
	}
}
