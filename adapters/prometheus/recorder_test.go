package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_CountersAndHistograms(t *testing.T) {
	recorder := NewRecorder(WithNamespace("order_notify"))
	ctx := context.Background()

	recorder.IncCounter(ctx, "notifications.email.total", 1, map[string]string{"recipient": "admin", "status": "sent"})
	recorder.IncCounter(ctx, "notifications.email.total", 2, map[string]string{"recipient": "customer", "status": "failed"})
	recorder.ObserveHistogram(ctx, "notifications.email.duration_ms", 120, map[string]string{"recipient": "admin"})

	expected := `
# HELP order_notify_notifications_email_total Counter notifications.email.total
# TYPE order_notify_notifications_email_total counter
order_notify_notifications_email_total{recipient="admin",status="sent"} 1
order_notify_notifications_email_total{recipient="customer",status="failed"} 2
`
	if err := testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(expected), "order_notify_notifications_email_total"); err != nil {
		t.Fatalf("unexpected counter output: %v", err)
	}
	if count := testutil.CollectAndCount(recorder.histograms["notifications_email_duration_ms"].vec); count != 1 {
		t.Fatalf("expected one histogram series, got %d", count)
	}
}

func TestRecorder_MissingLabelsAreBlank(t *testing.T) {
	recorder := NewRecorder()
	ctx := context.Background()
	recorder.IncCounter(ctx, "webhooks.payment_succeeded.total", 1, map[string]string{"status": "ok", "reason": ""})
	recorder.IncCounter(ctx, "webhooks.payment_succeeded.total", 1, map[string]string{"status": "rejected"})
	recorder.IncCounter(ctx, "webhooks.payment_succeeded.total", 0, map[string]string{"status": "ignored"})

	vec := recorder.counters["webhooks_payment_succeeded_total"].vec
	if got := testutil.ToFloat64(vec.WithLabelValues("", "rejected")); got != 1 {
		t.Fatalf("expected rejected count 1, got %v", got)
	}
	if got := testutil.CollectAndCount(vec); got != 2 {
		t.Fatalf("expected zero increments to be ignored, got %d series", got)
	}
}

func TestRecorder_HandlerExposesMetrics(t *testing.T) {
	recorder := NewRecorder(WithRuntimeCollectors())
	recorder.IncCounter(context.Background(), "notifications.email.total", 1, map[string]string{"recipient": "admin", "status": "sent"})

	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `notifications_email_total{recipient="admin",status="sent"} 1`) {
		t.Fatalf("expected counter in exposition, got %q", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected runtime collectors in exposition")
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"notifications.email.duration_ms": "notifications_email_duration_ms",
		"9lives":                          "_9lives",
		" http-requests ":                 "http_requests",
	}
	for input, expected := range cases {
		if got := sanitizeName(input); got != expected {
			t.Fatalf("sanitize %q: expected %q, got %q", input, expected, got)
		}
	}
}
