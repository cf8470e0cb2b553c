package ordernotify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-order-notify/core"
	"github.com/goliatone/go-order-notify/inbound"
	"github.com/goliatone/go-order-notify/webhooks"
)

const paidOrderBody = `{"id": 820982911946154500, "name": "#1001", "financial_status": "paid", "currency": "usd", "current_total_price": "398.00", "line_items": [{"title": "Amethyst Cluster", "quantity": 2, "price": "199.00"}], "customer": {"email": "jane@example.com", "first_name": "Jane"}}`

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Email.ResendAPIKey = "re_test"
	cfg.Email.AdminAddress = "orders@aurora.crystals"
	cfg.Email.SenderDomain = "aurora.crystals"
	cfg.App.URL = "https://aurora.crystals"
	return cfg
}

func TestNewApp_ServesWebhookEndToEnd(t *testing.T) {
	sender := &recordingSender{}
	app, err := NewApp(testConfig(), Dependencies{Sender: sender})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	rec := postWebhook(app.Handler(), core.DefaultWebhookPath, paidOrderBody, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out inbound.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !out.OK || out.OrderID != "#1001" || out.AdminMessageID != "msg_1" || out.CustomerMessageID != "msg_2" {
		t.Fatalf("unexpected response %#v", out)
	}

	if len(sender.messages) != 2 {
		t.Fatalf("expected two emails, got %d", len(sender.messages))
	}
	admin, customer := sender.messages[0], sender.messages[1]
	if admin.To[0] != "orders@aurora.crystals" || admin.From != "Aurora <noreply@aurora.crystals>" {
		t.Fatalf("unexpected admin envelope %#v", admin)
	}
	if admin.Subject != "New paid order received - #1001 (paid)" {
		t.Fatalf("unexpected admin subject %q", admin.Subject)
	}
	if customer.To[0] != "jane@example.com" || customer.Subject != "Thanks for your purchase - Aurora" {
		t.Fatalf("unexpected customer envelope %#v", customer)
	}
	if !strings.Contains(customer.HTML, "Jane") || !strings.Contains(admin.Text, "USD 398.00") {
		t.Fatalf("expected rendered bodies from embedded templates")
	}
}

func TestNewApp_InstallsShopifyVerifierWhenSecretIsSet(t *testing.T) {
	cfg := testConfig()
	cfg.Webhook.Secret = "shpss_test"
	cfg.Webhook.RequireSignature = true
	sender := &recordingSender{}
	app, err := NewApp(cfg, Dependencies{Sender: sender})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	rec := postWebhook(app.Handler(), core.DefaultWebhookPath, paidOrderBody, map[string]string{
		webhooks.HeaderShopifyHMAC: "bm9wZQ==",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}
	if len(sender.messages) != 0 {
		t.Fatalf("expected no emails for rejected delivery")
	}

	mac := hmac.New(sha256.New, []byte("shpss_test"))
	mac.Write([]byte(paidOrderBody))
	rec = postWebhook(app.Handler(), core.DefaultWebhookPath, paidOrderBody, map[string]string{
		webhooks.HeaderShopifyHMAC: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for signed delivery, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewApp_DedupeUsesDeliveryLedgerOnlyWhenEnabled(t *testing.T) {
	headers := map[string]string{webhooks.HeaderShopifyWebhookID: "delivery-1"}

	sender := &recordingSender{}
	app, err := NewApp(testConfig(), Dependencies{Sender: sender, Deliveries: webhooks.NewMemoryDeliveryLedger()})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	postWebhook(app.Handler(), core.DefaultWebhookPath, paidOrderBody, headers)
	postWebhook(app.Handler(), core.DefaultWebhookPath, paidOrderBody, headers)
	if len(sender.messages) != 4 {
		t.Fatalf("expected duplicates to resend without dedupe, got %d emails", len(sender.messages))
	}

	cfg := testConfig()
	cfg.Webhook.Dedupe = true
	cfg.Persistence.DSN = "file::memory:"
	cfg.Persistence.Driver = "sqlite"
	sender = &recordingSender{}
	app, err = NewApp(cfg, Dependencies{Sender: sender, Deliveries: webhooks.NewMemoryDeliveryLedger()})
	if err != nil {
		t.Fatalf("new app with dedupe: %v", err)
	}
	postWebhook(app.Handler(), core.DefaultWebhookPath, paidOrderBody, headers)
	rec := postWebhook(app.Handler(), core.DefaultWebhookPath, paidOrderBody, headers)
	if !strings.Contains(rec.Body.String(), `"duplicate":true`) {
		t.Fatalf("expected duplicate response, got %s", rec.Body.String())
	}
	if len(sender.messages) != 2 {
		t.Fatalf("expected one send pair with dedupe, got %d emails", len(sender.messages))
	}
}

func TestNewApp_MountsMetricsOnlyWhenEnabled(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("up 1\n"))
	})

	app, err := NewApp(testConfig(), Dependencies{Sender: &recordingSender{}, MetricsHandler: metricsHandler})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected metrics to be hidden, got %d", rec.Code)
	}

	cfg := testConfig()
	cfg.Metrics.Enabled = true
	app, err = NewApp(cfg, Dependencies{Sender: &recordingSender{}, MetricsHandler: metricsHandler})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Body.String() != "up 1\n" {
		t.Fatalf("expected metrics handler, got %q", rec.Body.String())
	}
}

func TestNewApp_RejectsInvalidSetup(t *testing.T) {
	if _, err := NewApp(DefaultConfig(), Dependencies{Sender: &recordingSender{}}); err == nil {
		t.Fatalf("expected config validation failure")
	}
	if _, err := NewApp(testConfig(), Dependencies{}); err == nil {
		t.Fatalf("expected sender to be required")
	}
}

func postWebhook(handler http.Handler, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type recordingSender struct {
	mu       sync.Mutex
	messages []core.EmailMessage
}

func (s *recordingSender) Send(_ context.Context, msg core.EmailMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return "msg_" + string(rune('0'+len(s.messages))), nil
}
