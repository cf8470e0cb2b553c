package inbound

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-order-notify/core"
	"github.com/goliatone/go-order-notify/notifications"
	"github.com/goliatone/go-order-notify/webhooks"
)

const namedOrderBody = `{"id": 1001, "name": "#1001", "line_items": [{"title": "Rose Quartz", "quantity": 1, "price": "199.00"}], "currency": "zar", "customer": {"email": "a@b.com"}}`

func TestReceiver_SendsBothEmailsForNamedOrder(t *testing.T) {
	sender := &spySender{ids: []string{"admin_1", "customer_1"}}
	receiver := newPipelineReceiver(t, sender)

	rec := post(receiver, namedOrderBody, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	out := decodeResponse(t, rec)
	if !out.OK || out.OrderID != "#1001" {
		t.Fatalf("unexpected response %#v", out)
	}
	if out.AdminMessageID != "admin_1" || out.CustomerMessageID != "customer_1" {
		t.Fatalf("expected both message ids, got %#v", out)
	}
	if sender.count() != 2 {
		t.Fatalf("expected two sends, got %d", sender.count())
	}
}

func TestReceiver_RejectsMissingContentTypeBeforeReadingBody(t *testing.T) {
	dispatcher := &spyDispatcher{}
	receiver := newSpyReceiver(t, dispatcher)

	body := &trackingReader{Reader: strings.NewReader(namedOrderBody)}
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment-succeeded", body)
	rec := httptest.NewRecorder()
	receiver.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
	out := decodeResponse(t, rec)
	if out.OK || out.Error != MessageUnsupportedMediaType {
		t.Fatalf("unexpected response %#v", out)
	}
	if body.read {
		t.Fatalf("expected body to stay unread")
	}
	if dispatcher.calls != 0 {
		t.Fatalf("dispatcher must not be invoked, got %d calls", dispatcher.calls)
	}
}

func TestReceiver_RejectsNonJSONContentTypes(t *testing.T) {
	dispatcher := &spyDispatcher{}
	receiver := newSpyReceiver(t, dispatcher)

	for _, contentType := range []string{"text/plain", "application/x-www-form-urlencoded", "application/jsonx", ";;"} {
		rec := post(receiver, namedOrderBody, contentType)
		if rec.Code != http.StatusUnsupportedMediaType {
			t.Fatalf("%q: expected 415, got %d", contentType, rec.Code)
		}
	}
	rec := post(receiver, namedOrderBody, "application/json; charset=utf-8")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected charset parameter to be accepted, got %d", rec.Code)
	}
	if dispatcher.calls != 1 {
		t.Fatalf("expected one dispatch, got %d", dispatcher.calls)
	}
}

func TestReceiver_SkipsCustomerEmailWhenAddressMissing(t *testing.T) {
	sender := &spySender{ids: []string{"admin_1"}}
	receiver := newPipelineReceiver(t, sender)

	rec := post(receiver, `{"id": "55", "line_items": []}`, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var raw map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw["adminMessageId"] != "admin_1" {
		t.Fatalf("expected admin message id, got %#v", raw)
	}
	if _, ok := raw["customerMessageId"]; ok {
		t.Fatalf("expected customerMessageId to be omitted, got %#v", raw)
	}
	if raw["orderId"] != "55" {
		t.Fatalf("expected stringified id, got %#v", raw["orderId"])
	}
	if sender.count() != 1 {
		t.Fatalf("expected admin send only, got %d", sender.count())
	}
}

func TestReceiver_AdminSendFailureReturns502(t *testing.T) {
	sender := &spySender{err: errors.New("resend: 500 internal")}
	logger := &capturingLogger{}
	dispatcher := newDispatcher(t, sender)
	dlq := &memoryDeadLetters{}
	receiver, err := NewReceiver(dispatcher, WithReceiverLogger(logger), WithDeadLetterQueue(dlq))
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}

	rec := post(receiver, namedOrderBody, "application/json")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	out := decodeResponse(t, rec)
	if out.OK || out.Error != MessageDispatchFailed {
		t.Fatalf("unexpected response %#v", out)
	}
	if strings.Contains(rec.Body.String(), "resend") {
		t.Fatalf("provider detail leaked into response: %s", rec.Body.String())
	}
	if sender.count() != 1 {
		t.Fatalf("expected the customer email to be skipped after admin failure, got %d sends", sender.count())
	}

	entry, ok := logger.find("webhook.payment_succeeded.dispatch_failed")
	if !ok {
		t.Fatalf("expected dispatch failure log line")
	}
	if _, ok := entry.value("reason"); !ok {
		t.Fatalf("expected reason in failure log, got %#v", entry.args)
	}
	partial, ok := entry.value("partial_result")
	if !ok {
		t.Fatalf("expected partial result in failure log")
	}
	if result, _ := partial.(notifications.SendResult); result.AdminMessageID != "" || result.CustomerMessageID != "" {
		t.Fatalf("expected empty partial result, got %#v", partial)
	}
	if len(dlq.letters) != 1 || dlq.letters[0].OrderID != "#1001" {
		t.Fatalf("expected dead letter for failed order, got %#v", dlq.letters)
	}
}

func TestReceiver_InvalidJSON(t *testing.T) {
	dispatcher := &spyDispatcher{}
	receiver := newSpyReceiver(t, dispatcher)

	rec := post(receiver, `{"id": 1`, "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	out := decodeResponse(t, rec)
	if out.Error != MessageInvalidJSON || len(out.Issues) != 0 {
		t.Fatalf("unexpected response %#v", out)
	}
	if dispatcher.calls != 0 {
		t.Fatalf("dispatcher must not be invoked")
	}
}

func TestReceiver_SchemaIssuesOnePerField(t *testing.T) {
	dispatcher := &spyDispatcher{}
	receiver := newSpyReceiver(t, dispatcher)

	rec := post(receiver, `{"line_items": [{"quantity": 0}], "currency": "RANDS"}`, "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	out := decodeResponse(t, rec)
	if out.Error != MessageInvalidPayload {
		t.Fatalf("unexpected error %q", out.Error)
	}
	paths := map[string]bool{}
	for _, issue := range out.Issues {
		paths[issue.Path] = true
	}
	for _, want := range []string{"id", "currency", "line_items.0.quantity"} {
		if !paths[want] {
			t.Fatalf("expected issue for %q, got %#v", want, out.Issues)
		}
	}
	if len(out.Issues) != 3 {
		t.Fatalf("expected three issues, got %#v", out.Issues)
	}
	if dispatcher.calls != 0 {
		t.Fatalf("dispatcher must not be invoked")
	}
}

func TestReceiver_OrderIDPrefersName(t *testing.T) {
	dispatcher := &spyDispatcher{}
	receiver := newSpyReceiver(t, dispatcher)

	out := decodeResponse(t, post(receiver, `{"id": 7, "name": "#A7", "line_items": []}`, "application/json"))
	if out.OrderID != "#A7" {
		t.Fatalf("expected name, got %q", out.OrderID)
	}
	out = decodeResponse(t, post(receiver, `{"id": 7, "line_items": []}`, "application/json"))
	if out.OrderID != "7" {
		t.Fatalf("expected stringified id, got %q", out.OrderID)
	}
}

func TestReceiver_BodyTooLarge(t *testing.T) {
	dispatcher := &spyDispatcher{}
	receiver, err := NewReceiver(dispatcher, WithMaxBodyBytes(16))
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}

	rec := post(receiver, namedOrderBody, "application/json")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if out := decodeResponse(t, rec); out.Error != MessageBodyTooLarge {
		t.Fatalf("unexpected error %q", out.Error)
	}
	if dispatcher.calls != 0 {
		t.Fatalf("dispatcher must not be invoked")
	}
}

func TestReceiver_SignatureVerification(t *testing.T) {
	dispatcher := &spyDispatcher{}
	receiver, err := NewReceiver(dispatcher, WithVerifier(webhooks.NewShopifyVerifier("secret")))
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}

	rec := post(receiver, namedOrderBody, "application/json")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature, got %d", rec.Code)
	}
	if out := decodeResponse(t, rec); out.Error != MessageUnauthorized {
		t.Fatalf("unexpected error %q", out.Error)
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(namedOrderBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhooks.HeaderShopifyHMAC, sign("secret", namedOrderBody))
	rec = httptest.NewRecorder()
	receiver.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected signed request to pass, got %d", rec.Code)
	}
	if dispatcher.calls != 1 {
		t.Fatalf("expected one dispatch, got %d", dispatcher.calls)
	}
}

func TestReceiver_DedupeSkipsProcessedDeliveries(t *testing.T) {
	dispatcher := &spyDispatcher{}
	ledger := webhooks.NewMemoryDeliveryLedger()
	receiver, err := NewReceiver(dispatcher, WithDeliveryLedger(ledger))
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(namedOrderBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(webhooks.HeaderShopifyWebhookID, "delivery_1")
		rec := httptest.NewRecorder()
		receiver.ServeHTTP(rec, req)
		return rec
	}

	first := decodeResponse(t, send())
	if !first.OK || first.Duplicate {
		t.Fatalf("unexpected first response %#v", first)
	}
	second := decodeResponse(t, send())
	if !second.OK || !second.Duplicate || second.OrderID != "#1001" {
		t.Fatalf("expected duplicate response, got %#v", second)
	}
	if dispatcher.calls != 1 {
		t.Fatalf("expected a single dispatch, got %d", dispatcher.calls)
	}
}

func TestReceiver_DedupeRetriesFailedDeliveries(t *testing.T) {
	dispatcher := &spyDispatcher{err: errors.New("down")}
	ledger := webhooks.NewMemoryDeliveryLedger()
	receiver, err := NewReceiver(dispatcher, WithDeliveryLedger(ledger))
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}

	if rec := post(receiver, namedOrderBody, "application/json"); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	record, err := ledger.Get(context.Background(), webhooks.ProviderShopify, "1001:unknown:unknown")
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if record.Status != webhooks.DeliveryStatusRetryReady {
		t.Fatalf("expected retry_ready, got %q", record.Status)
	}

	dispatcher.err = nil
	if rec := post(receiver, namedOrderBody, "application/json"); rec.Code != http.StatusOK {
		t.Fatalf("expected redelivery to be processed, got %d", rec.Code)
	}
	if dispatcher.calls != 2 {
		t.Fatalf("expected two dispatches, got %d", dispatcher.calls)
	}
}

func TestReceiver_RejectsOtherMethods(t *testing.T) {
	receiver := newSpyReceiver(t, &spyDispatcher{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	receiver.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func post(handler http.Handler, body string, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment-succeeded", bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var out Response
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

func sign(secret string, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newSpyReceiver(t *testing.T, dispatcher PaymentDispatcher) *Receiver {
	t.Helper()
	receiver, err := NewReceiver(dispatcher)
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	return receiver
}

func newDispatcher(t *testing.T, sender core.EmailSender) *notifications.Dispatcher {
	t.Helper()
	dispatcher, err := notifications.NewDispatcher(sender, stubRenderer{}, notifications.DispatcherConfig{
		AdminEmail:   "orders@aurora.test",
		From:         "Aurora <noreply@aurora.test>",
		SupportEmail: "hello@aurora.test",
		AppURL:       "https://aurora.test",
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return dispatcher
}

func newPipelineReceiver(t *testing.T, sender core.EmailSender) *Receiver {
	t.Helper()
	receiver, err := NewReceiver(newDispatcher(t, sender))
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	return receiver
}

type spyDispatcher struct {
	calls int
	err   error
}

func (d *spyDispatcher) Send(_ context.Context, webhook webhooks.OrderWebhook) (notifications.SendResult, error) {
	d.calls++
	if d.err != nil {
		return notifications.SendResult{}, d.err
	}
	return notifications.SendResult{AdminMessageID: "admin_" + webhook.ID.String()}, nil
}

type spySender struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls []core.EmailMessage
}

func (s *spySender) Send(_ context.Context, msg core.EmailMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, msg)
	if s.err != nil {
		return "", s.err
	}
	index := len(s.calls) - 1
	if index >= len(s.ids) {
		return "", errors.New("no message id configured")
	}
	return s.ids[index], nil
}

func (s *spySender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubRenderer struct{}

func (stubRenderer) RenderAdmin(string, notifications.PaymentEmailPayload) (notifications.RenderedEmail, error) {
	return notifications.RenderedEmail{HTML: "<p>admin</p>", Text: "admin"}, nil
}

func (stubRenderer) RenderCustomer(string, notifications.PaymentEmailPayload) (notifications.RenderedEmail, error) {
	return notifications.RenderedEmail{HTML: "<p>customer</p>", Text: "customer"}, nil
}

type trackingReader struct {
	*strings.Reader
	read bool
}

func (r *trackingReader) Read(p []byte) (int, error) {
	r.read = true
	return r.Reader.Read(p)
}

type memoryDeadLetters struct {
	letters []core.DeadLetter
}

func (q *memoryDeadLetters) Push(_ context.Context, letter core.DeadLetter) error {
	q.letters = append(q.letters, letter)
	return nil
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

func (e logEntry) value(key string) (any, bool) {
	for i := 0; i+1 < len(e.args); i += 2 {
		if e.args[i] == key {
			return e.args[i+1], true
		}
	}
	return nil, false
}

type capturingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *capturingLogger) add(level string, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: append([]any(nil), args...)})
}

func (l *capturingLogger) Trace(msg string, args ...any) { l.add("trace", msg, args) }
func (l *capturingLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *capturingLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *capturingLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *capturingLogger) Error(msg string, args ...any) { l.add("error", msg, args) }
func (l *capturingLogger) Fatal(msg string, args ...any) { l.add("fatal", msg, args) }

func (l *capturingLogger) WithContext(context.Context) glog.Logger { return l }

func (l *capturingLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if entry.msg == msg {
			return entry, true
		}
	}
	return logEntry{}, false
}
