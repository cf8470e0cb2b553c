package command

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-order-notify/core"
	"github.com/goliatone/go-order-notify/notifications"
	"github.com/goliatone/go-order-notify/webhooks"
)

const replayBody = `{"id": 1001, "name": "#1001", "line_items": [{"title": "Rose Quartz", "quantity": 1, "price": "199.00"}], "currency": "zar", "customer": {"email": "a@b.com"}}`

func TestSendPaymentEmailsCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	dispatcher := &stubDispatcher{result: notifications.SendResult{AdminMessageID: "admin_1", CustomerMessageID: "customer_1"}}
	cmd := NewSendPaymentEmailsCommand(dispatcher)
	collector := gocmd.NewResult[notifications.SendResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, SendPaymentEmailsMessage{Payload: []byte(replayBody), Source: SourceFile})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if dispatcher.calls != 1 || dispatcher.last.LogOrderID() != "#1001" {
		t.Fatalf("expected dispatcher invocation with parsed webhook, got %#v", dispatcher)
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.AdminMessageID != "admin_1" || result.CustomerMessageID != "customer_1" {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestSendPaymentEmailsCommand_RejectsInvalidPayloads(t *testing.T) {
	dispatcher := &stubDispatcher{}
	cmd := NewSendPaymentEmailsCommand(dispatcher)

	err := cmd.Execute(context.Background(), SendPaymentEmailsMessage{Payload: []byte(" ")})
	assertBadInput(t, err)

	err = cmd.Execute(context.Background(), SendPaymentEmailsMessage{Payload: []byte(`{"id":`)})
	assertBadInput(t, err)

	err = cmd.Execute(context.Background(), SendPaymentEmailsMessage{Payload: []byte(`{"id": 1}`)})
	assertBadInput(t, err)

	err = cmd.Execute(context.Background(), SendPaymentEmailsMessage{Payload: []byte(replayBody), Source: "kafka"})
	assertBadInput(t, err)

	if dispatcher.calls != 0 {
		t.Fatalf("dispatcher must not be invoked for invalid payloads")
	}
}

func TestSendPaymentEmailsCommand_PropagatesDispatchErrors(t *testing.T) {
	sendErr := errors.New("provider down")
	cmd := NewSendPaymentEmailsCommand(&stubDispatcher{err: sendErr})

	err := cmd.Execute(context.Background(), SendPaymentEmailsMessage{Payload: []byte(replayBody)})
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected dispatch error, got %v", err)
	}
}

func TestSendPaymentEmailsCommand_RequiresDispatcher(t *testing.T) {
	err := NewSendPaymentEmailsCommand(nil).Execute(context.Background(), SendPaymentEmailsMessage{Payload: []byte(replayBody)})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorInternal {
		t.Fatalf("expected internal dependency error, got %v", err)
	}
}

func TestPreviewPaymentEmailsCommand_StoresNormalizedPayload(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	cmd := NewPreviewPaymentEmailsCommand(notifications.Normalizer{
		Now:             func() time.Time { return now },
		DefaultCurrency: "USD",
	})
	collector := gocmd.NewResult[notifications.PaymentEmailPayload]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, PreviewPaymentEmailsMessage{Payload: []byte(replayBody), Source: SourceDeadLetter}); err != nil {
		t.Fatalf("execute preview: %v", err)
	}
	payload, ok := collector.Load()
	if !ok {
		t.Fatalf("expected normalized payload")
	}
	if payload.OrderID != "#1001" || payload.Currency != "ZAR" || payload.Customer.Email != "a@b.com" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if !payload.EventAt.Equal(now) {
		t.Fatalf("expected clock fallback, got %v", payload.EventAt)
	}
}

func TestMessageTypes(t *testing.T) {
	if (SendPaymentEmailsMessage{}).Type() != TypeSendPaymentEmails {
		t.Fatalf("unexpected send message type")
	}
	if (PreviewPaymentEmailsMessage{}).Type() != TypePreviewPaymentEmails {
		t.Fatalf("unexpected preview message type")
	}
}

func assertBadInput(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected bad input error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
	if rich.TextCode != core.ErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.ErrorBadInput, rich.TextCode)
	}
}

type stubDispatcher struct {
	calls  int
	last   webhooks.OrderWebhook
	result notifications.SendResult
	err    error
}

func (d *stubDispatcher) Send(_ context.Context, webhook webhooks.OrderWebhook) (notifications.SendResult, error) {
	d.calls++
	d.last = webhook
	return d.result, d.err
}
