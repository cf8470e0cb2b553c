package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	notifycommand "github.com/goliatone/go-order-notify/command"
	"github.com/goliatone/go-order-notify/notifications"
	"github.com/goliatone/go-order-notify/webhooks"
)

type okMessage struct{}

func (okMessage) Type() string { return "notify.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "notify.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "notify.command.test" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
	if err := ValidateMessageContract(notifycommand.SendPaymentEmailsMessage{}); err == nil {
		t.Fatalf("expected empty replay payload to fail contract validation")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})

	subscription, err := RegisterAndSubscribe(adapter, cmd)
	if err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	defer subscription.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestRun_RoutesReplayCommandAndCollectsResult(t *testing.T) {
	dispatcher := &stubPaymentDispatcher{result: notifications.SendResult{AdminMessageID: "admin_1"}}

	result, err := Run[notifycommand.SendPaymentEmailsMessage, notifications.SendResult](
		context.Background(),
		notifycommand.NewSendPaymentEmailsCommand(dispatcher),
		notifycommand.SendPaymentEmailsMessage{
			Payload: []byte(`{"id": 7, "line_items": []}`),
			Source:  notifycommand.SourceFile,
		},
	)
	if err != nil {
		t.Fatalf("run replay: %v", err)
	}
	if dispatcher.calls != 1 {
		t.Fatalf("expected one dispatcher call, got %d", dispatcher.calls)
	}
	if result.AdminMessageID != "admin_1" {
		t.Fatalf("expected collected send result, got %#v", result)
	}
}

func TestRun_FailsWhenHandlerStoresNothing(t *testing.T) {
	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error { return nil })
	if _, err := Run[dispatchMessage, string](context.Background(), cmd, dispatchMessage{ID: "m2"}); err == nil {
		t.Fatalf("expected missing result error")
	}
}

func TestRun_RejectsInvalidMessagesBeforeDispatch(t *testing.T) {
	dispatcher := &stubPaymentDispatcher{}
	_, err := Run[notifycommand.SendPaymentEmailsMessage, notifications.SendResult](
		context.Background(),
		notifycommand.NewSendPaymentEmailsCommand(dispatcher),
		notifycommand.SendPaymentEmailsMessage{Source: notifycommand.SourceDeadLetter},
	)
	if err == nil || dispatcher.calls != 0 {
		t.Fatalf("expected validation failure without dispatch, got %v (%d calls)", err, dispatcher.calls)
	}
}

type stubPaymentDispatcher struct {
	calls  int
	result notifications.SendResult
}

func (d *stubPaymentDispatcher) Send(context.Context, webhooks.OrderWebhook) (notifications.SendResult, error) {
	d.calls++
	return d.result, nil
}
