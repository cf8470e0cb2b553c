package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-order-notify/notifications"
	"github.com/goliatone/go-order-notify/webhooks"
)

type PaymentDispatcher interface {
	Send(ctx context.Context, webhook webhooks.OrderWebhook) (notifications.SendResult, error)
}

type SendPaymentEmailsCommand struct {
	dispatcher PaymentDispatcher
}

func NewSendPaymentEmailsCommand(dispatcher PaymentDispatcher) *SendPaymentEmailsCommand {
	return &SendPaymentEmailsCommand{dispatcher: dispatcher}
}

func (c *SendPaymentEmailsCommand) Execute(ctx context.Context, msg SendPaymentEmailsMessage) error {
	if c == nil || c.dispatcher == nil {
		return commandDependencyError("command: payment dispatcher is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	webhook, err := parsePayload(msg.Payload)
	if err != nil {
		return err
	}
	out, err := c.dispatcher.Send(ctx, webhook)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PreviewPaymentEmailsCommand struct {
	normalizer notifications.Normalizer
}

func NewPreviewPaymentEmailsCommand(normalizer notifications.Normalizer) *PreviewPaymentEmailsCommand {
	return &PreviewPaymentEmailsCommand{normalizer: normalizer}
}

func (c *PreviewPaymentEmailsCommand) Execute(ctx context.Context, msg PreviewPaymentEmailsMessage) error {
	if c == nil {
		return commandDependencyError("command: preview command is nil")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	webhook, err := parsePayload(msg.Payload)
	if err != nil {
		return err
	}
	storeResult(ctx, c.normalizer.Normalize(webhook))
	return nil
}

func parsePayload(payload []byte) (webhooks.OrderWebhook, error) {
	webhook, issues, err := webhooks.Parse(payload)
	if err != nil {
		return webhooks.OrderWebhook{}, commandWrapInvalidInput(err, "command: invalid json payload")
	}
	if len(issues) > 0 {
		return webhooks.OrderWebhook{}, issues.AsError()
	}
	return webhook, nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
