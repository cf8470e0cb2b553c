package ordernotify

import (
	"context"

	"github.com/goliatone/go-order-notify/core"
	"github.com/goliatone/go-order-notify/notifications"
	"github.com/goliatone/go-order-notify/webhooks"
)

type Config = core.Config

type EmailSender = core.EmailSender
type EmailMessage = core.EmailMessage
type MetricsRecorder = core.MetricsRecorder
type DeadLetter = core.DeadLetter
type DeadLetterQueue = core.DeadLetterQueue
type NotificationDispatchLedger = core.NotificationDispatchLedger

type OrderWebhook = webhooks.OrderWebhook
type PaymentEmailPayload = notifications.PaymentEmailPayload
type SendResult = notifications.SendResult
type SendError = notifications.SendError

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// LoadConfig resolves defaults < environment < flags and validates the
// result.
func LoadConfig(ctx context.Context, flags Config) (Config, error) {
	return core.LoadConfig(ctx, nil, nil, flags)
}
