package sqlstore

import (
	"github.com/goliatone/go-order-notify/core"
	"github.com/goliatone/go-order-notify/webhooks"
)

var (
	_ core.NotificationDispatchLedger = (*NotificationDispatchStore)(nil)
	_ webhooks.DeliveryLedger         = (*WebhookDeliveryStore)(nil)
)
