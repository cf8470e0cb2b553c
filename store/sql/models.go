package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:notify_webhook_deliveries,alias:nwd"`

	ID            string     `bun:"id,pk"`
	ProviderID    string     `bun:"provider_id,notnull"`
	DeliveryID    string     `bun:"delivery_id,notnull"`
	Status        string     `bun:"status,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	NextAttemptAt *time.Time `bun:"next_attempt_at,nullzero"`
	LastError     string     `bun:"last_error,notnull"`
	Payload       []byte     `bun:"payload"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type notificationDispatchRecord struct {
	bun.BaseModel `bun:"table:notify_notification_dispatches,alias:nnd"`

	ID          string         `bun:"id,pk"`
	OrderID     string         `bun:"order_id,notnull"`
	Recipient   string         `bun:"recipient,notnull"`
	Template    string         `bun:"template,notnull"`
	MessageID   string         `bun:"message_id,notnull"`
	Idempotency string         `bun:"idempotency_key,notnull"`
	Status      string         `bun:"status,notnull"`
	Error       string         `bun:"error,notnull"`
	Metadata    map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
