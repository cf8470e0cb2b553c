package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-order-notify/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type NotificationDispatchStore struct {
	repo repository.Repository[*notificationDispatchRecord]
}

func NewNotificationDispatchStore(db *bun.DB) (*NotificationDispatchStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*notificationDispatchRecord](db, notificationDispatchHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid notification dispatch repository wiring: %w", err)
		}
	}
	return &NotificationDispatchStore{repo: repo}, nil
}

func (s *NotificationDispatchStore) Seen(ctx context.Context, idempotencyKey string) (bool, error) {
	if s == nil || s.repo == nil {
		return false, fmt.Errorf("sqlstore: notification dispatch store is not configured")
	}
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		return false, fmt.Errorf("sqlstore: idempotency key is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("idempotency_key", "=", key),
		repository.SelectBy("status", "=", core.DispatchStatusSent),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

func (s *NotificationDispatchStore) Record(ctx context.Context, input core.NotificationDispatchRecord) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: notification dispatch store is not configured")
	}
	if strings.TrimSpace(input.OrderID) == "" {
		return fmt.Errorf("sqlstore: order id is required")
	}
	if strings.TrimSpace(input.Recipient) == "" {
		return fmt.Errorf("sqlstore: recipient is required")
	}
	if strings.TrimSpace(input.Template) == "" {
		return fmt.Errorf("sqlstore: template is required")
	}
	if strings.TrimSpace(input.IdempotencyKey) == "" {
		return fmt.Errorf("sqlstore: idempotency key is required")
	}

	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = core.DispatchStatusSent
	}
	record := &notificationDispatchRecord{
		ID:          uuid.NewString(),
		OrderID:     strings.TrimSpace(input.OrderID),
		Recipient:   strings.TrimSpace(input.Recipient),
		Template:    strings.TrimSpace(input.Template),
		MessageID:   strings.TrimSpace(input.MessageID),
		Idempotency: strings.TrimSpace(input.IdempotencyKey),
		Status:      status,
		Error:       strings.TrimSpace(input.Error),
		Metadata:    RedactMetadata(input.Metadata),
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.repo.Create(ctx, record)
	if err != nil && isUniqueConstraintError(err) {
		return nil
	}
	return err
}

// ListByOrder returns the dispatch history of one order, newest first.
func (s *NotificationDispatchStore) ListByOrder(ctx context.Context, orderID string, limit int) ([]core.NotificationDispatchRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: notification dispatch store is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("sqlstore: order id is required")
	}
	if limit <= 0 {
		limit = 50
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("order_id", "=", orderID),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.NotificationDispatchRecord, 0, len(records))
	for _, record := range records {
		out = append(out, notificationDispatchToDomain(record))
	}
	return out, nil
}

func notificationDispatchToDomain(record *notificationDispatchRecord) core.NotificationDispatchRecord {
	if record == nil {
		return core.NotificationDispatchRecord{}
	}
	return core.NotificationDispatchRecord{
		OrderID:        record.OrderID,
		Recipient:      record.Recipient,
		Template:       record.Template,
		MessageID:      record.MessageID,
		IdempotencyKey: record.Idempotency,
		Status:         record.Status,
		Error:          record.Error,
		Metadata:       copyAnyMap(record.Metadata),
	}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "unique") || strings.Contains(text, "duplicate")
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
