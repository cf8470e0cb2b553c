package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-order-notify/webhooks"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ErrDeliveryNotFound = errors.New("sqlstore: webhook delivery not found")

const defaultPendingLimit = 50

// WebhookDeliveryStore is the SQL webhooks.DeliveryLedger. A delivery is
// unique per (provider_id, delivery_id).
type WebhookDeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookDeliveryRecord]
	now  func() time.Time
}

type PendingDelivery struct {
	Record    webhooks.DeliveryRecord
	LastError string
	Payload   []byte
}

type deliveryKey struct {
	provider string
	delivery string
}

func newDeliveryKey(providerID string, deliveryID string) (deliveryKey, error) {
	key := deliveryKey{
		provider: strings.TrimSpace(providerID),
		delivery: strings.TrimSpace(deliveryID),
	}
	if key.provider == "" || key.delivery == "" {
		return deliveryKey{}, fmt.Errorf("sqlstore: provider id and delivery id are required")
	}
	return key, nil
}

func (k deliveryKey) String() string { return k.provider + "/" + k.delivery }

func NewWebhookDeliveryStore(db *bun.DB) (*WebhookDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookDeliveryRecord](db, webhookDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: webhook delivery repository: %w", err)
		}
	}
	return &WebhookDeliveryStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *WebhookDeliveryStore) ready() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	return nil
}

// Reserve inserts a pending delivery. When the key already exists the stored
// row is returned with existed=true and nothing is written.
func (s *WebhookDeliveryStore) Reserve(
	ctx context.Context,
	providerID string,
	deliveryID string,
	payload []byte,
) (webhooks.DeliveryRecord, bool, error) {
	if err := s.ready(); err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	key, err := newDeliveryKey(providerID, deliveryID)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}

	now := s.now()
	record := &webhookDeliveryRecord{
		ID:         uuid.NewString(),
		ProviderID: key.provider,
		DeliveryID: key.delivery,
		Status:     webhooks.DeliveryStatusPending,
		Attempts:   1,
		Payload:    append([]byte(nil), payload...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	res, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (provider_id, delivery_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: reserve %s: %w", key, err)
	}
	if inserted, _ := res.RowsAffected(); inserted == 1 {
		return webhookDeliveryToDomain(record), false, nil
	}

	existing, err := s.find(ctx, key)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	return webhookDeliveryToDomain(existing), true, nil
}

func (s *WebhookDeliveryStore) Get(
	ctx context.Context,
	providerID string,
	deliveryID string,
) (webhooks.DeliveryRecord, error) {
	if err := s.ready(); err != nil {
		return webhooks.DeliveryRecord{}, err
	}
	key, err := newDeliveryKey(providerID, deliveryID)
	if err != nil {
		return webhooks.DeliveryRecord{}, err
	}
	record, err := s.find(ctx, key)
	if err != nil {
		return webhooks.DeliveryRecord{}, err
	}
	return webhookDeliveryToDomain(record), nil
}

func (s *WebhookDeliveryStore) MarkProcessed(ctx context.Context, providerID string, deliveryID string) error {
	return s.update(ctx, providerID, deliveryID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", webhooks.DeliveryStatusProcessed).
			Set("next_attempt_at = NULL").
			Set("last_error = ''")
	})
}

// MarkRetry flags the delivery for reprocessing and counts the attempt.
func (s *WebhookDeliveryStore) MarkRetry(
	ctx context.Context,
	providerID string,
	deliveryID string,
	cause error,
	nextAttemptAt time.Time,
) error {
	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}
	return s.update(ctx, providerID, deliveryID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", webhooks.DeliveryStatusRetryReady).
			Set("attempts = attempts + 1").
			Set("next_attempt_at = ?", nextAttemptAt.UTC()).
			Set("last_error = ?", lastError)
	})
}

// Pending lists deliveries not yet processed, oldest first, with their
// payloads so they can be replayed.
func (s *WebhookDeliveryStore) Pending(ctx context.Context, limit int) ([]PendingDelivery, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("status", "<>", webhooks.DeliveryStatusProcessed),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list pending deliveries: %w", err)
	}
	out := make([]PendingDelivery, 0, len(records))
	for _, record := range records {
		out = append(out, PendingDelivery{
			Record:    webhookDeliveryToDomain(record),
			LastError: record.LastError,
			Payload:   append([]byte(nil), record.Payload...),
		})
	}
	return out, nil
}

func (s *WebhookDeliveryStore) find(ctx context.Context, key deliveryKey) (*webhookDeliveryRecord, error) {
	record := &webhookDeliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", key.provider).
		Where("?TableAlias.delivery_id = ?", key.delivery).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDeliveryNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: load delivery %s: %w", key, err)
	}
	return record, nil
}

func (s *WebhookDeliveryStore) update(
	ctx context.Context,
	providerID string,
	deliveryID string,
	apply func(*bun.UpdateQuery) *bun.UpdateQuery,
) error {
	if err := s.ready(); err != nil {
		return err
	}
	key, err := newDeliveryKey(providerID, deliveryID)
	if err != nil {
		return err
	}
	query := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("updated_at = ?", s.now()).
		Where("provider_id = ?", key.provider).
		Where("delivery_id = ?", key.delivery)
	res, err := apply(query).Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: update delivery %s: %w", key, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: %s", ErrDeliveryNotFound, key)
	}
	return nil
}

func webhookDeliveryToDomain(record *webhookDeliveryRecord) webhooks.DeliveryRecord {
	if record == nil {
		return webhooks.DeliveryRecord{}
	}
	out := webhooks.DeliveryRecord{
		ID:         record.ID,
		ProviderID: record.ProviderID,
		DeliveryID: record.DeliveryID,
		Status:     record.Status,
		Attempts:   record.Attempts,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
	if record.NextAttemptAt != nil {
		next := *record.NextAttemptAt
		out.NextAttemptAt = &next
	}
	return out
}
