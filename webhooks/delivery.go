package webhooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusRetryReady = "retry_ready"
)

type DeliveryRecord struct {
	ID            string
	ProviderID    string
	DeliveryID    string
	Status        string
	Attempts      int
	NextAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeliveryLedger remembers deliveries so redelivered events can be skipped.
// Reserve reports existed=true when the delivery was seen before.
type DeliveryLedger interface {
	Reserve(ctx context.Context, providerID string, deliveryID string, payload []byte) (DeliveryRecord, bool, error)
	Get(ctx context.Context, providerID string, deliveryID string) (DeliveryRecord, error)
	MarkProcessed(ctx context.Context, providerID string, deliveryID string) error
	MarkRetry(ctx context.Context, providerID string, deliveryID string, cause error, nextAttemptAt time.Time) error
}

// DedupeKey prefers the sender's delivery id and otherwise derives a key from
// the event content, so the same order event maps to the same key.
func DedupeKey(deliveryID string, webhook OrderWebhook, topic string) string {
	if id := strings.TrimSpace(deliveryID); id != "" {
		return id
	}
	status := strings.ToLower(strings.TrimSpace(webhook.FinancialStatus))
	if status == "" {
		status = "unknown"
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = "unknown"
	}
	return fmt.Sprintf("%s:%s:%s", webhook.ID.String(), topic, status)
}

type MemoryDeliveryLedger struct {
	mu      sync.Mutex
	now     func() time.Time
	records map[string]DeliveryRecord
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{
		now:     func() time.Time { return time.Now().UTC() },
		records: map[string]DeliveryRecord{},
	}
}

func (l *MemoryDeliveryLedger) Reserve(_ context.Context, providerID string, deliveryID string, _ []byte) (DeliveryRecord, bool, error) {
	key, err := ledgerKey(providerID, deliveryID)
	if err != nil {
		return DeliveryRecord{}, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.records[key]; ok {
		return existing, true, nil
	}
	now := l.now()
	record := DeliveryRecord{
		ID:         key,
		ProviderID: strings.TrimSpace(providerID),
		DeliveryID: strings.TrimSpace(deliveryID),
		Status:     DeliveryStatusPending,
		Attempts:   1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	l.records[key] = record
	return record, false, nil
}

func (l *MemoryDeliveryLedger) Get(_ context.Context, providerID string, deliveryID string) (DeliveryRecord, error) {
	key, err := ledgerKey(providerID, deliveryID)
	if err != nil {
		return DeliveryRecord{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[key]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("webhooks: delivery %q not found for provider %q", deliveryID, providerID)
	}
	return record, nil
}

func (l *MemoryDeliveryLedger) MarkProcessed(_ context.Context, providerID string, deliveryID string) error {
	return l.update(providerID, deliveryID, func(record *DeliveryRecord) {
		record.Status = DeliveryStatusProcessed
		record.NextAttemptAt = nil
	})
}

func (l *MemoryDeliveryLedger) MarkRetry(_ context.Context, providerID string, deliveryID string, _ error, nextAttemptAt time.Time) error {
	return l.update(providerID, deliveryID, func(record *DeliveryRecord) {
		next := nextAttemptAt.UTC()
		record.Status = DeliveryStatusRetryReady
		record.Attempts++
		record.NextAttemptAt = &next
	})
}

func (l *MemoryDeliveryLedger) update(providerID string, deliveryID string, mutate func(*DeliveryRecord)) error {
	key, err := ledgerKey(providerID, deliveryID)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[key]
	if !ok {
		return fmt.Errorf("webhooks: delivery %q not found for provider %q", deliveryID, providerID)
	}
	mutate(&record)
	record.UpdatedAt = l.now()
	l.records[key] = record
	return nil
}

func ledgerKey(providerID string, deliveryID string) (string, error) {
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return "", fmt.Errorf("webhooks: provider id and delivery id are required")
	}
	return providerID + "/" + deliveryID, nil
}

var _ DeliveryLedger = (*MemoryDeliveryLedger)(nil)
