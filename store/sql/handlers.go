package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// keyedModel describes a record with a text uuid primary key and the column
// the repository looks rows up by.
type keyedModel[T any] struct {
	newRecord  func() T
	idField    func(T) *string
	identifier string
	lookup     func(T) string
}

func (m keyedModel[T]) handlers() repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: m.newRecord,
		GetID: func(record T) uuid.UUID {
			field := m.idField(record)
			if field == nil {
				return uuid.Nil
			}
			parsed, err := uuid.Parse(strings.TrimSpace(*field))
			if err != nil {
				return uuid.Nil
			}
			return parsed
		},
		SetID: func(record T, id uuid.UUID) {
			if field := m.idField(record); field != nil {
				*field = id.String()
			}
		},
		GetIdentifier: func() string { return m.identifier },
		GetIdentifierValue: func(record T) string {
			return strings.TrimSpace(m.lookup(record))
		},
	}
}

func webhookDeliveryHandlers() repository.ModelHandlers[*webhookDeliveryRecord] {
	return keyedModel[*webhookDeliveryRecord]{
		newRecord: func() *webhookDeliveryRecord { return &webhookDeliveryRecord{} },
		idField: func(r *webhookDeliveryRecord) *string {
			if r == nil {
				return nil
			}
			return &r.ID
		},
		identifier: "id",
		lookup: func(r *webhookDeliveryRecord) string {
			if r == nil {
				return ""
			}
			return r.ID
		},
	}.handlers()
}

func notificationDispatchHandlers() repository.ModelHandlers[*notificationDispatchRecord] {
	return keyedModel[*notificationDispatchRecord]{
		newRecord: func() *notificationDispatchRecord { return &notificationDispatchRecord{} },
		idField: func(r *notificationDispatchRecord) *string {
			if r == nil {
				return nil
			}
			return &r.ID
		},
		identifier: "idempotency_key",
		lookup: func(r *notificationDispatchRecord) string {
			if r == nil {
				return ""
			}
			return r.Idempotency
		},
	}.handlers()
}
