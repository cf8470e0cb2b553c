package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

// InboundRequest is the transport-neutral view of a webhook delivery used by
// verifiers and delivery id extractors.
type InboundRequest struct {
	ProviderID string
	Headers    map[string]string
	Body       []byte
}

type EmailMessage struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string
	ReplyTo string
	Tags    map[string]string
}

// EmailSender delivers one transactional email and returns the provider
// message id.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) (string, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

const (
	DispatchStatusSent    = "sent"
	DispatchStatusFailed  = "failed"
	DispatchStatusSkipped = "skipped"
)

type NotificationDispatchRecord struct {
	OrderID        string         `json:"orderId"`
	Recipient      string         `json:"recipient"`
	Template       string         `json:"template"`
	MessageID      string         `json:"messageId,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey"`
	Status         string         `json:"status"`
	Error          string         `json:"error,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type NotificationDispatchLedger interface {
	Seen(ctx context.Context, idempotencyKey string) (bool, error)
	Record(ctx context.Context, record NotificationDispatchRecord) error
}

// DeadLetter is a delivery whose dispatch failed, kept for manual replay.
type DeadLetter struct {
	At         time.Time `json:"at"`
	ProviderID string    `json:"provider_id"`
	DeliveryID string    `json:"delivery_id,omitempty"`
	OrderID    string    `json:"order_id,omitempty"`
	Error      string    `json:"error"`
	Payload    []byte    `json:"payload"`
}

type DeadLetterQueue interface {
	Push(ctx context.Context, letter DeadLetter) error
}
