package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-order-notify/core"
	"github.com/goliatone/go-order-notify/notifications"
	"github.com/goliatone/go-order-notify/webhooks"
)

const (
	DefaultMaxBodyBytes int64 = 1 << 20

	defaultRetryCount = "1"
	defaultTopic      = "unknown"
	defaultRetryDelay = time.Minute

	MetricWebhookTotal = "webhooks.payment_succeeded.total"
)

// PaymentDispatcher is the notification pipeline invoked for a valid
// webhook.
type PaymentDispatcher interface {
	Send(ctx context.Context, webhook webhooks.OrderWebhook) (notifications.SendResult, error)
}

type Response struct {
	OK                bool             `json:"ok"`
	OrderID           string           `json:"orderId,omitempty"`
	AdminMessageID    string           `json:"adminMessageId,omitempty"`
	CustomerMessageID string           `json:"customerMessageId,omitempty"`
	Duplicate         bool             `json:"duplicate,omitempty"`
	Error             string           `json:"error,omitempty"`
	Issues            []webhooks.Issue `json:"issues,omitempty"`
}

type ReceiverOption func(*Receiver)

func WithVerifier(verifier webhooks.Verifier) ReceiverOption {
	return func(r *Receiver) { r.verifier = verifier }
}

// WithDeliveryLedger enables redelivery dedupe.
func WithDeliveryLedger(ledger webhooks.DeliveryLedger) ReceiverOption {
	return func(r *Receiver) { r.ledger = ledger }
}

func WithDeliveryIDExtractor(extractor webhooks.DeliveryIDExtractor) ReceiverOption {
	return func(r *Receiver) { r.extractID = extractor }
}

func WithDeadLetterQueue(queue core.DeadLetterQueue) ReceiverOption {
	return func(r *Receiver) { r.deadLetters = queue }
}

func WithReceiverLogger(logger core.Logger) ReceiverOption {
	return func(r *Receiver) { r.logger = logger }
}

func WithReceiverMetrics(recorder core.MetricsRecorder) ReceiverOption {
	return func(r *Receiver) { r.metrics = recorder }
}

func WithMaxBodyBytes(limit int64) ReceiverOption {
	return func(r *Receiver) { r.maxBodyBytes = limit }
}

func WithProviderID(providerID string) ReceiverOption {
	return func(r *Receiver) { r.providerID = providerID }
}

// Receiver handles POSTed order webhooks. Checks run in a fixed order:
// content type, body size, signature, JSON, schema, dedupe, dispatch.
type Receiver struct {
	dispatcher   PaymentDispatcher
	verifier     webhooks.Verifier
	ledger       webhooks.DeliveryLedger
	extractID    webhooks.DeliveryIDExtractor
	deadLetters  core.DeadLetterQueue
	logger       core.Logger
	metrics      core.MetricsRecorder
	providerID   string
	maxBodyBytes int64
	retryDelay   time.Duration
	now          func() time.Time
}

func NewReceiver(dispatcher PaymentDispatcher, opts ...ReceiverOption) (*Receiver, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("inbound: payment dispatcher is required")
	}
	r := &Receiver{
		dispatcher:   dispatcher,
		verifier:     webhooks.NoopVerifier{},
		extractID:    webhooks.HeaderDeliveryIDExtractor(webhooks.HeaderShopifyWebhookID),
		providerID:   webhooks.ProviderShopify,
		maxBodyBytes: DefaultMaxBodyBytes,
		retryDelay:   defaultRetryDelay,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}
	if r.verifier == nil {
		r.verifier = webhooks.NoopVerifier{}
	}
	if r.extractID == nil {
		r.extractID = webhooks.HeaderDeliveryIDExtractor(webhooks.HeaderShopifyWebhookID)
	}
	if r.maxBodyBytes <= 0 {
		r.maxBodyBytes = DefaultMaxBodyBytes
	}
	if strings.TrimSpace(r.providerID) == "" {
		r.providerID = webhooks.ProviderShopify
	}
	r.logger = glog.Ensure(r.logger)
	if r.metrics == nil {
		r.metrics = core.NopMetricsRecorder{}
	}
	return r, nil
}

func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	logger := r.logger.WithContext(ctx)

	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, Response{OK: false, Error: MessageMethodNotAllowed})
		return
	}

	contentType := req.Header.Get("Content-Type")
	if !isJSONContentType(contentType) {
		rejection := unsupportedMediaType(contentType)
		r.reject(ctx, logger, rejection, "unsupported_media_type")
		writeRejection(w, rejection)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, r.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rejection := bodyTooLarge(r.maxBodyBytes)
			r.reject(ctx, logger, rejection, "body_too_large")
			writeRejection(w, rejection)
			return
		}
		rejection := invalidJSON(err)
		r.reject(ctx, logger, rejection, "unreadable_body")
		writeRejection(w, rejection)
		return
	}

	inbound := webhooks.NewInboundRequest(r.providerID, req.Header, body)
	if err := r.verifier.Verify(ctx, inbound); err != nil {
		rejection := unauthorized(err)
		r.reject(ctx, logger, rejection, "signature_invalid")
		writeRejection(w, rejection)
		return
	}

	raw, err := webhooks.DecodeJSON(body)
	if err != nil {
		rejection := invalidJSON(err)
		r.reject(ctx, logger, rejection, "invalid_json")
		writeRejection(w, rejection)
		return
	}

	webhook, issues := webhooks.ParseOrderWebhook(raw)
	if len(issues) > 0 {
		logger.Warn("webhook.payment_succeeded.invalid_payload",
			"issues", issues.AsError().Error(),
			"issue_count", len(issues),
		)
		r.count(ctx, "invalid_payload")
		writeJSON(w, http.StatusBadRequest, Response{
			OK:     false,
			Error:  MessageInvalidPayload,
			Issues: issues,
		})
		return
	}

	orderID := webhook.LogOrderID()
	topic := headerOr(inbound, webhooks.HeaderShopifyTopic, defaultTopic)
	deliveryID := r.extractID(inbound)
	logger.Info("webhook.payment_succeeded.received",
		"order_id", orderID,
		"financial_status", webhook.FinancialStatus,
		"topic", topic,
		"retry_count", headerOr(inbound, webhooks.HeaderRetryCount, defaultRetryCount),
		"delivery_id", deliveryID,
	)
	logger.Debug("webhook.payment_succeeded.payload", "order_id", orderID, "body", string(body))

	dedupeKey := ""
	if r.ledger != nil {
		dedupeKey = webhooks.DedupeKey(deliveryID, webhook, topic)
		if r.isDuplicate(ctx, logger, dedupeKey, body, orderID) {
			r.count(ctx, "duplicate")
			writeJSON(w, http.StatusOK, Response{OK: true, OrderID: orderID, Duplicate: true})
			return
		}
	}

	result, err := r.dispatcher.Send(ctx, webhook)
	if err != nil {
		r.dispatchFailed(ctx, logger, err, orderID, deliveryID, dedupeKey, body)
		writeRejection(w, dispatchFailed(err, orderID))
		return
	}

	if dedupeKey != "" {
		if markErr := r.ledger.MarkProcessed(ctx, r.providerID, dedupeKey); markErr != nil {
			logger.Warn("webhook delivery ledger update failed", "order_id", orderID, "error", markErr.Error())
		}
	}
	logger.Info("webhook.payment_succeeded.emails_sent",
		"order_id", orderID,
		"admin_message_id", result.AdminMessageID,
		"customer_message_id", result.CustomerMessageID,
		"customer_skipped", result.CustomerSkipped,
	)
	r.count(ctx, "sent")
	writeJSON(w, http.StatusOK, Response{
		OK:                true,
		OrderID:           orderID,
		AdminMessageID:    result.AdminMessageID,
		CustomerMessageID: result.CustomerMessageID,
	})
}

// isDuplicate reserves the delivery and reports whether it was already
// processed. Ledger errors never block dispatch.
func (r *Receiver) isDuplicate(ctx context.Context, logger core.Logger, key string, body []byte, orderID string) bool {
	record, existed, err := r.ledger.Reserve(ctx, r.providerID, key, body)
	if err != nil {
		logger.Warn("webhook delivery ledger reserve failed", "order_id", orderID, "error", err.Error())
		return false
	}
	if existed && record.Status == webhooks.DeliveryStatusProcessed {
		logger.Info("webhook.payment_succeeded.duplicate",
			"order_id", orderID,
			"delivery_key", key,
			"attempts", record.Attempts,
		)
		return true
	}
	return false
}

func (r *Receiver) dispatchFailed(
	ctx context.Context,
	logger core.Logger,
	err error,
	orderID string,
	deliveryID string,
	dedupeKey string,
	body []byte,
) {
	envelope := dispatchFailed(err, orderID)
	args := []any{
		"order_id", orderID,
		"text_code", envelope.TextCode,
		"reason", err.Error(),
	}
	var sendErr *notifications.SendError
	if errors.As(err, &sendErr) {
		args = append(args,
			"stage", sendErr.Stage,
			"partial_result", sendErr.PartialResult,
		)
	}
	logger.Error("webhook.payment_succeeded.dispatch_failed", args...)
	r.count(ctx, "dispatch_failed")

	if dedupeKey != "" {
		next := r.now().Add(r.retryDelay)
		if markErr := r.ledger.MarkRetry(ctx, r.providerID, dedupeKey, err, next); markErr != nil {
			logger.Warn("webhook delivery ledger update failed", "order_id", orderID, "error", markErr.Error())
		}
	}
	if r.deadLetters != nil {
		letter := core.DeadLetter{
			At:         r.now(),
			ProviderID: r.providerID,
			DeliveryID: deliveryID,
			OrderID:    orderID,
			Error:      err.Error(),
			Payload:    append([]byte(nil), body...),
		}
		if pushErr := r.deadLetters.Push(ctx, letter); pushErr != nil {
			logger.Error("dead letter push failed", "order_id", orderID, "error", pushErr.Error())
		}
	}
}

func (r *Receiver) reject(ctx context.Context, logger core.Logger, rejection *goerrors.Error, outcome string) {
	logger.Warn("webhook.payment_succeeded.rejected",
		"outcome", outcome,
		"status", rejection.Code,
		"text_code", rejection.TextCode,
		"reason", rejection.Error(),
	)
	r.count(ctx, outcome)
}

func (r *Receiver) count(ctx context.Context, outcome string) {
	r.metrics.IncCounter(ctx, MetricWebhookTotal, 1, map[string]string{"outcome": outcome})
}

func isJSONContentType(value string) bool {
	if strings.TrimSpace(value) == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

func headerOr(req core.InboundRequest, key string, fallback string) string {
	if value := webhooks.HeaderValue(req.Headers, key); value != "" {
		return value
	}
	return fallback
}

func writeRejection(w http.ResponseWriter, rejection *goerrors.Error) {
	mapped := core.MapError(rejection)
	writeJSON(w, mapped.Code, Response{OK: false, Error: publicMessage(mapped)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
