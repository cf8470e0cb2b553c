package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-order-notify/core"
	"github.com/goliatone/go-order-notify/webhooks"
	"github.com/google/uuid"
)

const (
	RecipientAdmin    = "admin"
	RecipientCustomer = "customer"

	TemplateAdminPayment    = "admin_payment"
	TemplateCustomerPayment = "customer_payment"

	MetricEmailTotal    = "notifications.email.total"
	MetricEmailDuration = "notifications.email.duration_ms"

	defaultSendTimeout = 5 * time.Second
)

var ErrMissingMessageID = errors.New("notifications: email provider did not return a message id")

type RenderedEmail struct {
	HTML string
	Text string
}

// Renderer turns a payload into email bodies. Implementations do no I/O.
type Renderer interface {
	RenderAdmin(appURL string, payload PaymentEmailPayload) (RenderedEmail, error)
	RenderCustomer(appURL string, payload PaymentEmailPayload) (RenderedEmail, error)
}

type SendResult struct {
	AdminMessageID    string `json:"adminMessageId,omitempty"`
	CustomerMessageID string `json:"customerMessageId,omitempty"`
	CustomerSkipped   bool   `json:"-"`
}

// SendError reports which email failed and what had been sent before it.
type SendError struct {
	Stage         string
	OrderID       string
	PartialResult SendResult
	cause         error
}

func (e *SendError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("notifications: failed to send %s payment email for %s: %v", e.Stage, e.OrderID, e.cause)
}

func (e *SendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

type DispatcherConfig struct {
	AdminEmail   string
	From         string
	SupportEmail string
	AppURL       string
	Brand        string
	SendTimeout  time.Duration
	// SuppressDuplicateCustomerEmails skips the customer email when the
	// ledger already holds a sent record for the same order and status.
	SuppressDuplicateCustomerEmails bool
}

func DispatcherConfigFrom(cfg core.Config) (DispatcherConfig, error) {
	timeout, err := cfg.Email.Timeout()
	if err != nil {
		return DispatcherConfig{}, err
	}
	return DispatcherConfig{
		AdminEmail:                      strings.TrimSpace(cfg.Email.AdminAddress),
		From:                            cfg.Email.FromAddress(),
		SupportEmail:                    cfg.Email.SupportAddress(),
		AppURL:                          cfg.App.BaseURL(),
		Brand:                           strings.TrimSpace(cfg.Email.SenderName),
		SendTimeout:                     timeout,
		SuppressDuplicateCustomerEmails: cfg.Webhook.Dedupe,
	}, nil
}

type Option func(*Dispatcher)

func WithLogger(logger core.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(d *Dispatcher) { d.loggerProvider = provider }
}

func WithMetrics(recorder core.MetricsRecorder) Option {
	return func(d *Dispatcher) { d.metrics = recorder }
}

func WithLedger(ledger core.NotificationDispatchLedger) Option {
	return func(d *Dispatcher) { d.ledger = ledger }
}

func WithNormalizer(normalizer Normalizer) Option {
	return func(d *Dispatcher) { d.normalizer = normalizer }
}

// Dispatcher sends the admin email and then, when an address is known, the
// customer email. Each email is attempted once; the admin email failing
// stops the run.
type Dispatcher struct {
	sender         core.EmailSender
	renderer       Renderer
	normalizer     Normalizer
	config         DispatcherConfig
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	ledger         core.NotificationDispatchLedger
	now            func() time.Time
}

func NewDispatcher(sender core.EmailSender, renderer Renderer, cfg DispatcherConfig, opts ...Option) (*Dispatcher, error) {
	if sender == nil {
		return nil, fmt.Errorf("notifications: email sender is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("notifications: renderer is required")
	}
	if strings.TrimSpace(cfg.AdminEmail) == "" {
		return nil, fmt.Errorf("notifications: admin email is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("notifications: from address is required")
	}
	if strings.TrimSpace(cfg.SupportEmail) == "" {
		cfg.SupportEmail = core.DefaultSupportEmail
	}
	if strings.TrimSpace(cfg.Brand) == "" {
		cfg.Brand = core.DefaultSenderName
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	d := &Dispatcher{
		sender:     sender,
		renderer:   renderer,
		normalizer: NewNormalizer(core.DefaultCurrency),
		config:     cfg,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(d)
	}

	provider, logger := glog.Resolve("notifications", d.loggerProvider, d.logger)
	d.loggerProvider = provider
	d.logger = glog.Ensure(logger)
	if d.metrics == nil {
		d.metrics = core.NopMetricsRecorder{}
	}
	return d, nil
}

func (d *Dispatcher) Normalizer() Normalizer {
	return d.normalizer
}

// Send normalizes the webhook and sends both emails in order.
func (d *Dispatcher) Send(ctx context.Context, webhook webhooks.OrderWebhook) (SendResult, error) {
	payload := d.normalizer.Normalize(webhook)
	return d.SendPayload(ctx, payload)
}

func (d *Dispatcher) SendPayload(ctx context.Context, payload PaymentEmailPayload) (SendResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := d.logger.WithContext(ctx)
	result := SendResult{}

	adminMsg, err := d.adminMessage(payload)
	if err == nil {
		result.AdminMessageID, err = d.deliver(ctx, RecipientAdmin, adminMsg)
	}
	d.record(ctx, payload, RecipientAdmin, TemplateAdminPayment, result.AdminMessageID, err)
	if err != nil {
		logger.Error("failed to send admin payment email",
			"order_id", payload.OrderID,
			"source", payload.Source,
			"financial_status", payload.FinancialStatus,
			"reason", err.Error(),
		)
		return result, &SendError{Stage: RecipientAdmin, OrderID: payload.OrderID, PartialResult: result, cause: err}
	}

	if !payload.Customer.HasEmail() {
		logger.Warn("customer email missing, skipping customer payment email",
			"order_id", payload.OrderID,
			"source", payload.Source,
			"financial_status", payload.FinancialStatus,
		)
		result.CustomerSkipped = true
		d.count(ctx, RecipientCustomer, core.DispatchStatusSkipped)
		d.recordStatus(ctx, payload, RecipientCustomer, TemplateCustomerPayment, "", core.DispatchStatusSkipped, "customer email missing")
		return result, nil
	}

	if d.alreadySentToCustomer(ctx, payload) {
		logger.Info("customer payment email already sent, skipping",
			"order_id", payload.OrderID,
			"financial_status", payload.FinancialStatus,
		)
		result.CustomerSkipped = true
		d.count(ctx, RecipientCustomer, core.DispatchStatusSkipped)
		return result, nil
	}

	customerMsg, err := d.customerMessage(payload)
	if err == nil {
		result.CustomerMessageID, err = d.deliver(ctx, RecipientCustomer, customerMsg)
	}
	d.record(ctx, payload, RecipientCustomer, TemplateCustomerPayment, result.CustomerMessageID, err)
	if err != nil {
		logger.Error("failed to send customer payment email",
			"order_id", payload.OrderID,
			"source", payload.Source,
			"financial_status", payload.FinancialStatus,
			"admin_message_id", result.AdminMessageID,
			"reason", err.Error(),
		)
		return result, &SendError{Stage: RecipientCustomer, OrderID: payload.OrderID, PartialResult: result, cause: err}
	}
	return result, nil
}

func (d *Dispatcher) adminMessage(payload PaymentEmailPayload) (core.EmailMessage, error) {
	body, err := d.renderer.RenderAdmin(d.config.AppURL, payload)
	if err != nil {
		return core.EmailMessage{}, fmt.Errorf("render admin email: %w", err)
	}
	replyTo := d.config.SupportEmail
	if payload.Customer.HasEmail() {
		replyTo = payload.Customer.Email
	}
	return core.EmailMessage{
		From:    d.config.From,
		To:      []string{d.config.AdminEmail},
		Subject: AdminSubject(payload),
		HTML:    body.HTML,
		Text:    body.Text,
		ReplyTo: replyTo,
		Tags: map[string]string{
			"recipient": RecipientAdmin,
			"status":    payload.FinancialStatus,
		},
	}, nil
}

func (d *Dispatcher) customerMessage(payload PaymentEmailPayload) (core.EmailMessage, error) {
	body, err := d.renderer.RenderCustomer(d.config.AppURL, payload)
	if err != nil {
		return core.EmailMessage{}, fmt.Errorf("render customer email: %w", err)
	}
	return core.EmailMessage{
		From:    d.config.From,
		To:      []string{payload.Customer.Email},
		Subject: CustomerSubject(payload, d.config.Brand),
		HTML:    body.HTML,
		Text:    body.Text,
		ReplyTo: d.config.SupportEmail,
		Tags: map[string]string{
			"recipient": RecipientCustomer,
			"status":    payload.FinancialStatus,
		},
	}, nil
}

func (d *Dispatcher) deliver(ctx context.Context, recipient string, msg core.EmailMessage) (string, error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	defer cancel()

	started := d.now()
	messageID, err := d.sender.Send(sendCtx, msg)
	d.metrics.ObserveHistogram(ctx, MetricEmailDuration,
		float64(d.now().Sub(started).Milliseconds()),
		map[string]string{"recipient": recipient},
	)
	if err == nil && sendCtx.Err() != nil {
		err = sendCtx.Err()
	}
	if err == nil && strings.TrimSpace(messageID) == "" {
		err = ErrMissingMessageID
	}
	if err != nil {
		d.count(ctx, recipient, core.DispatchStatusFailed)
		return "", err
	}
	d.count(ctx, recipient, core.DispatchStatusSent)
	return strings.TrimSpace(messageID), nil
}

func (d *Dispatcher) count(ctx context.Context, recipient string, status string) {
	d.metrics.IncCounter(ctx, MetricEmailTotal, 1, map[string]string{
		"recipient": recipient,
		"status":    status,
	})
}

func (d *Dispatcher) alreadySentToCustomer(ctx context.Context, payload PaymentEmailPayload) bool {
	if d.ledger == nil || !d.config.SuppressDuplicateCustomerEmails {
		return false
	}
	seen, err := d.ledger.Seen(ctx, DispatchKey(payload, RecipientCustomer))
	if err != nil {
		d.logger.WithContext(ctx).Warn("notification ledger lookup failed",
			"order_id", payload.OrderID,
			"error", err.Error(),
		)
		return false
	}
	return seen
}

func (d *Dispatcher) record(ctx context.Context, payload PaymentEmailPayload, recipient string, template string, messageID string, sendErr error) {
	if sendErr != nil {
		d.recordStatus(ctx, payload, recipient, template, "", core.DispatchStatusFailed, sendErr.Error())
		return
	}
	d.recordStatus(ctx, payload, recipient, template, messageID, core.DispatchStatusSent, "")
}

func (d *Dispatcher) recordStatus(
	ctx context.Context,
	payload PaymentEmailPayload,
	recipient string,
	template string,
	messageID string,
	status string,
	reason string,
) {
	if d.ledger == nil {
		return
	}
	key := DispatchKey(payload, recipient)
	if status != core.DispatchStatusSent {
		key = key + ":" + status + ":" + uuid.NewString()
	}
	err := d.ledger.Record(ctx, core.NotificationDispatchRecord{
		OrderID:        payload.OrderID,
		Recipient:      recipient,
		Template:       template,
		MessageID:      messageID,
		IdempotencyKey: key,
		Status:         status,
		Error:          reason,
		Metadata: map[string]any{
			"source":           payload.Source,
			"financial_status": payload.FinancialStatus,
			"amount":           payload.Amount.StringFixed(2),
			"currency":         payload.Currency,
			"customer_email":   payload.Customer.Email,
		},
	})
	if err != nil {
		d.logger.WithContext(ctx).Warn("notification ledger record failed",
			"order_id", payload.OrderID,
			"recipient", recipient,
			"error", err.Error(),
		)
	}
}

// DispatchKey identifies a sent email for one order, recipient and status.
func DispatchKey(payload PaymentEmailPayload, recipient string) string {
	return fmt.Sprintf("payment_email:%s:%s:%s", payload.OrderID, recipient, payload.FinancialStatus)
}

func AdminSubject(payload PaymentEmailPayload) string {
	return fmt.Sprintf("%s order received - %s (%s)", statusLabel(payload.FinancialStatus), payload.OrderID, payload.FinancialStatus)
}

func CustomerSubject(payload PaymentEmailPayload, brand string) string {
	switch payload.FinancialStatus {
	case "paid":
		return "Thanks for your purchase - " + brand
	case "voided":
		return "Your order payment was voided - " + brand
	default:
		return "Order update - " + payload.OrderID
	}
}

func statusLabel(status string) string {
	switch status {
	case "paid":
		return "New paid"
	case "voided":
		return "Voided"
	case "refunded", "partially_refunded":
		return "Refunded"
	default:
		return "Updated"
	}
}
