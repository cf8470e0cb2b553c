package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-order-notify/core"
)

const (
	ProviderShopify = "shopify"

	HeaderShopifyHMAC      = "X-Shopify-Hmac-Sha256"
	HeaderShopifyTopic     = "X-Shopify-Topic"
	HeaderShopifyWebhookID = "X-Shopify-Webhook-Id"
	HeaderShopifyTriggered = "X-Shopify-Triggered-At"
	HeaderRetryCount       = "X-Retry-Count"
)

const defaultReplayWindow = 5 * time.Minute

// Verifier proves a delivery came from the trusted sender. It runs on the raw
// body before any parsing.
type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

type VerifierFunc func(ctx context.Context, req core.InboundRequest) error

func (f VerifierFunc) Verify(ctx context.Context, req core.InboundRequest) error {
	return f(ctx, req)
}

// NoopVerifier accepts every delivery. It is the default until a signing
// secret is configured.
type NoopVerifier struct{}

func (NoopVerifier) Verify(context.Context, core.InboundRequest) error { return nil }

type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := strings.TrimSpace(HeaderValue(req.Headers, v.Header))
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", strings.TrimSpace(v.Header))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(v.Prefix)))
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	var decoded []byte
	var err error
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
	default:
		decoded, err = hex.DecodeString(signature)
	}
	if err != nil {
		return fmt.Errorf("webhooks: decode signature: %w", err)
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

// ShopifyVerifier checks the base64 HMAC-SHA256 of the body and, when the
// triggered-at header is present, that the delivery is inside the replay
// window.
type ShopifyVerifier struct {
	Secret       string
	ReplayWindow time.Duration
	Now          func() time.Time
}

func NewShopifyVerifier(secret string) ShopifyVerifier {
	return ShopifyVerifier{
		Secret:       strings.TrimSpace(secret),
		ReplayWindow: defaultReplayWindow,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (v ShopifyVerifier) Verify(ctx context.Context, req core.InboundRequest) error {
	sig := HeaderHMACVerifier{
		Header:   HeaderShopifyHMAC,
		Secret:   v.Secret,
		Encoding: "base64",
	}
	if err := sig.Verify(ctx, req); err != nil {
		return err
	}

	triggered := HeaderValue(req.Headers, HeaderShopifyTriggered)
	if triggered == "" {
		return nil
	}
	triggeredAt, err := time.Parse(time.RFC3339Nano, triggered)
	if err != nil {
		return fmt.Errorf("webhooks: parse %s: %w", HeaderShopifyTriggered, err)
	}
	now := time.Now().UTC()
	if v.Now != nil {
		now = v.Now().UTC()
	}
	window := v.ReplayWindow
	if window <= 0 {
		window = defaultReplayWindow
	}
	delta := now.Sub(triggeredAt.UTC())
	if delta < 0 {
		delta = -delta
	}
	if delta > window {
		return fmt.Errorf("webhooks: delivery trigger time outside replay window")
	}
	return nil
}

// DeliveryIDExtractor returns the sender's delivery id, or "" when none is
// available.
type DeliveryIDExtractor func(req core.InboundRequest) string

func HeaderDeliveryIDExtractor(headers ...string) DeliveryIDExtractor {
	keys := append([]string(nil), headers...)
	return func(req core.InboundRequest) string {
		for _, key := range keys {
			if value := HeaderValue(req.Headers, key); value != "" {
				return value
			}
		}
		return ""
	}
}

func NewInboundRequest(providerID string, headers http.Header, body []byte) core.InboundRequest {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			continue
		}
		flat[key] = values[0]
	}
	return core.InboundRequest{
		ProviderID: providerID,
		Headers:    flat,
		Body:       body,
	}
}

func HeaderValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

var (
	_ Verifier = NoopVerifier{}
	_ Verifier = HeaderHMACVerifier{}
	_ Verifier = ShopifyVerifier{}
	_ Verifier = VerifierFunc(nil)
)
