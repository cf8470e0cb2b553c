package notifications

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-order-notify/core"
	"github.com/goliatone/go-order-notify/webhooks"
	"github.com/shopspring/decimal"
)

const (
	UnknownOrderID         = "Unknown order"
	UnknownFinancialStatus = "unknown"
)

// Normalizer maps a validated order webhook into a PaymentEmailPayload.
// Given the same webhook and clock it always returns the same payload.
type Normalizer struct {
	Now             func() time.Time
	DefaultCurrency string
}

func NewNormalizer(defaultCurrency string) Normalizer {
	return Normalizer{
		Now: func() time.Time {
			return time.Now().UTC()
		},
		DefaultCurrency: defaultCurrency,
	}
}

func (n Normalizer) Normalize(webhook webhooks.OrderWebhook) PaymentEmailPayload {
	items := NormalizeItems(webhook.LineItems)
	reason, cancelledAt := PickCancellation(webhook)
	return PaymentEmailPayload{
		Source:          SourceShopify,
		OrderID:         PickOrderID(webhook),
		EventAt:         PickEventAt(webhook, n.now),
		Amount:          PickAmount(webhook, items),
		Currency:        PickCurrency(webhook, n.DefaultCurrency),
		FinancialStatus: PickFinancialStatus(webhook),
		CancelReason:    reason,
		CancelledAt:     cancelledAt,
		Customer: Customer{
			Email:     PickCustomerEmail(webhook),
			FirstName: customerField(webhook, func(c *webhooks.Customer) string { return c.FirstName }),
			LastName:  customerField(webhook, func(c *webhooks.Customer) string { return c.LastName }),
		},
		Items:           items,
		ShippingAddress: PickShippingAddress(webhook),
	}
}

func (n Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now().UTC()
	}
	return time.Now().UTC()
}

// PickOrderID resolves name, then #order_number, then the raw id.
func PickOrderID(webhook webhooks.OrderWebhook) string {
	if name := strings.TrimSpace(webhook.Name); name != "" {
		return name
	}
	if webhook.OrderNumber != nil {
		return fmt.Sprintf("#%d", *webhook.OrderNumber)
	}
	if id := strings.TrimSpace(webhook.ID.String()); id != "" {
		return id
	}
	return UnknownOrderID
}

// PickEventAt resolves processed_at, then updated_at, then created_at, and
// falls back to the clock.
func PickEventAt(webhook webhooks.OrderWebhook, now func() time.Time) time.Time {
	for _, candidate := range []string{webhook.ProcessedAt, webhook.UpdatedAt, webhook.CreatedAt} {
		if parsed, ok := parseTimestamp(candidate); ok {
			return parsed
		}
	}
	if now == nil {
		return time.Now().UTC()
	}
	return now().UTC()
}

// PickAmount uses the first parseable non-negative order total and otherwise
// sums quantity x unit price over items with a price. The result is never
// negative.
func PickAmount(webhook webhooks.OrderWebhook, items []Item) decimal.Decimal {
	for _, candidate := range []string{webhook.CurrentTotalPrice, webhook.TotalPrice} {
		if value, ok := parseAmount(candidate); ok && !value.IsNegative() {
			return value
		}
	}
	sum := decimal.Zero
	for _, item := range items {
		if item.UnitPrice == nil {
			continue
		}
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	if sum.IsNegative() {
		return decimal.Zero
	}
	return sum
}

func PickCurrency(webhook webhooks.OrderWebhook, fallback string) string {
	for _, candidate := range []string{webhook.Currency, webhook.PresentmentCurrency} {
		if value := strings.ToUpper(strings.TrimSpace(candidate)); value != "" {
			return value
		}
	}
	if value := strings.ToUpper(strings.TrimSpace(fallback)); value != "" {
		return value
	}
	return core.DefaultCurrency
}

func PickFinancialStatus(webhook webhooks.OrderWebhook) string {
	if status := strings.ToLower(strings.TrimSpace(webhook.FinancialStatus)); status != "" {
		return status
	}
	return UnknownFinancialStatus
}

// PickCustomerEmail resolves contact_email, then email, then customer.email.
// Malformed addresses are skipped; "" means the customer email is not sent.
func PickCustomerEmail(webhook webhooks.OrderWebhook) string {
	candidates := []string{webhook.ContactEmail, webhook.Email}
	if webhook.Customer != nil {
		candidates = append(candidates, webhook.Customer.Email)
	}
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if err := validation.Validate(candidate, is.EmailFormat); err != nil {
			continue
		}
		return candidate
	}
	return ""
}

// NormalizeItems keeps the source order. Titles fall back to name and then
// to "Item N" (1-based).
func NormalizeItems(lineItems []webhooks.LineItem) []Item {
	items := make([]Item, 0, len(lineItems))
	for index, lineItem := range lineItems {
		title := strings.TrimSpace(lineItem.Title)
		if title == "" {
			title = strings.TrimSpace(lineItem.Name)
		}
		if title == "" {
			title = fmt.Sprintf("Item %d", index+1)
		}
		item := Item{
			Title:    title,
			Quantity: lineItem.Quantity,
		}
		if price, ok := parseAmount(lineItem.Price); ok {
			item.UnitPrice = &price
		}
		items = append(items, item)
	}
	return items
}

// PickShippingAddress returns nil unless a street line is present.
func PickShippingAddress(webhook webhooks.OrderWebhook) *ShippingAddress {
	address := webhook.ShippingAddress
	if address == nil || strings.TrimSpace(address.Address1) == "" {
		return nil
	}
	return &ShippingAddress{
		Line1:      strings.TrimSpace(address.Address1),
		City:       strings.TrimSpace(address.City),
		Region:     strings.TrimSpace(address.Province),
		PostalCode: strings.TrimSpace(address.Zip),
		Country:    strings.TrimSpace(address.Country),
	}
}

func PickCancellation(webhook webhooks.OrderWebhook) (string, *time.Time) {
	reason := strings.TrimSpace(webhook.CancelReason)
	cancelledAt, ok := parseTimestamp(webhook.CancelledAt)
	if !ok {
		return reason, nil
	}
	return reason, &cancelledAt
}

func customerField(webhook webhooks.OrderWebhook, pick func(*webhooks.Customer) string) string {
	if webhook.Customer == nil {
		return ""
	}
	return strings.TrimSpace(pick(webhook.Customer))
}

func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

func parseAmount(value string) (decimal.Decimal, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, false
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false
	}
	return parsed, true
}
