package webhooks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-order-notify/core"
)

var (
	ErrInvalidJSON = errors.New("webhooks: invalid json body")

	decimalPattern  = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Issue is one field-level schema violation. Path is the dot-joined field
// path, with array indexes as segments ("line_items.0.quantity").
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type Issues []Issue

func (i Issues) Error() string {
	parts := make([]string, 0, len(i))
	for _, issue := range i {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Path, issue.Message))
	}
	return "webhooks: invalid payload: " + strings.Join(parts, "; ")
}

// AsError returns the issues as a validation envelope, or nil when empty.
func (i Issues) AsError() error {
	if len(i) == 0 {
		return nil
	}
	fields := make([]goerrors.FieldError, 0, len(i))
	for _, issue := range i {
		fields = append(fields, goerrors.FieldError{Field: issue.Path, Message: issue.Message})
	}
	return goerrors.NewValidation("webhooks: invalid payload", fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
}

// DecodeJSON parses a body into a generic JSON tree. Numbers are kept as
// json.Number so identifiers keep their literal digits.
func DecodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after json value", ErrInvalidJSON)
	}
	return value, nil
}

// ParseOrderWebhook converts an untrusted JSON tree into an OrderWebhook.
// All issues are collected in one pass; the webhook is only meaningful when
// the returned issues are empty. Unknown fields are ignored.
func ParseOrderWebhook(raw any) (OrderWebhook, Issues) {
	d := &decoder{typed: map[string]bool{}}
	webhook := d.orderWebhook(raw)
	if len(d.issues) > 0 && d.typed[""] {
		return OrderWebhook{}, d.issues
	}

	issues := append(Issues(nil), d.issues...)
	for _, issue := range flattenRuleErrors(webhook.Validate()) {
		if d.typed[issue.Path] {
			continue
		}
		issues = append(issues, issue)
	}
	if len(issues) > 0 {
		return OrderWebhook{}, issues
	}
	return webhook, nil
}

// Parse is DecodeJSON followed by ParseOrderWebhook.
func Parse(body []byte) (OrderWebhook, Issues, error) {
	raw, err := DecodeJSON(body)
	if err != nil {
		return OrderWebhook{}, nil, err
	}
	webhook, issues := ParseOrderWebhook(raw)
	return webhook, issues, nil
}

func (w OrderWebhook) Validate() error {
	return validation.ValidateStruct(&w,
		validation.Field(&w.Currency, validation.Match(currencyPattern).Error(currencyMessage("currency"))),
		validation.Field(&w.PresentmentCurrency, validation.Match(currencyPattern).Error(currencyMessage("presentment_currency"))),
		validation.Field(&w.TotalPrice, decimalRule("total_price")),
		validation.Field(&w.CurrentTotalPrice, decimalRule("current_total_price")),
		validation.Field(&w.SubtotalPrice, decimalRule("subtotal_price")),
		validation.Field(&w.TotalTax, decimalRule("total_tax")),
		validation.Field(&w.ProcessedAt, datetimeRule("processed_at")),
		validation.Field(&w.UpdatedAt, datetimeRule("updated_at")),
		validation.Field(&w.CreatedAt, datetimeRule("created_at")),
		validation.Field(&w.CancelledAt, datetimeRule("cancelled_at")),
		validation.Field(&w.LineItems),
	)
}

func (i LineItem) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Quantity,
			validation.Required.Error("item quantity must be at least 1"),
			validation.Min(1).Error("item quantity must be at least 1"),
		),
		validation.Field(&i.Price, validation.Match(decimalPattern).Error(itemPriceMessage)),
	)
}

const itemPriceMessage = "item price must be a decimal string"

func currencyMessage(field string) string { return field + " must be a 3-letter ISO code" }

func decimalMessage(field string) string { return field + " must be a decimal string" }

func datetimeMessage(field string) string { return field + " must be a valid ISO datetime" }

func decimalRule(field string) validation.Rule {
	return validation.Match(decimalPattern).Error(decimalMessage(field))
}

func datetimeRule(field string) validation.Rule {
	return validation.Date(time.RFC3339).Error(datetimeMessage(field))
}

func flattenRuleErrors(err error) Issues {
	if err == nil {
		return nil
	}
	var out Issues
	flattenInto("", err, &out)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Path < out[b].Path })
	return out
}

func flattenInto(prefix string, err error, out *Issues) {
	var nested validation.Errors
	if errors.As(err, &nested) {
		for key, child := range nested {
			if child == nil {
				continue
			}
			flattenInto(joinPath(prefix, key), child, out)
		}
		return
	}
	*out = append(*out, Issue{Path: prefix, Message: err.Error()})
}

type decoder struct {
	issues Issues
	typed  map[string]bool
}

func (d *decoder) fail(path string, message string) {
	d.issues = append(d.issues, Issue{Path: path, Message: message})
	d.typed[path] = true
}

func (d *decoder) orderWebhook(raw any) OrderWebhook {
	obj, ok := raw.(map[string]any)
	if !ok {
		d.fail("", "payload must be a JSON object")
		return OrderWebhook{}
	}

	return OrderWebhook{
		ID:                  d.orderID(obj),
		Name:                d.optionalString(obj, "name", ""),
		OrderNumber:         d.optionalInteger(obj, "order_number", ""),
		Email:               d.optionalString(obj, "email", ""),
		ContactEmail:        d.optionalString(obj, "contact_email", ""),
		Currency:            strings.ToUpper(d.patternString(obj, "currency", "", currencyMessage("currency"))),
		PresentmentCurrency: strings.ToUpper(d.patternString(obj, "presentment_currency", "", currencyMessage("presentment_currency"))),
		FinancialStatus:     d.optionalString(obj, "financial_status", ""),
		CancelReason:        d.optionalString(obj, "cancel_reason", ""),
		TotalPrice:          d.patternString(obj, "total_price", "", decimalMessage("total_price")),
		CurrentTotalPrice:   d.patternString(obj, "current_total_price", "", decimalMessage("current_total_price")),
		SubtotalPrice:       d.patternString(obj, "subtotal_price", "", decimalMessage("subtotal_price")),
		TotalTax:            d.patternString(obj, "total_tax", "", decimalMessage("total_tax")),
		ProcessedAt:         d.patternString(obj, "processed_at", "", datetimeMessage("processed_at")),
		UpdatedAt:           d.patternString(obj, "updated_at", "", datetimeMessage("updated_at")),
		CreatedAt:           d.patternString(obj, "created_at", "", datetimeMessage("created_at")),
		CancelledAt:         d.patternString(obj, "cancelled_at", "", datetimeMessage("cancelled_at")),
		Customer:            d.customer(obj),
		ShippingAddress:     d.address(obj, "shipping_address"),
		LineItems:           d.lineItems(obj),
	}
}

func (d *decoder) orderID(obj map[string]any) OrderID {
	value, ok := obj["id"]
	if !ok || value == nil {
		d.fail("id", "id is required")
		return OrderID{}
	}
	switch typed := value.(type) {
	case string:
		if strings.TrimSpace(typed) == "" {
			d.fail("id", "id is required")
			return OrderID{}
		}
		return StringOrderID(typed)
	case json.Number:
		return NumericOrderID(formatNumber(typed))
	default:
		d.fail("id", "id must be a string or number")
		return OrderID{}
	}
}

func (d *decoder) customer(obj map[string]any) *Customer {
	section, ok := d.optionalObject(obj, "customer", "customer")
	if !ok {
		return nil
	}
	return &Customer{
		Email:     d.optionalString(section, "email", "customer"),
		FirstName: d.optionalString(section, "first_name", "customer"),
		LastName:  d.optionalString(section, "last_name", "customer"),
	}
}

func (d *decoder) address(obj map[string]any, key string) *Address {
	section, ok := d.optionalObject(obj, key, key)
	if !ok {
		return nil
	}
	return &Address{
		Address1: d.optionalString(section, "address1", key),
		Address2: d.optionalString(section, "address2", key),
		City:     d.optionalString(section, "city", key),
		Province: d.optionalString(section, "province", key),
		Zip:      d.optionalString(section, "zip", key),
		Country:  d.optionalString(section, "country", key),
	}
}

func (d *decoder) lineItems(obj map[string]any) []LineItem {
	value, ok := obj["line_items"]
	if !ok || value == nil {
		d.fail("line_items", "line_items is required")
		return nil
	}
	list, ok := value.([]any)
	if !ok {
		d.fail("line_items", "line_items must be an array")
		return nil
	}
	items := make([]LineItem, 0, len(list))
	for index, entry := range list {
		path := joinPath("line_items", strconv.Itoa(index))
		item, ok := entry.(map[string]any)
		if !ok {
			d.fail(path, "line item must be an object")
			items = append(items, LineItem{Quantity: 1})
			continue
		}
		items = append(items, LineItem{
			Title:    d.optionalString(item, "title", path),
			Name:     d.optionalString(item, "name", path),
			Quantity: d.quantity(item, path),
			Price:    d.patternString(item, "price", path, itemPriceMessage),
		})
	}
	return items
}

func (d *decoder) quantity(item map[string]any, parent string) int {
	path := joinPath(parent, "quantity")
	value, ok := item["quantity"]
	if !ok || value == nil {
		d.fail(path, "item quantity is required")
		return 0
	}
	number, ok := value.(json.Number)
	if !ok {
		d.fail(path, "item quantity must be an integer")
		return 0
	}
	if parsed, err := number.Int64(); err == nil {
		return int(parsed)
	}
	// 1.0 is the integer 1 in JSON.
	parsed, err := number.Float64()
	if err != nil || parsed != math.Trunc(parsed) || math.Abs(parsed) > math.MaxInt32 {
		d.fail(path, "item quantity must be an integer")
		return 0
	}
	return int(parsed)
}

func (d *decoder) optionalObject(obj map[string]any, key string, path string) (map[string]any, bool) {
	value, ok := obj[key]
	if !ok || value == nil {
		return nil, false
	}
	section, ok := value.(map[string]any)
	if !ok {
		d.fail(path, key+" must be an object")
		return nil, false
	}
	return section, true
}

func (d *decoder) optionalString(obj map[string]any, key string, parent string) string {
	text, _ := d.presentString(obj, key, parent)
	return text
}

// presentString reports whether key held a string, even a blank one.
func (d *decoder) presentString(obj map[string]any, key string, parent string) (string, bool) {
	value, ok := obj[key]
	if !ok || value == nil {
		return "", false
	}
	text, ok := value.(string)
	if !ok {
		d.fail(joinPath(parent, key), key+" must be a string")
		return "", false
	}
	return strings.TrimSpace(text), true
}

// patternString is for fields whose value rules skip empty input: a key that
// is present but blank after trimming fails with the rule's message.
func (d *decoder) patternString(obj map[string]any, key string, parent string, message string) string {
	text, present := d.presentString(obj, key, parent)
	if present && text == "" {
		d.fail(joinPath(parent, key), message)
	}
	return text
}

func (d *decoder) optionalInteger(obj map[string]any, key string, parent string) *int64 {
	value, ok := obj[key]
	if !ok || value == nil {
		return nil
	}
	number, ok := value.(json.Number)
	if !ok {
		d.fail(joinPath(parent, key), key+" must be an integer")
		return nil
	}
	parsed, err := number.Int64()
	if err != nil {
		d.fail(joinPath(parent, key), key+" must be an integer")
		return nil
	}
	return &parsed
}

// formatNumber keeps every digit of integer ids, including those beyond
// int64. Fractional or exponent forms are formatted as floats.
func formatNumber(number json.Number) string {
	if parsed, err := number.Int64(); err == nil {
		return strconv.FormatInt(parsed, 10)
	}
	if parsed, ok := new(big.Int).SetString(number.String(), 10); ok {
		return parsed.String()
	}
	if parsed, err := number.Float64(); err == nil {
		return strconv.FormatFloat(parsed, 'f', -1, 64)
	}
	return number.String()
}

func joinPath(parent string, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
