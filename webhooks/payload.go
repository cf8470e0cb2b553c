package webhooks

import "strings"

// OrderID is the platform order identifier, which arrives either as a JSON
// string or a JSON number.
type OrderID struct {
	value   string
	numeric bool
}

func StringOrderID(value string) OrderID {
	return OrderID{value: strings.TrimSpace(value)}
}

func NumericOrderID(value string) OrderID {
	return OrderID{value: strings.TrimSpace(value), numeric: true}
}

func (id OrderID) String() string { return id.value }

func (id OrderID) IsNumeric() bool { return id.numeric }

func (id OrderID) IsZero() bool { return id.value == "" }

type Customer struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type Address struct {
	Address1 string `json:"address1,omitempty"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city,omitempty"`
	Province string `json:"province,omitempty"`
	Zip      string `json:"zip,omitempty"`
	Country  string `json:"country,omitempty"`
}

type LineItem struct {
	Title    string `json:"title,omitempty"`
	Name     string `json:"name,omitempty"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price,omitempty"`
}

// OrderWebhook is the validated order event. Optional fields use the zero
// value for "absent"; nothing downstream reads the raw body.
type OrderWebhook struct {
	ID                  OrderID    `json:"-"`
	Name                string     `json:"name,omitempty"`
	OrderNumber         *int64     `json:"order_number,omitempty"`
	Email               string     `json:"email,omitempty"`
	ContactEmail        string     `json:"contact_email,omitempty"`
	Currency            string     `json:"currency,omitempty"`
	PresentmentCurrency string     `json:"presentment_currency,omitempty"`
	FinancialStatus     string     `json:"financial_status,omitempty"`
	CancelReason        string     `json:"cancel_reason,omitempty"`
	TotalPrice          string     `json:"total_price,omitempty"`
	CurrentTotalPrice   string     `json:"current_total_price,omitempty"`
	SubtotalPrice       string     `json:"subtotal_price,omitempty"`
	TotalTax            string     `json:"total_tax,omitempty"`
	ProcessedAt         string     `json:"processed_at,omitempty"`
	UpdatedAt           string     `json:"updated_at,omitempty"`
	CreatedAt           string     `json:"created_at,omitempty"`
	CancelledAt         string     `json:"cancelled_at,omitempty"`
	Customer            *Customer  `json:"customer,omitempty"`
	ShippingAddress     *Address   `json:"shipping_address,omitempty"`
	LineItems           []LineItem `json:"line_items"`
}

// LogOrderID is the identifier used in logs and receiver responses: the
// human-readable name when present, otherwise the raw id.
func (w OrderWebhook) LogOrderID() string {
	if name := strings.TrimSpace(w.Name); name != "" {
		return name
	}
	return w.ID.String()
}
