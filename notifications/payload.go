package notifications

import (
	"time"

	"github.com/shopspring/decimal"
)

const SourceShopify = "shopify"

// PaymentEmailPayload is the canonical record rendered into the admin and
// customer emails. It is built once per delivery and never persisted.
type PaymentEmailPayload struct {
	Source          string           `json:"source"`
	OrderID         string           `json:"orderId"`
	EventAt         time.Time        `json:"eventAt"`
	Amount          decimal.Decimal  `json:"amount"`
	Currency        string           `json:"currency"`
	FinancialStatus string           `json:"financialStatus"`
	CancelReason    string           `json:"cancelReason,omitempty"`
	CancelledAt     *time.Time       `json:"cancelledAt,omitempty"`
	Customer        Customer         `json:"customer"`
	Items           []Item           `json:"items"`
	ShippingAddress *ShippingAddress `json:"shippingAddress,omitempty"`
}

type Customer struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// HasEmail reports whether the customer email can be sent.
func (c Customer) HasEmail() bool {
	return c.Email != ""
}

type Item struct {
	Title     string           `json:"title"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
}

type ShippingAddress struct {
	Line1      string `json:"line1"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}
