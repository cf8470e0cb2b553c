package templates

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/goliatone/go-order-notify/core"
	"github.com/goliatone/go-order-notify/notifications"
)

//go:embed files/*.tmpl
var files embed.FS

const (
	adminHTML    = "admin.html.tmpl"
	adminText    = "admin.txt.tmpl"
	customerHTML = "customer.html.tmpl"
	customerText = "customer.txt.tmpl"
)

type Config struct {
	Brand        string
	SupportEmail string
	Locale       string
}

// Renderer renders the payment emails from embedded templates. It is safe
// for concurrent use once constructed.
type Renderer struct {
	config Config
	html   *htmltemplate.Template
	text   *texttemplate.Template
	money  MoneyFormatter
}

func NewRenderer(cfg Config) (*Renderer, error) {
	if strings.TrimSpace(cfg.Brand) == "" {
		cfg.Brand = core.DefaultSenderName
	}
	if strings.TrimSpace(cfg.SupportEmail) == "" {
		cfg.SupportEmail = core.DefaultSupportEmail
	}
	html, err := htmltemplate.ParseFS(files, "files/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("templates: parse html templates: %w", err)
	}
	text, err := texttemplate.ParseFS(files, "files/*.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("templates: parse text templates: %w", err)
	}
	return &Renderer{
		config: cfg,
		html:   html,
		text:   text,
		money:  NewMoneyFormatter(cfg.Locale),
	}, nil
}

func (r *Renderer) RenderAdmin(appURL string, payload notifications.PaymentEmailPayload) (notifications.RenderedEmail, error) {
	view := r.baseView(appURL, payload)
	view.PreviewText = "New " + payload.FinancialStatus + " order " + payload.OrderID
	view.Eyebrow = "Admin payment alert"
	view.Title = adminTitle(payload.FinancialStatus)
	view.Subtitle = "A payment update was received. Review the order details below."
	view.CTALabel = "Open " + r.config.Brand
	view.CustomerName = customerName(payload.Customer.FirstName, payload.Customer.LastName, payload.Customer.Email, "Unknown customer")
	return r.render(adminHTML, adminText, view)
}

func (r *Renderer) RenderCustomer(appURL string, payload notifications.PaymentEmailPayload) (notifications.RenderedEmail, error) {
	view := r.baseView(appURL, payload)
	statusCopy := StatusCopyFor(payload.FinancialStatus)
	view.PreviewText = fmt.Sprintf("Order %s update: %s", payload.OrderID, payload.FinancialStatus)
	view.Eyebrow = statusCopy.Eyebrow
	view.Title = fmt.Sprintf("%s %s.", statusCopy.Title, firstNameOr(payload.Customer.FirstName, "there"))
	view.Subtitle = statusCopy.Subtitle
	view.CTALabel = "Visit " + r.config.Brand
	return r.render(customerHTML, customerText, view)
}

func (r *Renderer) render(htmlName string, textName string, view emailView) (notifications.RenderedEmail, error) {
	var html bytes.Buffer
	if err := r.html.ExecuteTemplate(&html, htmlName, view); err != nil {
		return notifications.RenderedEmail{}, fmt.Errorf("templates: render %s: %w", htmlName, err)
	}
	var text bytes.Buffer
	if err := r.text.ExecuteTemplate(&text, textName, view); err != nil {
		return notifications.RenderedEmail{}, fmt.Errorf("templates: render %s: %w", textName, err)
	}
	return notifications.RenderedEmail{
		HTML: html.String(),
		Text: strings.TrimSpace(text.String()) + "\n",
	}, nil
}

type emailView struct {
	Brand           string
	AppURL          string
	LogoURL         string
	SupportEmail    string
	PreviewText     string
	Eyebrow         string
	Title           string
	Subtitle        string
	CTALabel        string
	OrderID         string
	Amount          string
	EventAt         string
	Source          string
	FinancialStatus string
	CancelReason    string
	CancelledAt     string
	CustomerName    string
	CustomerEmail   string
	ItemCount       int
	Items           []itemView
	Shipping        *notifications.ShippingAddress
}

type itemView struct {
	Quantity  int
	Title     string
	UnitPrice string
}

func (r *Renderer) baseView(appURL string, payload notifications.PaymentEmailPayload) emailView {
	appURL = strings.TrimRight(strings.TrimSpace(appURL), "/")
	view := emailView{
		Brand:           r.config.Brand,
		AppURL:          appURL,
		LogoURL:         appURL + "/logo.png",
		SupportEmail:    r.config.SupportEmail,
		OrderID:         payload.OrderID,
		Amount:          r.money.Format(payload.Amount, payload.Currency),
		EventAt:         FormatTimestamp(payload.EventAt),
		Source:          payload.Source,
		FinancialStatus: payload.FinancialStatus,
		CancelReason:    payload.CancelReason,
		CustomerEmail:   payload.Customer.Email,
		Shipping:        payload.ShippingAddress,
		Items:           make([]itemView, 0, len(payload.Items)),
	}
	if payload.CancelledAt != nil {
		view.CancelledAt = FormatTimestamp(*payload.CancelledAt)
	}
	for _, item := range payload.Items {
		row := itemView{Quantity: item.Quantity, Title: item.Title}
		if item.UnitPrice != nil {
			row.UnitPrice = r.money.Format(*item.UnitPrice, payload.Currency)
		}
		view.Items = append(view.Items, row)
		view.ItemCount += item.Quantity
	}
	return view
}

type StatusCopy struct {
	Eyebrow  string
	Title    string
	Subtitle string
}

// StatusCopyFor picks the customer-facing wording for a financial status.
func StatusCopyFor(status string) StatusCopy {
	switch status {
	case "paid":
		return StatusCopy{
			Eyebrow:  "Payment received",
			Title:    "Thank you for your purchase,",
			Subtitle: "Your payment was successful and your order is now being prepared.",
		}
	case "voided":
		return StatusCopy{
			Eyebrow:  "Order update",
			Title:    "Your order payment was voided,",
			Subtitle: "We received a payment status update for your order and wanted to keep you informed.",
		}
	default:
		return StatusCopy{
			Eyebrow:  "Order update",
			Title:    fmt.Sprintf("Your order status is now %s,", status),
			Subtitle: "We received a payment-related update for your order and wanted to keep you informed.",
		}
	}
}

func adminTitle(status string) string {
	switch status {
	case "paid":
		return "A new order has been paid"
	case "voided":
		return "An order payment was voided"
	default:
		return "An order payment status changed"
	}
}

func customerName(first string, last string, fallback string, unknown string) string {
	name := strings.TrimSpace(strings.Join([]string{strings.TrimSpace(first), strings.TrimSpace(last)}, " "))
	if name != "" {
		return name
	}
	if strings.TrimSpace(fallback) != "" {
		return strings.TrimSpace(fallback)
	}
	return unknown
}

func firstNameOr(first string, fallback string) string {
	if name := strings.TrimSpace(first); name != "" {
		return name
	}
	return fallback
}

var _ notifications.Renderer = (*Renderer)(nil)
