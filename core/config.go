package core

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultSenderName   = "Aurora"
	DefaultSupportEmail = "hello@aurora.crystals"
	DefaultCurrency     = "USD"
	DefaultWebhookPath  = "/api/webhooks/payment-succeeded"
	DefaultSendTimeout  = "5s"
	DefaultDLQKey       = "notify:dlq:payment_succeeded"
)

var currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)

type HTTPConfig struct {
	Addr        string `koanf:"addr" mapstructure:"addr"`
	WebhookPath string `koanf:"webhook_path" mapstructure:"webhook_path"`
}

type EmailConfig struct {
	ResendAPIKey string `koanf:"resend_api_key" mapstructure:"resend_api_key"`
	AdminAddress string `koanf:"admin_address" mapstructure:"admin_address"`
	SenderDomain string `koanf:"sender_domain" mapstructure:"sender_domain"`
	SenderName   string `koanf:"sender_name" mapstructure:"sender_name"`
	SupportEmail string `koanf:"support_email" mapstructure:"support_email"`
	SendTimeout  string `koanf:"send_timeout" mapstructure:"send_timeout"`
}

type AppConfig struct {
	URL             string `koanf:"url" mapstructure:"url"`
	DefaultCurrency string `koanf:"default_currency" mapstructure:"default_currency"`
}

type WebhookConfig struct {
	Secret           string `koanf:"secret" mapstructure:"secret"`
	RequireSignature bool   `koanf:"require_signature" mapstructure:"require_signature"`
	Dedupe           bool   `koanf:"dedupe" mapstructure:"dedupe"`
}

type PersistenceConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

type DLQConfig struct {
	RedisAddr string `koanf:"redis_addr" mapstructure:"redis_addr"`
	Key       string `koanf:"key" mapstructure:"key"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled" mapstructure:"enabled"`
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	LogLevel    string            `koanf:"log_level" mapstructure:"log_level"`
	HTTP        HTTPConfig        `koanf:"http" mapstructure:"http"`
	Email       EmailConfig       `koanf:"email" mapstructure:"email"`
	App         AppConfig         `koanf:"app" mapstructure:"app"`
	Webhook     WebhookConfig     `koanf:"webhook" mapstructure:"webhook"`
	Persistence PersistenceConfig `koanf:"persistence" mapstructure:"persistence"`
	DLQ         DLQConfig         `koanf:"dlq" mapstructure:"dlq"`
	Metrics     MetricsConfig     `koanf:"metrics" mapstructure:"metrics"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "order-notify",
		LogLevel:    "info",
		HTTP: HTTPConfig{
			Addr:        ":8080",
			WebhookPath: DefaultWebhookPath,
		},
		Email: EmailConfig{
			SenderName:   DefaultSenderName,
			SupportEmail: DefaultSupportEmail,
			SendTimeout:  DefaultSendTimeout,
		},
		App: AppConfig{
			DefaultCurrency: DefaultCurrency,
		},
		DLQ: DLQConfig{
			Key: DefaultDLQKey,
		},
	}
}

// Validate runs at startup; a process with an invalid config must not serve.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Email.ResendAPIKey) == "" {
		return fmt.Errorf("core: email.resend_api_key is required")
	}
	if strings.TrimSpace(c.Email.AdminAddress) == "" {
		return fmt.Errorf("core: email.admin_address is required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(c.Email.AdminAddress)); err != nil {
		return fmt.Errorf("core: email.admin_address is invalid: %w", err)
	}
	if NormalizeSenderDomain(c.Email.SenderDomain) == "" {
		return fmt.Errorf("core: email.sender_domain is required")
	}
	if support := strings.TrimSpace(c.Email.SupportEmail); support != "" {
		if _, err := mail.ParseAddress(support); err != nil {
			return fmt.Errorf("core: email.support_email is invalid: %w", err)
		}
	}
	if _, err := c.Email.Timeout(); err != nil {
		return err
	}
	if strings.TrimSpace(c.App.URL) == "" {
		return fmt.Errorf("core: app.url is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(c.App.URL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: app.url must be an absolute url")
	}
	if currency := strings.TrimSpace(c.App.DefaultCurrency); currency != "" &&
		!currencyCodePattern.MatchString(strings.ToUpper(currency)) {
		return fmt.Errorf("core: app.default_currency must be a 3-letter ISO code")
	}
	if !strings.HasPrefix(strings.TrimSpace(c.HTTP.WebhookPath), "/") {
		return fmt.Errorf("core: http.webhook_path must start with /")
	}
	if c.Webhook.RequireSignature && strings.TrimSpace(c.Webhook.Secret) == "" {
		return fmt.Errorf("core: webhook.secret is required when webhook.require_signature is set")
	}
	if c.Webhook.Dedupe && strings.TrimSpace(c.Persistence.DSN) == "" {
		return fmt.Errorf("core: persistence.dsn is required when webhook.dedupe is set")
	}
	if dsn := strings.TrimSpace(c.Persistence.DSN); dsn != "" {
		switch c.Persistence.DriverName() {
		case "postgres", "sqlite3":
		default:
			return fmt.Errorf("core: unsupported persistence.driver %q", c.Persistence.Driver)
		}
	}
	return nil
}

// Timeout bounds a single outbound email call.
func (c EmailConfig) Timeout() (time.Duration, error) {
	raw := strings.TrimSpace(c.SendTimeout)
	if raw == "" {
		raw = DefaultSendTimeout
	}
	timeout, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("core: email.send_timeout: %w", err)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("core: email.send_timeout must be positive")
	}
	return timeout, nil
}

func (c EmailConfig) FromAddress() string {
	name := strings.TrimSpace(c.SenderName)
	if name == "" {
		name = DefaultSenderName
	}
	return fmt.Sprintf("%s <noreply@%s>", name, NormalizeSenderDomain(c.SenderDomain))
}

func (c EmailConfig) SupportAddress() string {
	if support := strings.TrimSpace(c.SupportEmail); support != "" {
		return support
	}
	return DefaultSupportEmail
}

func (c AppConfig) BaseURL() string {
	return strings.TrimRight(strings.TrimSpace(c.URL), "/")
}

func (c AppConfig) Currency() string {
	if currency := strings.ToUpper(strings.TrimSpace(c.DefaultCurrency)); currency != "" {
		return currency
	}
	return DefaultCurrency
}

func (c PersistenceConfig) DriverName() string {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "", "postgres", "postgresql", "pg":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return strings.ToLower(strings.TrimSpace(c.Driver))
	}
}

func (c PersistenceConfig) Enabled() bool {
	return strings.TrimSpace(c.DSN) != ""
}

func (c PersistenceConfig) GetDebug() bool {
	return c.Debug
}

func (c PersistenceConfig) GetDriver() string {
	return c.DriverName()
}

func (c PersistenceConfig) GetServer() string {
	return strings.TrimSpace(c.DSN)
}

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c PersistenceConfig) GetOtelIdentifier() string {
	return "go-order-notify"
}

func NormalizeSenderDomain(value string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(value), "@"))
}
