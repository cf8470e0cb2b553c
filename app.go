package ordernotify

import (
	"fmt"
	"net/http"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-order-notify/core"
	"github.com/goliatone/go-order-notify/inbound"
	"github.com/goliatone/go-order-notify/notifications"
	"github.com/goliatone/go-order-notify/templates"
	"github.com/goliatone/go-order-notify/webhooks"
)

// Dependencies are the concrete collaborators built by the process entry
// point. Only Sender is required; the rest degrade to no-ops.
type Dependencies struct {
	Sender         core.EmailSender
	Renderer       notifications.Renderer
	LoggerProvider glog.LoggerProvider
	Logger         glog.Logger
	Metrics        core.MetricsRecorder
	MetricsHandler http.Handler
	Dispatches     core.NotificationDispatchLedger
	Deliveries     webhooks.DeliveryLedger
	DeadLetters    core.DeadLetterQueue
	Verifier       webhooks.Verifier
}

// App wires the dispatcher, receiver and router for one validated config.
type App struct {
	config     Config
	dispatcher *notifications.Dispatcher
	receiver   *inbound.Receiver
	handler    http.Handler
	facade     *Facade
	logger     glog.Logger
}

func NewApp(cfg Config, deps Dependencies) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Sender == nil {
		return nil, fmt.Errorf("ordernotify: email sender is required")
	}
	provider, logger := glog.Resolve(cfg.ServiceName, deps.LoggerProvider, deps.Logger)
	logger = glog.Ensure(logger)
	metrics := deps.Metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}

	renderer := deps.Renderer
	if renderer == nil {
		built, err := templates.NewRenderer(templates.Config{
			Brand:        strings.TrimSpace(cfg.Email.SenderName),
			SupportEmail: cfg.Email.SupportAddress(),
		})
		if err != nil {
			return nil, err
		}
		renderer = built
	}

	dispatcherConfig, err := notifications.DispatcherConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	dispatcherOpts := []notifications.Option{
		notifications.WithLoggerProvider(provider),
		notifications.WithMetrics(metrics),
		notifications.WithNormalizer(notifications.NewNormalizer(cfg.App.Currency())),
	}
	if deps.Dispatches != nil {
		dispatcherOpts = append(dispatcherOpts, notifications.WithLedger(deps.Dispatches))
	}
	dispatcher, err := notifications.NewDispatcher(deps.Sender, renderer, dispatcherConfig, dispatcherOpts...)
	if err != nil {
		return nil, err
	}

	receiverOpts := []inbound.ReceiverOption{
		inbound.WithVerifier(resolveVerifier(cfg, deps.Verifier)),
		inbound.WithReceiverLogger(namedLogger(provider, "inbound", logger)),
		inbound.WithReceiverMetrics(metrics),
	}
	if cfg.Webhook.Dedupe && deps.Deliveries != nil {
		receiverOpts = append(receiverOpts, inbound.WithDeliveryLedger(deps.Deliveries))
	}
	if deps.DeadLetters != nil {
		receiverOpts = append(receiverOpts, inbound.WithDeadLetterQueue(deps.DeadLetters))
	}
	receiver, err := inbound.NewReceiver(dispatcher, receiverOpts...)
	if err != nil {
		return nil, err
	}

	routerConfig := inbound.RouterConfig{
		WebhookPath: cfg.HTTP.WebhookPath,
		Logger:      namedLogger(provider, "http", logger),
	}
	if cfg.Metrics.Enabled {
		routerConfig.Metrics = deps.MetricsHandler
	}

	facade, err := NewFacade(dispatcher)
	if err != nil {
		return nil, err
	}

	return &App{
		config:     cfg,
		dispatcher: dispatcher,
		receiver:   receiver,
		handler:    inbound.NewRouter(receiver, routerConfig),
		facade:     facade,
		logger:     logger,
	}, nil
}

func (a *App) Config() Config { return a.config }

func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Dispatcher() *notifications.Dispatcher { return a.dispatcher }

func (a *App) Facade() *Facade { return a.facade }

func (a *App) Logger() glog.Logger { return a.logger }

// resolveVerifier installs the Shopify HMAC check whenever a secret is
// configured. Without one every delivery passes.
func resolveVerifier(cfg Config, override webhooks.Verifier) webhooks.Verifier {
	if override != nil {
		return override
	}
	if secret := strings.TrimSpace(cfg.Webhook.Secret); secret != "" {
		return webhooks.NewShopifyVerifier(secret)
	}
	return webhooks.NoopVerifier{}
}

func namedLogger(provider glog.LoggerProvider, name string, fallback glog.Logger) glog.Logger {
	if provider == nil {
		return fallback
	}
	if logger := provider.GetLogger(name); logger != nil {
		return logger
	}
	return fallback
}
