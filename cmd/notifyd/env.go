package main

import (
	"errors"
	"fmt"

	glog "github.com/goliatone/go-logger/glog"
	ordernotify "github.com/goliatone/go-order-notify"
	"github.com/goliatone/go-order-notify/adapters/gologger"
	"github.com/goliatone/go-order-notify/adapters/prometheus"
	"github.com/goliatone/go-order-notify/adapters/redisdlq"
	sqlstore "github.com/goliatone/go-order-notify/store/sql"
)

// environment holds everything built from one resolved config.
type environment struct {
	config ordernotify.Config
	logger glog.Logger
	app    *ordernotify.App
	stores *sqlstore.RepositoryFactory
	queue  *redisdlq.Queue

	closers []func() error
}

func bootstrap(g *Globals, rt *runtime) (*environment, error) {
	cfg, err := ordernotify.LoadConfig(rt.ctx, g.overrides())
	if err != nil {
		return nil, err
	}

	provider, err := gologger.New(rt.errOut, cfg.LogLevel, gologger.WithStaticFields(map[string]any{
		"service": cfg.ServiceName,
	}))
	if err != nil {
		return nil, err
	}
	env := &environment{
		config: cfg,
		logger: provider.GetLogger("notifyd"),
	}

	sender, err := rt.newSender(cfg)
	if err != nil {
		return nil, err
	}
	deps := ordernotify.Dependencies{
		Sender:         sender,
		LoggerProvider: provider,
	}

	if cfg.Metrics.Enabled {
		recorder := prometheus.NewRecorder(
			prometheus.WithLogger(provider.GetLogger("metrics")),
			prometheus.WithRuntimeCollectors(),
		)
		deps.Metrics = recorder
		deps.MetricsHandler = recorder.Handler()
	}

	if cfg.Persistence.Enabled() {
		client, err := sqlstore.Open(rt.ctx, cfg.Persistence)
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, client.Close)
		stores, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
		if err != nil {
			_ = env.Close()
			return nil, err
		}
		env.stores = stores
		deps.Dispatches = stores.NotificationDispatchStore()
		deps.Deliveries = stores.WebhookDeliveryStore()
	}

	if cfg.DLQ.RedisAddr != "" {
		queue, err := redisdlq.Dial(rt.ctx, cfg.DLQ.RedisAddr,
			redisdlq.WithKey(cfg.DLQ.Key),
			redisdlq.WithLogger(provider.GetLogger("dlq")),
			redisdlq.WithMetrics(deps.Metrics),
			redisdlq.WithTags(map[string]string{"queue": cfg.DLQ.Key}),
		)
		if err != nil {
			_ = env.Close()
			return nil, err
		}
		env.closers = append(env.closers, queue.Close)
		env.queue = queue
		deps.DeadLetters = queue
	}

	app, err := ordernotify.NewApp(cfg, deps)
	if err != nil {
		_ = env.Close()
		return nil, err
	}
	env.app = app
	return env, nil
}

func (e *environment) requireStores() (*sqlstore.RepositoryFactory, error) {
	if e == nil || e.stores == nil {
		return nil, fmt.Errorf("a ledger database is required (set DATABASE_URL or --database-url)")
	}
	return e.stores, nil
}

func (e *environment) Close() error {
	if e == nil {
		return nil
	}
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
