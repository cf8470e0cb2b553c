package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type envBinding struct {
	path    []string
	boolean bool
}

var envBindings = map[string]envBinding{
	"SERVICE_NAME":              {path: []string{"service_name"}},
	"LOG_LEVEL":                 {path: []string{"log_level"}},
	"HTTP_ADDR":                 {path: []string{"http", "addr"}},
	"WEBHOOK_PATH":              {path: []string{"http", "webhook_path"}},
	"RESEND_API_KEY":            {path: []string{"email", "resend_api_key"}},
	"ADMIN_NOTIFICATION_EMAIL":  {path: []string{"email", "admin_address"}},
	"EMAIL_SENDER_DOMAIN":       {path: []string{"email", "sender_domain"}},
	"EMAIL_SENDER_NAME":         {path: []string{"email", "sender_name"}},
	"EMAIL_SUPPORT_ADDRESS":     {path: []string{"email", "support_email"}},
	"EMAIL_SEND_TIMEOUT":        {path: []string{"email", "send_timeout"}},
	"APP_URL":                   {path: []string{"app", "url"}},
	"DEFAULT_CURRENCY":          {path: []string{"app", "default_currency"}},
	"SHOPIFY_WEBHOOK_SECRET":    {path: []string{"webhook", "secret"}},
	"WEBHOOK_REQUIRE_SIGNATURE": {path: []string{"webhook", "require_signature"}, boolean: true},
	"WEBHOOK_DEDUPE":            {path: []string{"webhook", "dedupe"}, boolean: true},
	"DATABASE_DRIVER":           {path: []string{"persistence", "driver"}},
	"DATABASE_URL":              {path: []string{"persistence", "dsn"}},
	"DATABASE_DEBUG":            {path: []string{"persistence", "debug"}, boolean: true},
	"REDIS_ADDR":                {path: []string{"dlq", "redis_addr"}},
	"DLQ_KEY":                   {path: []string{"dlq", "key"}},
	"METRICS_ENABLED":           {path: []string{"metrics", "enabled"}, boolean: true},
}

// EnvConfigLoader maps process environment variables onto the nested raw
// config shape. Empty values are treated as unset.
type EnvConfigLoader struct {
	Lookup func(key string) (string, bool)
}

func NewEnvConfigLoader() EnvConfigLoader {
	return EnvConfigLoader{Lookup: os.LookupEnv}
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw := map[string]any{}
	for key, binding := range envBindings {
		value, ok := lookup(key)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		var typed any = strings.TrimSpace(value)
		if binding.boolean {
			parsed, err := strconv.ParseBool(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("core: %s must be a boolean: %w", key, err)
			}
			typed = parsed
		}
		setPath(raw, binding.path, typed)
	}
	return raw, nil
}

func setPath(root map[string]any, path []string, value any) {
	current := root
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load builds the raw layer only. Validation is deferred until all layers
// are merged, since flags may supply values the environment lacks.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil || p.Loader == nil {
		return defaults, nil
	}
	raw, err := p.Loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw, cfgx.WithDefaults(defaults))
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("environment", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("environment"),
		),
		opts.NewLayer(
			opts.NewScope("flags", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("flags"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig resolves defaults < provider < runtime and validates the result.
func LoadConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(NewEnvConfigLoader())
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "service_name", cfg.ServiceName, includeZero)
	putString(layer, "log_level", cfg.LogLevel, includeZero)

	putSection(layer, "http", includeZero, func(section map[string]any) {
		putString(section, "addr", cfg.HTTP.Addr, includeZero)
		putString(section, "webhook_path", cfg.HTTP.WebhookPath, includeZero)
	})
	putSection(layer, "email", includeZero, func(section map[string]any) {
		putString(section, "resend_api_key", cfg.Email.ResendAPIKey, includeZero)
		putString(section, "admin_address", cfg.Email.AdminAddress, includeZero)
		putString(section, "sender_domain", cfg.Email.SenderDomain, includeZero)
		putString(section, "sender_name", cfg.Email.SenderName, includeZero)
		putString(section, "support_email", cfg.Email.SupportEmail, includeZero)
		putString(section, "send_timeout", cfg.Email.SendTimeout, includeZero)
	})
	putSection(layer, "app", includeZero, func(section map[string]any) {
		putString(section, "url", cfg.App.URL, includeZero)
		putString(section, "default_currency", cfg.App.DefaultCurrency, includeZero)
	})
	putSection(layer, "webhook", includeZero, func(section map[string]any) {
		putString(section, "secret", cfg.Webhook.Secret, includeZero)
		putBool(section, "require_signature", cfg.Webhook.RequireSignature, includeZero)
		putBool(section, "dedupe", cfg.Webhook.Dedupe, includeZero)
	})
	putSection(layer, "persistence", includeZero, func(section map[string]any) {
		putString(section, "driver", cfg.Persistence.Driver, includeZero)
		putString(section, "dsn", cfg.Persistence.DSN, includeZero)
		putBool(section, "debug", cfg.Persistence.Debug, includeZero)
	})
	putSection(layer, "dlq", includeZero, func(section map[string]any) {
		putString(section, "redis_addr", cfg.DLQ.RedisAddr, includeZero)
		putString(section, "key", cfg.DLQ.Key, includeZero)
	})
	putSection(layer, "metrics", includeZero, func(section map[string]any) {
		putBool(section, "enabled", cfg.Metrics.Enabled, includeZero)
	})
	return layer
}

func putSection(layer map[string]any, key string, includeZero bool, fill func(map[string]any)) {
	section := map[string]any{}
	fill(section)
	if includeZero || len(section) > 0 {
		layer[key] = section
	}
}

func putString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func putBool(layer map[string]any, key string, value bool, includeZero bool) {
	if includeZero || value {
		layer[key] = value
	}
}
