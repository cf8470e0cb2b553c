package inbound

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-order-notify/core"
)

type RouterConfig struct {
	WebhookPath string
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	Logger  core.Logger
}

func NewRouter(receiver http.Handler, cfg RouterConfig) http.Handler {
	path := strings.TrimSpace(cfg.WebhookPath)
	if path == "" {
		path = core.DefaultWebhookPath
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	r.Method(http.MethodPost, path, receiver)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Response{OK: false, Error: MessageMethodNotAllowed})
	})
	return r
}

// RequestLogger logs one line per request. The request id comes from the
// context-bound logger.
func RequestLogger(logger core.Logger) func(http.Handler) http.Handler {
	logger = glog.Ensure(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			requestID := middleware.GetReqID(r.Context())
			if requestID != "" {
				rec.Header().Set("X-Request-Id", requestID)
			}

			next.ServeHTTP(rec, r)

			status := rec.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.WithContext(r.Context()).Info("http.request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", rec.BytesWritten(),
				"duration", time.Since(start).String(),
			)
		})
	}
}
