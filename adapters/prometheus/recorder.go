package prometheus

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-order-notify/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DurationBuckets are in milliseconds, sized for outbound email calls.
var DurationBuckets = []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Recorder implements core.MetricsRecorder over client_golang. Vectors are
// created on first use; their label names are fixed by the first call's tags.
type Recorder struct {
	registry   *prometheus.Registry
	namespace  string
	logger     glog.Logger
	mu         sync.Mutex
	counters   map[string]*counterVec
	histograms map[string]*histogramVec
}

type counterVec struct {
	vec    *prometheus.CounterVec
	labels []string
}

type histogramVec struct {
	vec    *prometheus.HistogramVec
	labels []string
}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = sanitizeName(namespace)
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(r *Recorder) {
		r.logger = glog.Ensure(logger)
	}
}

// WithRuntimeCollectors registers the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(r *Recorder) {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
}

func NewRecorder(opts ...Option) *Recorder {
	recorder := &Recorder{
		registry:   prometheus.NewRegistry(),
		logger:     glog.Nop(),
		counters:   map[string]*counterVec{},
		histograms: map[string]*histogramVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value <= 0 {
		return
	}
	vec, err := r.counter(name, tags)
	if err != nil {
		r.logger.Warn("metrics counter unavailable", "metric", name, "error", err)
		return
	}
	counter, err := vec.vec.GetMetricWith(labelValues(vec.labels, tags))
	if err != nil {
		r.logger.Warn("metrics counter labels rejected", "metric", name, "error", err)
		return
	}
	counter.Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec, err := r.histogram(name, tags)
	if err != nil {
		r.logger.Warn("metrics histogram unavailable", "metric", name, "error", err)
		return
	}
	observer, err := vec.vec.GetMetricWith(labelValues(vec.labels, tags))
	if err != nil {
		r.logger.Warn("metrics histogram labels rejected", "metric", name, "error", err)
		return
	}
	observer.Observe(value)
}

func (r *Recorder) counter(name string, tags map[string]string) (*counterVec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sanitizeName(name)
	if existing, ok := r.counters[key]; ok {
		return existing, nil
	}
	labels := labelNames(tags)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      key,
		Help:      "Counter " + name,
	}, labels)
	if err := r.registry.Register(vec); err != nil {
		return nil, err
	}
	entry := &counterVec{vec: vec, labels: labels}
	r.counters[key] = entry
	return entry, nil
}

func (r *Recorder) histogram(name string, tags map[string]string) (*histogramVec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sanitizeName(name)
	if existing, ok := r.histograms[key]; ok {
		return existing, nil
	}
	labels := labelNames(tags)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      key,
		Help:      "Histogram " + name,
		Buckets:   DurationBuckets,
	}, labels)
	if err := r.registry.Register(vec); err != nil {
		return nil, err
	}
	entry := &histogramVec{vec: vec, labels: labels}
	r.histograms[key] = entry
	return entry, nil
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for key := range tags {
		if name := sanitizeName(key); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// labelValues fills every fixed label, blank when the call omitted it.
func labelValues(labels []string, tags map[string]string) prometheus.Labels {
	values := make(prometheus.Labels, len(labels))
	sanitized := make(map[string]string, len(tags))
	for key, value := range tags {
		sanitized[sanitizeName(key)] = value
	}
	for _, label := range labels {
		values[label] = sanitized[label]
	}
	return values
}

// sanitizeName maps dotted metric names onto the Prometheus charset:
// "notifications.email.total" becomes "notifications_email_total".
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for i, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '_':
			b.WriteRune(ch)
		case ch >= '0' && ch <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(ch)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
