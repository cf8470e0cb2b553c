package redisdlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-order-notify/core"
)

const (
	DefaultKey        = core.DefaultDLQKey
	MetricDeadLetters = "webhooks.dead_letter.total"
)

var ErrEmpty = errors.New("redisdlq: queue is empty")

// Queue keeps failed deliveries on a Redis list. New letters are pushed on
// the left, Pop takes from the right so the oldest letter comes out first.
type Queue struct {
	client  redis.UniversalClient
	key     string
	logger  glog.Logger
	metrics core.MetricsRecorder
	tags    map[string]string
	now     func() time.Time
}

type Option func(*Queue)

func WithKey(key string) Option {
	return func(q *Queue) {
		if key = strings.TrimSpace(key); key != "" {
			q.key = key
		}
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(q *Queue) {
		q.logger = glog.Ensure(logger)
	}
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(q *Queue) {
		if metrics != nil {
			q.metrics = metrics
		}
	}
}

// WithTags adds fixed tags to every dead letter counter increment.
func WithTags(tags map[string]string) Option {
	return func(q *Queue) {
		q.tags = core.CloneTags(tags)
	}
}

func New(client redis.UniversalClient, opts ...Option) (*Queue, error) {
	if client == nil {
		return nil, fmt.Errorf("redisdlq: redis client is required")
	}
	queue := &Queue{
		client:  client,
		key:     DefaultKey,
		logger:  glog.Nop(),
		metrics: core.NopMetricsRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(queue)
		}
	}
	return queue, nil
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr string, opts ...Option) (*Queue, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("redisdlq: redis address is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisdlq: ping %s: %w", addr, err)
	}
	return New(client, opts...)
}

func (q *Queue) Key() string { return q.key }

// PoisonKey is the list holding raw letters that Pop could not decode.
func (q *Queue) PoisonKey() string { return q.key + ":poison" }

func (q *Queue) Push(ctx context.Context, letter core.DeadLetter) error {
	if q == nil || q.client == nil {
		return fmt.Errorf("redisdlq: queue is not configured")
	}
	if letter.At.IsZero() {
		letter.At = q.now().UTC()
	}
	encoded, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("redisdlq: encode dead letter: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, encoded).Err(); err != nil {
		q.logger.WithContext(ctx).Error("redis dead letter push failed",
			"key", q.key,
			"order_id", letter.OrderID,
			"error", err,
		)
		return fmt.Errorf("redisdlq: push: %w", err)
	}
	tags := core.CloneTags(q.tags)
	tags["provider"] = letter.ProviderID
	q.metrics.IncCounter(ctx, MetricDeadLetters, 1, tags)
	return nil
}

// Pop removes and returns the oldest letter, or ErrEmpty.
func (q *Queue) Pop(ctx context.Context) (core.DeadLetter, error) {
	if q == nil || q.client == nil {
		return core.DeadLetter{}, fmt.Errorf("redisdlq: queue is not configured")
	}
	raw, err := q.client.RPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.DeadLetter{}, ErrEmpty
	}
	if err != nil {
		return core.DeadLetter{}, fmt.Errorf("redisdlq: pop: %w", err)
	}
	var letter core.DeadLetter
	if err := json.Unmarshal(raw, &letter); err != nil {
		q.quarantine(ctx, raw, err)
		return core.DeadLetter{}, fmt.Errorf("redisdlq: decode dead letter: %w", err)
	}
	return letter, nil
}

// quarantine keeps an undecodable letter on the poison list so it is not
// lost once RPOP has removed it.
func (q *Queue) quarantine(ctx context.Context, raw []byte, cause error) {
	logger := q.logger.WithContext(ctx)
	if err := q.client.LPush(ctx, q.PoisonKey(), raw).Err(); err != nil {
		logger.Error("redis dead letter quarantine failed",
			"key", q.PoisonKey(),
			"size", len(raw),
			"error", err,
		)
		return
	}
	logger.Error("redis dead letter undecodable",
		"key", q.key,
		"poison_key", q.PoisonKey(),
		"size", len(raw),
		"error", cause,
	)
}

// Requeue puts a letter back at the oldest end so the next Pop returns it.
func (q *Queue) Requeue(ctx context.Context, letter core.DeadLetter) error {
	if q == nil || q.client == nil {
		return fmt.Errorf("redisdlq: queue is not configured")
	}
	encoded, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("redisdlq: encode dead letter: %w", err)
	}
	return q.client.RPush(ctx, q.key, encoded).Err()
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	if q == nil || q.client == nil {
		return 0, fmt.Errorf("redisdlq: queue is not configured")
	}
	return q.client.LLen(ctx, q.key).Result()
}

func (q *Queue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}

var _ core.DeadLetterQueue = (*Queue)(nil)
