package gologger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/rs/zerolog"
)

// Provider hands out named glog loggers that write JSON lines through one
// zerolog root logger.
type Provider struct {
	root zerolog.Logger
}

type Option func(*Provider)

// WithStaticFields attaches fields to every logger the provider creates.
func WithStaticFields(fields map[string]any) Option {
	return func(p *Provider) {
		if len(fields) == 0 {
			return
		}
		p.root = p.root.With().Fields(fields).Logger()
	}
}

func New(w io.Writer, level string, opts ...Option) (*Provider, error) {
	if w == nil {
		w = os.Stdout
	}
	parsed, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	provider := &Provider{
		root: zerolog.New(w).Level(parsed).With().Timestamp().Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	return provider, nil
}

// ParseLevel accepts zerolog level names; blank means info.
func ParseLevel(level string) (zerolog.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	if level == "warning" {
		level = "warn"
	}
	return zerolog.ParseLevel(level)
}

func (p *Provider) GetLogger(name string) glog.Logger {
	if p == nil {
		return glog.Nop()
	}
	logger := p.root
	if name = strings.TrimSpace(name); name != "" {
		logger = logger.With().Str("logger", name).Logger()
	}
	return &Logger{zl: logger}
}

// Logger adapts zerolog to the key/value glog contract.
type Logger struct {
	zl zerolog.Logger
}

func NewLogger(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

func (l *Logger) Trace(msg string, args ...any) { l.emit(l.zl.Trace(), msg, args) }
func (l *Logger) Debug(msg string, args ...any) { l.emit(l.zl.Debug(), msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.emit(l.zl.Info(), msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.emit(l.zl.Warn(), msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.emit(l.zl.Error(), msg, args) }

// Fatal logs at fatal level without exiting; the caller owns process exit.
func (l *Logger) Fatal(msg string, args ...any) {
	l.emit(l.zl.WithLevel(zerolog.FatalLevel), msg, args)
}

// WithContext binds the chi request id when one is present.
func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	if l == nil || ctx == nil {
		return l
	}
	requestID := middleware.GetReqID(ctx)
	if requestID == "" {
		return l
	}
	return &Logger{zl: l.zl.With().Str("request_id", requestID).Logger()}
}

func (l *Logger) emit(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	if len(args) > 0 {
		event = event.Fields(normalizeArgs(args))
	}
	event.Msg(msg)
}

// normalizeArgs pairs keys with values; a trailing key without value is kept
// under "extra" so nothing is dropped.
func normalizeArgs(args []any) map[string]any {
	fields := make(map[string]any, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok || strings.TrimSpace(key) == "" {
			key = "extra"
		}
		if i+1 >= len(args) {
			fields["extra"] = args[i]
			break
		}
		value := args[i+1]
		if err, isErr := value.(error); isErr && err != nil {
			value = err.Error()
		}
		fields[key] = value
	}
	return fields
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
