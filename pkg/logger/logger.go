// Package logger wraps zerolog with context-carried fields so workflow code can
// tag entries with order, refund, and request identity as it goes.
package logger

import (
	"context"
	"io"
	"maps"
	"os"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	// Format is FormatJSON (default) or FormatConsole.
	Format string
	Output io.Writer
}

type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

type ctxKey struct{}

// ctxEntry is the logger bound to a context plus the fields it was built
// from. A key tagged twice keeps only its latest value.
type ctxEntry struct {
	logger zerolog.Logger
	fields map[string]any
}

func New(opts Options) *Logger {
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	base := zerolog.New(writerFor(opts)).
		Level(level).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()

	return &Logger{base: base, warnStack: opts.WarnStack}
}

func writerFor(opts Options) io.Writer {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), FormatConsole) {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return out
}

// ParseLevel maps a config string to a zerolog level, falling back to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if entry := entryFrom(ctx); entry != nil {
		return &entry.logger
	}
	return &l.base
}

func entryFrom(ctx context.Context) *ctxEntry {
	if ctx == nil {
		return nil
	}
	entry, _ := ctx.Value(ctxKey{}).(*ctxEntry)
	return entry
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	merged := map[string]any{}
	if parent := entryFrom(ctx); parent != nil {
		merged = maps.Clone(parent.fields)
	}
	maps.Copy(merged, fields)

	builder := l.base.With()
	for _, k := range slices.Sorted(maps.Keys(merged)) {
		builder = builder.Interface(k, merged[k])
	}
	return context.WithValue(ctx, ctxKey{}, &ctxEntry{logger: builder.Logger(), fields: merged})
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.WithFields(ctx, map[string]any{key: value})
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithUserID(ctx context.Context, userID string) context.Context {
	return l.WithField(ctx, "user_id", userID)
}

func (l *Logger) WithActorRole(ctx context.Context, role string) context.Context {
	return l.WithField(ctx, "actor_role", role)
}

func (l *Logger) WithOrderID(ctx context.Context, orderID string) context.Context {
	return l.WithField(ctx, "order_id", orderID)
}

func (l *Logger) WithCancellationRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "cancellation_request_id", requestID)
}

func (l *Logger) WithRefundID(ctx context.Context, refundID string) context.Context {
	return l.WithField(ctx, "refund_id", refundID)
}

// WithPaymentReference tags entries with the disposable checkout reference.
func (l *Logger) WithPaymentReference(ctx context.Context, reference string) context.Context {
	return l.WithField(ctx, "payment_reference", reference)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.from(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.from(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	event := l.from(ctx).Warn()
	if l.warnStack {
		event = event.Str("stack", stackTrace())
	}
	event.Msg(msg)
}

func (l *Logger) Error(ctx context.Context, msg string, err error) {
	l.from(ctx).Error().Err(err).Str("stack", stackTrace()).Msg(msg)
}

// Reconciliation records a payment/order disagreement that an operator must resolve.
// These entries are always emitted at error level and tagged reconciliation=true.
func (l *Logger) Reconciliation(ctx context.Context, msg string, err error) {
	l.from(ctx).Error().Bool("reconciliation", true).Err(err).Msg(msg)
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
