package core

import (
	"context"
	"time"
)

// Logger is the structured logging surface used by the service. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock supplies timestamps for sessions, history entries and snapshots.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// AuditStatus is the outcome of an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one service operation.
type AuditEntry struct {
	Operation string
	SessionID string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	At        time.Time
}

// AuditRecorder receives an entry for every service operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation latency and outcome.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens a span per operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the operation's error, if any.
type TraceSpan interface {
	End(err error)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type serviceOptions struct {
	clock     Clock
	logger    Logger
	audit     AuditRecorder
	metrics   MetricsRecorder
	tracer    Tracer
	workers   int
	cacheSize int
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:     ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:    noopLogger{},
		audit:     noopAudit{},
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
		cacheSize: 16,
	}
}

// ServiceOption customizes a Service.
type ServiceOption func(*serviceOptions)

// WithClock overrides the time source.
func WithClock(c Clock) ServiceOption {
	return func(o *serviceOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l Logger) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(a AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if a != nil {
			o.audit = a
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithWorkers bounds hashing parallelism. Zero uses GOMAXPROCS.
func WithWorkers(n int) ServiceOption {
	return func(o *serviceOptions) { o.workers = max(n, 0) }
}

// WithPartitionCache sets how many clone partitions are memoized.
func WithPartitionCache(size int) ServiceOption {
	return func(o *serviceOptions) {
		if size > 0 {
			o.cacheSize = size
		}
	}
}
