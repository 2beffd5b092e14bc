package core

import (
	"context"
	"log"
	"time"
)

// Logger is the minimal logging contract consumed by the service and
// scheduler. Implementations must be safe for use from the single
// authoritative execution context.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NoopLogger discards all log output. It is the default when no logger is
// injected.
type NoopLogger struct{}

func (NoopLogger) Debugf(string, ...any) {}
func (NoopLogger) Infof(string, ...any)  {}
func (NoopLogger) Warnf(string, ...any)  {}
func (NoopLogger) Errorf(string, ...any) {}

// StdLogger adapts a stdlib *log.Logger to the Logger contract with level
// prefixes.
type StdLogger struct {
	L *log.Logger
}

func (s StdLogger) Debugf(format string, args ...any) { s.L.Printf("DEBUG "+format, args...) }
func (s StdLogger) Infof(format string, args ...any)  { s.L.Printf("INFO "+format, args...) }
func (s StdLogger) Warnf(format string, args ...any)  { s.L.Printf("WARN "+format, args...) }
func (s StdLogger) Errorf(format string, args ...any) { s.L.Printf("ERROR "+format, args...) }

// MetricsRecorder aggregates operation outcomes. The expvar and Prometheus
// exporters implement it.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// LossObserver is an optional extension of MetricsRecorder for recorders
// that track spoilage losses per content type.
type LossObserver interface {
	ObserveLoss(contentType string, quantity float64)
}

// TraceSpan terminates a single traced operation.
type TraceSpan interface {
	End(err error)
}

// Tracer begins spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

type noopSpan struct{}

func (noopSpan) End(error) {}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

// instrument wraps a service operation with tracing and metrics.
func (s *Service) instrument(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	err := fn()
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	return err
}
