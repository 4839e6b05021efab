// Package otel provides tracing and metrics instruments for the analysis
// pipeline, built on the OpenTelemetry global providers.
package otel

import (
	"context"
	"log/slog"
)

// ShutdownFunc is called to flush and shut down the trace provider.
type ShutdownFunc func(ctx context.Context) error

// InitTracer returns a no-op shutdown function. Spans and metrics go through
// the global providers, so wiring an OTLP exporter later needs no changes at
// the call sites.
func InitTracer(serviceName string) ShutdownFunc {
	slog.Info("otel: using global providers", "service", serviceName)
	return func(_ context.Context) error {
		return nil
	}
}
