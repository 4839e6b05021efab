package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "stockcouncil"

// StartSessionSpan starts a span covering one analysis session.
func StartSessionSpan(ctx context.Context, sessionID, subject, variant string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("session.subject", subject),
			attribute.String("session.variant", variant),
		),
	)
}

// StartPhaseSpan starts a span for one phase of a session's plan.
func StartPhaseSpan(ctx context.Context, sessionID, phase, mode string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "phase",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("phase.name", phase),
			attribute.String("phase.mode", mode),
		),
	)
}
