package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "stockcouncil"

// Metrics holds all StockCouncil metric instruments.
type Metrics struct {
	SessionsStarted   metric.Int64Counter
	SessionsCompleted metric.Int64Counter
	SessionsFailed    metric.Int64Counter
	SessionsCancelled metric.Int64Counter
	Turns             metric.Int64Counter
	SessionDuration   metric.Float64Histogram
	PhaseDuration     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SessionsStarted, err = meter.Int64Counter("stockcouncil.sessions.started",
		metric.WithDescription("Number of analysis sessions started"))
	if err != nil {
		return nil, err
	}

	m.SessionsCompleted, err = meter.Int64Counter("stockcouncil.sessions.completed",
		metric.WithDescription("Number of analysis sessions completed"))
	if err != nil {
		return nil, err
	}

	m.SessionsFailed, err = meter.Int64Counter("stockcouncil.sessions.failed",
		metric.WithDescription("Number of analysis sessions failed"))
	if err != nil {
		return nil, err
	}

	m.SessionsCancelled, err = meter.Int64Counter("stockcouncil.sessions.cancelled",
		metric.WithDescription("Number of analysis sessions cancelled"))
	if err != nil {
		return nil, err
	}

	m.Turns, err = meter.Int64Counter("stockcouncil.turns",
		metric.WithDescription("Number of worker turns produced"))
	if err != nil {
		return nil, err
	}

	m.SessionDuration, err = meter.Float64Histogram("stockcouncil.session.duration_seconds",
		metric.WithDescription("Session duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.PhaseDuration, err = meter.Float64Histogram("stockcouncil.phase.duration_seconds",
		metric.WithDescription("Phase duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
