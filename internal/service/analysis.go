// Package service implements the analysis orchestration core: the driver
// that owns session lifecycles, the phase scheduler, and the bounded
// round-robin conversation runner.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	scotel "github.com/Draymont/StockCouncil/internal/adapter/otel"
	"github.com/Draymont/StockCouncil/internal/config"
	"github.com/Draymont/StockCouncil/internal/domain/analysis"
	"github.com/Draymont/StockCouncil/internal/domain/workflow"
	"github.com/Draymont/StockCouncil/internal/port/broadcast"
	"github.com/Draymont/StockCouncil/internal/port/cache"
	"github.com/Draymont/StockCouncil/internal/port/worker"
	"github.com/Draymont/StockCouncil/internal/service/registry"
	"github.com/Draymont/StockCouncil/internal/service/synthesis"
)

// StartRequest describes one analysis to launch.
type StartRequest struct {
	Subject      string
	Variant      workflow.Variant
	AnalysisType string
}

// AnalysisService drives sessions end to end: it creates them, runs the
// phase plan on a background goroutine, synthesizes the verdict, and serves
// reads. One goroutine per session; the registry is the only shared state.
type AnalysisService struct {
	store   *registry.Store
	sched   *Scheduler
	factory worker.Factory
	cache   cache.Cache // optional
	pubs    []broadcast.Publisher
	metrics *scotel.Metrics // optional
	cfg     *config.Config
}

// NewAnalysisService wires the driver. The cache and metrics may be nil.
func NewAnalysisService(store *registry.Store, sched *Scheduler, factory worker.Factory,
	snapshots cache.Cache, cfg *config.Config, metrics *scotel.Metrics,
	pubs ...broadcast.Publisher) *AnalysisService {

	return &AnalysisService{
		store:   store,
		sched:   sched,
		factory: factory,
		cache:   snapshots,
		pubs:    pubs,
		metrics: metrics,
		cfg:     cfg,
	}
}

// Start validates the request, registers a pending session, and launches the
// plan on a background goroutine. The returned snapshot is immediately
// pollable and subscribable.
func (s *AnalysisService) Start(ctx context.Context, req StartRequest) (analysis.Session, error) {
	subject := strings.ToUpper(strings.TrimSpace(req.Subject))
	if subject == "" {
		return analysis.Session{}, errors.New("subject is required")
	}

	variant := req.Variant
	if variant == "" {
		variant = workflow.VariantCouncil
	}

	plan, err := workflow.PlanFor(variant)
	if err != nil {
		return analysis.Session{}, err
	}
	workers, err := s.factory.WorkersFor(variant)
	if err != nil {
		return analysis.Session{}, fmt.Errorf("workers for %s: %w", variant, err)
	}

	question := workflow.QuestionFor(req.AnalysisType, subject)
	sess := s.store.Create(subject, string(variant), question)

	slog.Info("analysis started",
		"session_id", sess.ID, "subject", subject, "variant", variant,
		"analysis_type", req.AnalysisType)
	if s.metrics != nil {
		s.metrics.SessionsStarted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("variant", string(variant)),
		))
	}

	go s.run(sess.ID, subject, string(variant), question, plan, workers)

	return sess, nil
}

// run executes one session to its terminal state. It never returns an
// error; failures land on the session record and the progress stream.
func (s *AnalysisService) run(id, subject, variant, question string,
	plan *workflow.Plan, workers map[string]worker.Worker) {

	ctx, span := scotel.StartSessionSpan(context.Background(), id, subject, variant)
	defer span.End()
	started := time.Now()

	if err := s.store.Transition(id, analysis.StatusRunning); err != nil {
		slog.Error("session start", "session_id", id, "error", err)
		return
	}
	s.publish(ctx, analysis.ProgressEvent{
		SessionID: id,
		Kind:      analysis.EventPhaseUpdate,
		Status:    string(analysis.StatusRunning),
		Content:   fmt.Sprintf("Starting %s analysis for %s", variant, subject),
	})

	err := s.sched.RunPlan(ctx, id, question, plan, workers)

	switch {
	case errors.Is(err, analysis.ErrCancelled):
		s.finishCancelled(ctx, id)
	case err != nil:
		s.finishFailed(ctx, span, id, err)
	default:
		s.finishCompleted(ctx, id, subject)
	}

	s.cacheSnapshot(ctx, id)
	if s.metrics != nil {
		s.metrics.SessionDuration.Record(ctx, time.Since(started).Seconds(),
			metric.WithAttributes(attribute.String("variant", variant)))
	}
}

func (s *AnalysisService) finishCancelled(ctx context.Context, id string) {
	if err := s.store.Transition(id, analysis.StatusCancelled); err != nil {
		slog.Error("session cancel", "session_id", id, "error", err)
	}
	slog.Info("analysis cancelled", "session_id", id)
	if s.metrics != nil {
		s.metrics.SessionsCancelled.Add(ctx, 1)
	}
	s.publish(ctx, analysis.ProgressEvent{
		SessionID: id,
		Kind:      analysis.EventAnalysisCancelled,
		Status:    string(analysis.StatusCancelled),
		Content:   "Analysis cancelled",
	})
}

func (s *AnalysisService) finishFailed(ctx context.Context, span trace.Span, id string, cause error) {
	msg := cause.Error()
	if err := s.store.SetError(id, msg); err != nil {
		slog.Error("session error record", "session_id", id, "error", err)
	}
	if err := s.store.Transition(id, analysis.StatusError); err != nil {
		slog.Error("session fail", "session_id", id, "error", err)
	}
	span.SetStatus(codes.Error, msg)
	slog.Error("analysis failed", "session_id", id, "cause", msg)
	if s.metrics != nil {
		s.metrics.SessionsFailed.Add(ctx, 1)
	}
	s.publish(ctx, analysis.ProgressEvent{
		SessionID: id,
		Kind:      analysis.EventAnalysisError,
		Status:    string(analysis.StatusError),
		Content:   msg,
	})
}

func (s *AnalysisService) finishCompleted(ctx context.Context, id, subject string) {
	transcript, err := s.store.Transcript(id)
	if err != nil {
		slog.Error("session transcript", "session_id", id, "error", err)
	}

	verdict := synthesis.Synthesize(transcript, subject)
	if err := s.store.SetVerdict(id, verdict); err != nil {
		slog.Error("session verdict", "session_id", id, "error", err)
	}
	_ = s.store.SetProgress(id, 100)
	if err := s.store.Transition(id, analysis.StatusCompleted); err != nil {
		slog.Error("session complete", "session_id", id, "error", err)
	}

	slog.Info("analysis complete",
		"session_id", id, "recommendation", verdict.Recommendation,
		"confidence", verdict.Confidence)
	if s.metrics != nil {
		s.metrics.SessionsCompleted.Add(ctx, 1)
	}
	s.publish(ctx, analysis.ProgressEvent{
		SessionID: id,
		Kind:      analysis.EventAnalysisComplete,
		Status:    string(analysis.StatusCompleted),
		Content:   verdict.OneLineSummary,
	})
}

// Cancel raises the cooperative cancellation flag. Legal at any time and
// idempotent; it never interrupts an in-flight worker call.
func (s *AnalysisService) Cancel(id string) error {
	return s.store.SetCancelled(id)
}

// Get returns a session snapshot, serving terminal sessions from the cache
// when possible.
func (s *AnalysisService) Get(ctx context.Context, id string) (analysis.Session, error) {
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, snapshotKey(id)); err == nil && ok {
			var sess analysis.Session
			if err := json.Unmarshal(data, &sess); err == nil {
				return sess, nil
			}
		}
	}
	return s.store.Get(id)
}

// List returns sessions in creation order, capped to the configured history
// size (most recent kept).
func (s *AnalysisService) List() []analysis.Session {
	out := s.store.List()
	if max := s.cfg.Analysis.MaxHistory; max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

// cacheSnapshot stores the terminal session JSON for the read path. Only
// terminal sessions are cached; anything still moving must come from the
// registry.
func (s *AnalysisService) cacheSnapshot(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	sess, err := s.store.Get(id)
	if err != nil || !sess.Status.IsTerminal() {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, snapshotKey(id), data, s.cfg.Cache.TTL); err != nil {
		slog.Warn("snapshot cache set", "session_id", id, "error", err)
	}
}

func snapshotKey(id string) string {
	return "session:" + id
}

func (s *AnalysisService) publish(ctx context.Context, ev analysis.ProgressEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	for _, p := range s.pubs {
		p.Publish(ctx, ev)
	}
}
