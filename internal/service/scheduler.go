package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	scotel "github.com/Draymont/StockCouncil/internal/adapter/otel"
	"github.com/Draymont/StockCouncil/internal/config"
	"github.com/Draymont/StockCouncil/internal/domain/analysis"
	"github.com/Draymont/StockCouncil/internal/domain/workflow"
	"github.com/Draymont/StockCouncil/internal/port/broadcast"
	"github.com/Draymont/StockCouncil/internal/port/worker"
	"github.com/Draymont/StockCouncil/internal/service/registry"
)

// Scheduler executes a session's phase plan in fixed order. Phases of one
// session never run concurrently; within a parallel phase, branches run as
// concurrent conversations joined before the phase finishes.
type Scheduler struct {
	store   *registry.Store
	pubs    []broadcast.Publisher
	cfg     config.Analysis
	metrics *scotel.Metrics // optional
}

// NewScheduler creates a Scheduler publishing progress to the given sinks.
func NewScheduler(store *registry.Store, cfg config.Analysis, metrics *scotel.Metrics, pubs ...broadcast.Publisher) *Scheduler {
	return &Scheduler{store: store, pubs: pubs, cfg: cfg, metrics: metrics}
}

// RunPlan executes every phase of the plan for the session. It returns
// analysis.ErrCancelled on a cooperative stop, an error naming the failing
// phase and worker on failure, and nil on success. The transcript is
// preserved in the registry in every case.
func (s *Scheduler) RunPlan(ctx context.Context, sessionID, initial string,
	plan *workflow.Plan, workers map[string]worker.Worker) error {

	for i, phase := range plan.Phases {
		if s.store.IsCancelled(sessionID) {
			s.recordSkipped(sessionID, plan.Phases[i:])
			return analysis.ErrCancelled
		}

		if err := s.runPhase(ctx, sessionID, initial, phase, workers); err != nil {
			// A cancellation honoured mid-phase cuts the plan off the same
			// way the boundary checkpoint does: the phases never started
			// are still recorded as pending.
			if errors.Is(err, analysis.ErrCancelled) {
				s.recordSkipped(sessionID, plan.Phases[i+1:])
			}
			return err
		}

		// Progress climbs toward 90 across phases; the driver sets 100
		// once synthesis lands.
		_ = s.store.SetProgress(sessionID, (i+1)*90/len(plan.Phases))
	}
	return nil
}

// recordSkipped appends never-started pending records for the phases a
// cancellation cut off.
func (s *Scheduler) recordSkipped(sessionID string, remaining []workflow.Phase) {
	for _, phase := range remaining {
		_ = s.store.RecordPhase(sessionID, analysis.PhaseRecord{
			Name:         phase.Name,
			Mode:         phase.Mode,
			Participants: phase.Participants(),
			Status:       analysis.PhasePending,
		})
	}
}

func (s *Scheduler) runPhase(ctx context.Context, sessionID, initial string,
	phase workflow.Phase, workers map[string]worker.Worker) error {

	ctx, span := scotel.StartPhaseSpan(ctx, sessionID, phase.Name, string(phase.Mode))
	defer span.End()
	started := time.Now()

	idx, err := s.store.StartPhase(sessionID, analysis.PhaseRecord{
		Name:         phase.Name,
		Mode:         phase.Mode,
		Participants: phase.Participants(),
	})
	if err != nil {
		return err
	}

	s.publish(ctx, analysis.ProgressEvent{
		SessionID: sessionID,
		Kind:      analysis.EventPhaseUpdate,
		Phase:     phase.Name,
		Status:    string(analysis.PhaseRunning),
		Content:   fmt.Sprintf("Phase %s started (%s)", phase.Name, phase.Mode),
	})

	contextText, err := s.contextFor(sessionID, initial, phase)
	if err != nil {
		return err
	}

	var out registry.PhaseOutcome
	var phaseErr error
	if phase.Mode == analysis.ModeParallel {
		out, phaseErr = s.runParallel(ctx, sessionID, contextText, phase, workers)
	} else {
		out, phaseErr = s.runSequential(ctx, sessionID, contextText, phase, workers)
	}
	out.Simulated = anySimulated(phase, workers)

	if finishErr := s.store.FinishPhase(sessionID, idx, out); finishErr != nil {
		slog.Error("finish phase", "session_id", sessionID, "phase", phase.Name, "error", finishErr)
	}
	if out.Status == analysis.PhaseError {
		span.SetStatus(codes.Error, out.Error)
	}
	if s.metrics != nil {
		s.metrics.PhaseDuration.Record(ctx, time.Since(started).Seconds(),
			metric.WithAttributes(
				attribute.String("phase", phase.Name),
				attribute.String("status", string(out.Status)),
			))
	}

	s.publish(ctx, analysis.ProgressEvent{
		SessionID: sessionID,
		Kind:      analysis.EventPhaseUpdate,
		Phase:     phase.Name,
		Status:    string(out.Status),
		Content:   phaseSummary(phase.Name, out),
	})

	if phaseErr != nil {
		return phaseErr
	}
	return nil
}

// runSequential delegates one phase to a single conversation.
func (s *Scheduler) runSequential(ctx context.Context, sessionID, contextText string,
	phase workflow.Phase, workers map[string]worker.Worker) (registry.PhaseOutcome, error) {

	ws, err := resolve(phase.Workers, workers)
	if err != nil {
		return registry.PhaseOutcome{Status: analysis.PhaseError, Error: err.Error()},
			fmt.Errorf("phase %s: %w", phase.Name, err)
	}

	conv := s.conversation(sessionID, contextText, phase.Name, "", ws,
		phase.Keyword, phase.MaxTurns, phase.Timeout)
	res := conv.Run(ctx)

	switch {
	case res.Cancelled:
		return registry.PhaseOutcome{Status: analysis.PhaseCompleted, Reason: analysis.ReasonCancelled},
			analysis.ErrCancelled
	case res.Err != nil:
		cause := fmt.Sprintf("phase %s: %v", phase.Name, res.Err)
		return registry.PhaseOutcome{Status: analysis.PhaseError, Error: cause},
			fmt.Errorf("phase %s: %w", phase.Name, res.Err)
	}
	return registry.PhaseOutcome{Status: analysis.PhaseCompleted, Reason: res.Reason}, nil
}

// runParallel fans out every branch concurrently and joins. A branch
// failure neither aborts siblings nor fails the phase on its own: the phase
// completes degraded if at least one branch succeeded and errors only when
// every branch failed.
func (s *Scheduler) runParallel(ctx context.Context, sessionID, contextText string,
	phase workflow.Phase, workers map[string]worker.Worker) (registry.PhaseOutcome, error) {

	results := make([]ConversationResult, len(phase.Branches))
	var g errgroup.Group

	for i, branch := range phase.Branches {
		ws, err := resolve(branch.Workers, workers)
		if err != nil {
			results[i] = ConversationResult{Status: analysis.PhaseError, Err: err}
			continue
		}
		conv := s.conversation(sessionID, contextText, phase.Name, branch.Name, ws,
			branch.Keyword, branch.MaxTurns, phase.Timeout)
		g.Go(func() error {
			results[i] = conv.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	succeeded := 0
	cancelled := false
	var reason analysis.TerminationReason
	for i, res := range results {
		switch {
		case res.Cancelled:
			cancelled = true
		case res.Err != nil, res.Status == analysis.PhaseError:
			failed = append(failed, phase.Branches[i].Name)
			slog.Warn("branch failed",
				"session_id", sessionID, "phase", phase.Name,
				"branch", phase.Branches[i].Name, "error", res.Err)
		default:
			succeeded++
			reason = res.Reason
		}
	}

	if cancelled {
		return registry.PhaseOutcome{
			Status:           analysis.PhaseCompleted,
			Reason:           analysis.ReasonCancelled,
			DegradedBranches: failed,
		}, analysis.ErrCancelled
	}
	if succeeded == 0 {
		cause := fmt.Sprintf("phase %s: all branches failed (%s)",
			phase.Name, strings.Join(failed, ", "))
		return registry.PhaseOutcome{Status: analysis.PhaseError, Error: cause},
			fmt.Errorf("%s", cause)
	}
	return registry.PhaseOutcome{
		Status:           analysis.PhaseCompleted,
		Reason:           reason,
		DegradedBranches: failed,
	}, nil
}

func (s *Scheduler) conversation(sessionID, contextText, phaseName, branchName string,
	ws []worker.Worker, keyword string, maxTurns int, ceiling time.Duration) *Conversation {

	if ceiling <= 0 {
		ceiling = s.cfg.PhaseCeiling
	}
	return &Conversation{
		Workers:     ws,
		Phase:       phaseName,
		Branch:      branchName,
		Initial:     contextText,
		Keyword:     keyword,
		MaxTurns:    maxTurns,
		Ceiling:     ceiling,
		CallTimeout: s.cfg.WorkerTimeout,
		Cancelled:   func() bool { return s.store.IsCancelled(sessionID) },
		OnTurn: func(t analysis.Turn) {
			if err := s.store.AppendTurn(sessionID, t); err != nil {
				slog.Error("append turn", "session_id", sessionID, "error", err)
			}
			if s.metrics != nil {
				s.metrics.Turns.Add(contextBG, 1, metric.WithAttributes(
					attribute.String("worker", t.WorkerID),
					attribute.String("phase", t.Phase),
				))
			}
			s.publish(contextBG, analysis.ProgressEvent{
				SessionID: sessionID,
				Kind:      analysis.EventAgentResponse,
				Phase:     t.Phase,
				Worker:    t.WorkerID,
				Status:    string(analysis.PhaseRunning),
				Content:   analysis.Snippet(t.Content),
			})
		},
	}
}

// contextFor builds the phase context: the initial message, the phase
// instruction, and the concatenated transcript of prior phases.
func (s *Scheduler) contextFor(sessionID, initial string, phase workflow.Phase) (string, error) {
	prior, err := s.store.Transcript(sessionID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(initial)
	if phase.Prompt != "" {
		b.WriteString("\n\n")
		b.WriteString(phase.Prompt)
	}
	if len(prior) > 0 {
		b.WriteString("\n\nPrior analysis:\n")
		for _, t := range prior {
			fmt.Fprintf(&b, "[%s] %s\n", t.WorkerID, t.Content)
		}
	}
	return b.String(), nil
}

func (s *Scheduler) publish(ctx context.Context, ev analysis.ProgressEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	for _, p := range s.pubs {
		p.Publish(ctx, ev)
	}
}

// resolve maps worker ids to instances, in plan order.
func resolve(ids []string, workers map[string]worker.Worker) ([]worker.Worker, error) {
	out := make([]worker.Worker, 0, len(ids))
	for _, id := range ids {
		w, ok := workers[id]
		if !ok {
			return nil, fmt.Errorf("no worker registered for %q", id)
		}
		out = append(out, w)
	}
	return out, nil
}

func anySimulated(phase workflow.Phase, workers map[string]worker.Worker) bool {
	for _, id := range phase.Participants() {
		if w, ok := workers[id]; ok && worker.IsSimulated(w) {
			return true
		}
	}
	return false
}

func phaseSummary(name string, out registry.PhaseOutcome) string {
	switch {
	case out.Status == analysis.PhaseError:
		return fmt.Sprintf("Phase %s failed: %s", name, out.Error)
	case len(out.DegradedBranches) > 0:
		return fmt.Sprintf("Phase %s completed (degraded branches: %s)",
			name, strings.Join(out.DegradedBranches, ", "))
	default:
		return fmt.Sprintf("Phase %s completed", name)
	}
}

// contextBG is used where turn callbacks outlive the phase span context.
var contextBG = context.Background()
