// Package registry is the single source of truth for session state: an
// owned, access-controlled map behind a concurrency-safe API. Sessions are
// mutated only through this API; callers always receive snapshot copies.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Draymont/StockCouncil/internal/domain/analysis"
)

// Store is a concurrency-safe registry of analysis sessions keyed by id.
// One writer per session in practice (the driver goroutine), but every
// method is safe for concurrent callers, including read-side pollers.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*analysis.Session
	order    []string // creation order for List
	now      func() time.Time
}

// New creates an empty session registry.
func New() *Store {
	return &Store{
		sessions: make(map[string]*analysis.Session),
		now:      time.Now,
	}
}

// Create registers a new pending session and returns its snapshot.
func (s *Store) Create(subject, variant, question string) analysis.Session {
	sess := &analysis.Session{
		ID:        uuid.NewString(),
		Subject:   subject,
		Variant:   variant,
		Question:  question,
		Status:    analysis.StatusPending,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.order = append(s.order, sess.ID)
	s.mu.Unlock()

	return sess.Clone()
}

// Transition moves a session to a new status. Illegal transitions — any
// move that would regress the pending < running < terminal order, or any
// move out of a terminal state — are rejected.
func (s *Store) Transition(id string, next analysis.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("transition %s: %w", id, analysis.ErrNotFound)
	}
	if !sess.Status.CanTransition(next) {
		return fmt.Errorf("transition %s: %s -> %s: %w",
			id, sess.Status, next, analysis.ErrInvalidTransition)
	}

	sess.Status = next
	if next.IsTerminal() {
		t := s.now()
		sess.CompletedAt = &t
	}
	return nil
}

// AppendTurn appends a turn to the session transcript.
func (s *Store) AppendTurn(id string, turn analysis.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("append turn %s: %w", id, analysis.ErrNotFound)
	}
	sess.Transcript = append(sess.Transcript, turn)
	return nil
}

// SetProgress raises the progress percentage. Progress is monotonic; a
// lower value than the current one is ignored.
func (s *Store) SetProgress(id string, pct int) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("set progress %s: %w", id, analysis.ErrNotFound)
	}
	if pct > sess.Progress {
		sess.Progress = pct
	}
	return nil
}

// SetCancelled raises the cooperative cancellation flag. Idempotent and
// legal at any time; it takes effect only at the next checkpoint inside the
// runner or scheduler, never interrupting an in-flight worker call.
func (s *Store) SetCancelled(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("cancel %s: %w", id, analysis.ErrNotFound)
	}
	sess.Cancelled = true
	return nil
}

// IsCancelled reports the cancellation flag.
func (s *Store) IsCancelled(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	return ok && sess.Cancelled
}

// StartPhase appends a phase record in running state and returns its index.
func (s *Store) StartPhase(id string, rec analysis.PhaseRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return 0, fmt.Errorf("start phase %s: %w", id, analysis.ErrNotFound)
	}

	rec.Status = analysis.PhaseRunning
	t := s.now()
	rec.StartedAt = &t
	sess.Phases = append(sess.Phases, rec)
	return len(sess.Phases) - 1, nil
}

// RecordPhase appends a phase record as-is, without starting it. Used for
// phases skipped by cancellation, which stay pending and never run.
func (s *Store) RecordPhase(id string, rec analysis.PhaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("record phase %s: %w", id, analysis.ErrNotFound)
	}
	sess.Phases = append(sess.Phases, rec)
	return nil
}

// PhaseOutcome carries the terminal state of a finished phase.
type PhaseOutcome struct {
	Status           analysis.PhaseStatus
	Reason           analysis.TerminationReason
	DegradedBranches []string
	Simulated        bool
	Error            string
}

// FinishPhase finalizes the phase at the given index.
func (s *Store) FinishPhase(id string, idx int, out PhaseOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("finish phase %s: %w", id, analysis.ErrNotFound)
	}
	if idx < 0 || idx >= len(sess.Phases) {
		return fmt.Errorf("finish phase %s: index %d out of range", id, idx)
	}

	rec := &sess.Phases[idx]
	rec.Status = out.Status
	rec.Reason = out.Reason
	rec.DegradedBranches = out.DegradedBranches
	rec.Simulated = out.Simulated
	rec.Error = out.Error
	t := s.now()
	rec.CompletedAt = &t
	return nil
}

// SetVerdict records the synthesized result on the session.
func (s *Store) SetVerdict(id string, v analysis.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("set verdict %s: %w", id, analysis.ErrNotFound)
	}
	sess.Recommendation = v.Recommendation
	conf := v.Confidence
	sess.Confidence = &conf
	sess.OneLineSummary = v.OneLineSummary
	sess.Summary = v.Summary
	return nil
}

// SetError records a human-readable failure cause.
func (s *Store) SetError(id, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("set error %s: %w", id, analysis.ErrNotFound)
	}
	sess.Error = cause
	return nil
}

// Get returns a snapshot copy of a session.
func (s *Store) Get(id string) (analysis.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return analysis.Session{}, fmt.Errorf("get %s: %w", id, analysis.ErrNotFound)
	}
	return sess.Clone(), nil
}

// List returns snapshots of all sessions in creation order.
func (s *Store) List() []analysis.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]analysis.Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].Clone())
	}
	return out
}

// Transcript returns a copy of the session transcript so far.
func (s *Store) Transcript(id string) ([]analysis.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("transcript %s: %w", id, analysis.ErrNotFound)
	}
	return append([]analysis.Turn(nil), sess.Transcript...), nil
}
