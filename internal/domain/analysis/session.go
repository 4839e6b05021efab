// Package analysis defines the Session domain entity: one analysis request
// for a single subject, its phase records, transcript, and synthesized verdict.
package analysis

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

// ErrInvalidTransition is returned when a status change would regress the
// session lifecycle.
var ErrInvalidTransition = errors.New("invalid session status transition")

// ErrCancelled signals a cooperative stop. It is not a failure.
var ErrCancelled = errors.New("session cancelled")

// Status represents the lifecycle state of a session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if the session is in a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// rank orders statuses so that a session never moves backwards:
// pending < running < {completed, error, cancelled}.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusCompleted, StatusError, StatusCancelled:
		return 2
	}
	return -1
}

// CanTransition reports whether moving from s to next is legal.
// Terminal states never transition again, and ranks never decrease.
func (s Status) CanTransition(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if s.rank() < 0 || next.rank() < 0 {
		return false
	}
	return next.rank() > s.rank()
}

// Session is the unit of one analysis request. It is owned by the registry
// for its lifetime and mutated only through the registry's API; everything
// handed to callers is a snapshot copy.
type Session struct {
	ID             string         `json:"id"`
	Subject        string         `json:"subject"`
	Variant        string         `json:"variant"`
	Question       string         `json:"question,omitempty"`
	Status         Status         `json:"status"`
	Progress       int            `json:"progress"`
	Phases         []PhaseRecord  `json:"phases"`
	Transcript     []Turn         `json:"transcript"`
	Recommendation Recommendation `json:"recommendation,omitempty"`
	Confidence     *int           `json:"confidence,omitempty"`
	OneLineSummary string         `json:"one_line_summary,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`

	// Cancelled is the cooperative cancellation flag. Setting it never
	// interrupts an in-flight worker call; it takes effect at the next
	// checkpoint in the runner or scheduler.
	Cancelled bool `json:"cancelled,omitempty"`
}

// Clone returns a deep copy safe to hand outside the registry.
func (s *Session) Clone() Session {
	out := *s
	out.Phases = make([]PhaseRecord, len(s.Phases))
	for i := range s.Phases {
		out.Phases[i] = s.Phases[i].clone()
	}
	out.Transcript = append([]Turn(nil), s.Transcript...)
	if s.Confidence != nil {
		c := *s.Confidence
		out.Confidence = &c
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
