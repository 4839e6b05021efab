package analysis

import "time"

// EventKind names the progress notification types forwarded to observers.
type EventKind string

const (
	EventConnected         EventKind = "connected"
	EventPhaseUpdate       EventKind = "phase_update"
	EventAgentResponse     EventKind = "agent_response"
	EventAnalysisComplete  EventKind = "analysis_complete"
	EventAnalysisError     EventKind = "error"
	EventAnalysisCancelled EventKind = "analysis_cancelled"
)

// snippetLimit bounds the content carried by a progress event.
const snippetLimit = 200

// ProgressEvent is a transient notification about a phase or worker status
// change. Events are never persisted; delivery is at-least-once per
// subscriber in per-session FIFO order.
type ProgressEvent struct {
	SessionID string    `json:"session_id"`
	Kind      EventKind `json:"kind"`
	Phase     string    `json:"phase,omitempty"`
	Worker    string    `json:"worker,omitempty"`
	Status    string    `json:"status,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsTerminal reports whether this is the final event of a session.
// Terminal events are never dropped by the progress bus.
func (e ProgressEvent) IsTerminal() bool {
	switch e.Kind {
	case EventAnalysisComplete, EventAnalysisError, EventAnalysisCancelled:
		return true
	}
	return false
}

// Snippet truncates content for transport.
func Snippet(content string) string {
	if len(content) <= snippetLimit {
		return content
	}
	return content[:snippetLimit] + "..."
}
