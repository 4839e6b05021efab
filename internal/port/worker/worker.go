// Package worker defines the capability abstraction invoked by the scheduler:
// an opaque text-in/text-out analyst, plus the factory that supplies the
// workers a workflow variant needs.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/Draymont/StockCouncil/internal/domain/analysis"
	"github.com/Draymont/StockCouncil/internal/domain/workflow"
)

// ErrTimeout marks an invocation that exceeded its call deadline. It is
// distinguished from a FailureError when a phase is finalized.
var ErrTimeout = errors.New("worker call timed out")

// FailureError is returned when a worker raises or produces an unusable
// result. The core never retries it; retry policy belongs to the factory.
type FailureError struct {
	WorkerID string
	Reason   string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("worker %s failed: %s", e.WorkerID, e.Reason)
}

// Worker produces text from accumulated context. Implementations are
// stateless from the orchestrator's point of view; side effects such as
// contacting market data providers are entirely the worker's concern.
type Worker interface {
	ID() string

	// Invoke runs one turn. contextText is the initial message plus any
	// phase instruction; prior holds the turns already produced in this
	// phase. The ctx carries the per-call deadline.
	Invoke(ctx context.Context, contextText string, prior []analysis.Turn) (string, error)
}

// Simulated is implemented by stand-in workers that produce canned output
// when no real backend is available. Phases that used one are flagged
// degraded so consumers can tell real analysis from a substitute.
type Simulated interface {
	Simulated() bool
}

// IsSimulated reports whether w is a stand-in.
func IsSimulated(w Worker) bool {
	s, ok := w.(Simulated)
	return ok && s.Simulated()
}

// Factory supplies the workers for a workflow variant, keyed by worker id.
type Factory interface {
	WorkersFor(v workflow.Variant) (map[string]Worker, error)
}
