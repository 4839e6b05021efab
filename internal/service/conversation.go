package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Draymont/StockCouncil/internal/domain/analysis"
	"github.com/Draymont/StockCouncil/internal/port/worker"
)

// Conversation runs one bounded round-robin exchange among an ordered list
// of workers. A single-worker list degenerates to sequential self-turns up
// to the cap.
type Conversation struct {
	Workers []worker.Worker
	Phase   string
	Branch  string // set for parallel branches

	// Initial is the context message every turn sees, ahead of the turns
	// already produced in this phase.
	Initial string

	// Keyword ends the exchange when it appears anywhere in the latest
	// turn, case-insensitive. Substring matching is a known imprecision:
	// the keyword inside quoted or unrelated text also terminates.
	Keyword  string
	MaxTurns int

	// Ceiling bounds the whole exchange; CallTimeout bounds one invocation.
	Ceiling     time.Duration
	CallTimeout time.Duration

	// Cancelled is checked before every invocation.
	Cancelled func() bool

	// OnTurn observes each produced turn (transcript append + progress).
	OnTurn func(analysis.Turn)
}

// ConversationResult is the terminal state of one exchange. Turns are
// preserved even on failure.
type ConversationResult struct {
	Turns     []analysis.Turn
	Status    analysis.PhaseStatus
	Reason    analysis.TerminationReason
	Cancelled bool
	Err       error
}

// Run executes the exchange until the termination condition fires, the
// session is cancelled, or a worker fails.
func (c *Conversation) Run(ctx context.Context) ConversationResult {
	var res ConversationResult

	if len(c.Workers) == 0 {
		res.Status = analysis.PhaseError
		res.Err = errors.New("conversation has no workers")
		return res
	}

	deadline := time.Time{}
	if c.Ceiling > 0 {
		deadline = time.Now().Add(c.Ceiling)
	}

	for turn := 0; c.MaxTurns <= 0 || turn < c.MaxTurns; turn++ {
		if c.Cancelled != nil && c.Cancelled() {
			res.Status = analysis.PhaseCompleted
			res.Reason = analysis.ReasonCancelled
			res.Cancelled = true
			return res
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			res.Status = analysis.PhaseCompleted
			res.Reason = analysis.ReasonTimeout
			return res
		}

		w := c.Workers[turn%len(c.Workers)]
		content, err := c.invoke(ctx, w, res.Turns, deadline)
		if err != nil {
			res.Status = analysis.PhaseError
			res.Err = fmt.Errorf("turn %d (%s): %w", turn+1, w.ID(), err)
			return res
		}

		t := analysis.Turn{
			WorkerID:  w.ID(),
			Phase:     c.Phase,
			Branch:    c.Branch,
			Content:   content,
			Timestamp: time.Now(),
		}
		res.Turns = append(res.Turns, t)
		if c.OnTurn != nil {
			c.OnTurn(t)
		}

		if c.Keyword != "" && containsFold(content, c.Keyword) {
			res.Status = analysis.PhaseCompleted
			res.Reason = analysis.ReasonKeyword
			return res
		}
	}

	res.Status = analysis.PhaseCompleted
	res.Reason = analysis.ReasonMaxTurns
	return res
}

// invoke runs one worker call under the per-call timeout, capped by the
// phase ceiling. A deadline hit mid-call is reported as a timeout failure,
// distinct from a WorkerFailure.
func (c *Conversation) invoke(ctx context.Context, w worker.Worker, prior []analysis.Turn, deadline time.Time) (string, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if c.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.CallTimeout)
	} else if !deadline.IsZero() {
		callCtx, cancel = context.WithDeadline(ctx, deadline)
	}
	if cancel != nil {
		defer cancel()
	}

	content, err := w.Invoke(callCtx, c.Initial, append([]analysis.Turn(nil), prior...))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", worker.ErrTimeout, w.ID())
		}
		return "", err
	}
	return content, nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToUpper(haystack), strings.ToUpper(needle))
}
