// Package sim provides deterministic stand-in workers used when no real
// analysis backend is configured. Output is derived from the subject alone,
// so repeated runs produce identical transcripts. Phases served by these
// workers are flagged as simulated on the session record.
package sim

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/Draymont/StockCouncil/internal/config"
	"github.com/Draymont/StockCouncil/internal/domain/analysis"
	"github.com/Draymont/StockCouncil/internal/domain/workflow"
	"github.com/Draymont/StockCouncil/internal/port/worker"
	"github.com/Draymont/StockCouncil/internal/resilience"
)

// Factory builds the simulated worker set for a plan, each worker wrapped
// with retry and a circuit breaker the same way a real backend would be.
type Factory struct {
	retryCfg   config.Retry
	breakerCfg config.Breaker
}

// NewFactory creates a simulated worker factory.
func NewFactory(retryCfg config.Retry, breakerCfg config.Breaker) *Factory {
	return &Factory{retryCfg: retryCfg, breakerCfg: breakerCfg}
}

// WorkersFor returns one worker per id the variant's plan needs.
func (f *Factory) WorkersFor(v workflow.Variant) (map[string]worker.Worker, error) {
	plan, err := workflow.PlanFor(v)
	if err != nil {
		return nil, err
	}

	closers := closerKeywords(plan)
	out := make(map[string]worker.Worker)
	for _, id := range plan.WorkerIDs() {
		a := &Analyst{id: id, closers: closers[id]}
		out[id] = Wrap(a, f.retryCfg, resilience.NewBreaker(
			f.breakerCfg.MaxFailures, f.breakerCfg.Timeout))
	}
	return out, nil
}

// closerKeywords maps each worker id to the termination keywords it is
// responsible for emitting: the last speaker of a phase or branch closes it.
func closerKeywords(plan *workflow.Plan) map[string][]string {
	out := make(map[string][]string)
	add := func(workers []string, keyword string) {
		if keyword == "" || len(workers) == 0 {
			return
		}
		last := workers[len(workers)-1]
		out[last] = append(out[last], keyword)
	}

	for _, ph := range plan.Phases {
		add(ph.Workers, ph.Keyword)
		for _, b := range ph.Branches {
			add(b.Workers, b.Keyword)
		}
	}
	return out
}

// resilientWorker decorates a worker with retry and a circuit breaker.
// Retry policy lives here, never in the orchestration core.
type resilientWorker struct {
	inner    worker.Worker
	attempts uint64
	base     time.Duration
	breaker  *resilience.Breaker
}

// Wrap returns w guarded by the given retry config and breaker.
func Wrap(w worker.Worker, retryCfg config.Retry, b *resilience.Breaker) worker.Worker {
	return &resilientWorker{
		inner:    w,
		attempts: retryCfg.Attempts,
		base:     retryCfg.BaseDelay,
		breaker:  b,
	}
}

func (r *resilientWorker) ID() string { return r.inner.ID() }

// Invoke runs the inner worker under the breaker, retrying transient
// failures with exponential backoff. Context expiry and hard worker
// failures are not retried.
func (r *resilientWorker) Invoke(ctx context.Context, contextText string, prior []analysis.Turn) (string, error) {
	var out string
	err := r.breaker.Execute(func() error {
		backoff := retry.WithMaxRetries(r.attempts, retry.NewExponential(r.base))
		return retry.Do(ctx, backoff, func(ctx context.Context) error {
			content, err := r.inner.Invoke(ctx, contextText, prior)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) ||
					errors.Is(err, context.Canceled) ||
					errors.Is(err, worker.ErrTimeout) {
					return err
				}
				return retry.RetryableError(err)
			}
			out = content
			return nil
		})
	})
	return out, err
}

// Simulated reports whether the wrapped worker is a stand-in.
func (r *resilientWorker) Simulated() bool {
	return worker.IsSimulated(r.inner)
}
