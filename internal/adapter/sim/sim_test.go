package sim

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Draymont/StockCouncil/internal/config"
	"github.com/Draymont/StockCouncil/internal/domain/analysis"
	"github.com/Draymont/StockCouncil/internal/domain/workflow"
	"github.com/Draymont/StockCouncil/internal/port/worker"
	"github.com/Draymont/StockCouncil/internal/resilience"
)

func testFactory() *Factory {
	return NewFactory(
		config.Retry{Attempts: 3, BaseDelay: time.Millisecond},
		config.Breaker{MaxFailures: 3, Timeout: time.Second},
	)
}

func TestWorkersForCouncil(t *testing.T) {
	workers, err := testFactory().WorkersFor(workflow.VariantCouncil)
	if err != nil {
		t.Fatal(err)
	}
	if len(workers) != 7 {
		t.Fatalf("expected 7 workers, got %d", len(workers))
	}
	for id, w := range workers {
		if w.ID() != id {
			t.Errorf("worker keyed %q reports id %q", id, w.ID())
		}
		if !worker.IsSimulated(w) {
			t.Errorf("worker %s not flagged simulated", id)
		}
	}
}

func TestWorkersForHybrid(t *testing.T) {
	workers, err := testFactory().WorkersFor(workflow.VariantHybrid)
	if err != nil {
		t.Fatal(err)
	}
	if len(workers) != 13 {
		t.Fatalf("expected 13 workers, got %d", len(workers))
	}
}

func TestWorkersForUnknownVariant(t *testing.T) {
	if _, err := testFactory().WorkersFor(workflow.Variant("classic")); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

func TestAnalystDeterministic(t *testing.T) {
	a := &Analyst{id: workflow.WorkerDataAnalyst}
	ctx := context.Background()

	first, err := a.Invoke(ctx, "Should I buy stocks of AAPL?", nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Invoke(ctx, "Should I buy stocks of AAPL?", nil)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("same context produced different output")
	}
	if !strings.Contains(first, "AAPL") {
		t.Errorf("expected the subject in the output, got %q", first)
	}

	other, _ := a.Invoke(ctx, "Should I buy stocks of MSFT?", nil)
	if other == first {
		t.Error("different subjects produced identical output")
	}
}

func TestReportEmitsVerdictBlock(t *testing.T) {
	a := &Analyst{id: workflow.WorkerReport}
	out, err := a.Invoke(context.Background(), "Should I buy stocks of NVDA?", nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, marker := range []string{
		"FINAL RECOMMENDATION:", "CONFIDENCE:", "TARGET PRICE: $",
		"WHY THIS DECISION MAKES SENSE:",
	} {
		if !strings.Contains(out, marker) {
			t.Errorf("report missing %q:\n%s", marker, out)
		}
	}
}

func TestCloserAppendsKeywordOnlyWhenInstructed(t *testing.T) {
	a := &Analyst{id: workflow.WorkerReport, closers: []string{"STOP"}}
	ctx := context.Background()

	with, err := a.Invoke(ctx, "Analyze AAPL. End with: STOP", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(with, "\n\nSTOP") {
		t.Errorf("expected closing keyword, got tail %q", with[len(with)-20:])
	}

	without, err := a.Invoke(ctx, "Analyze AAPL.", nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(without, "\n\nSTOP") {
		t.Error("keyword appended without instruction")
	}

	// A non-closer never appends, instruction or not.
	b := &Analyst{id: workflow.WorkerDataAnalyst}
	out, _ := b.Invoke(ctx, "Analyze AAPL. End with: STOP", nil)
	if strings.HasSuffix(out, "STOP") {
		t.Error("non-closer appended the keyword")
	}
}

func TestCouncilClosersMatchPlan(t *testing.T) {
	plan, err := workflow.PlanFor(workflow.VariantCouncil)
	if err != nil {
		t.Fatal(err)
	}
	closers := closerKeywords(plan)

	if got := closers[workflow.WorkerReport]; len(got) != 1 || got[0] != "STOP" {
		t.Errorf("expected report agent to close with STOP, got %v", got)
	}
	if len(closers) != 1 {
		t.Errorf("expected exactly one closer for the council plan, got %v", closers)
	}
}

func TestHybridClosersCoverBranches(t *testing.T) {
	plan, err := workflow.PlanFor(workflow.VariantHybrid)
	if err != nil {
		t.Fatal(err)
	}
	closers := closerKeywords(plan)

	if got := closers[workflow.WorkerReport]; len(got) != 1 || got[0] != "FINAL_DECISION_COMPLETE" {
		t.Errorf("expected the report agent to close the final synthesis, got %v", got)
	}
	if got := closers[workflow.WorkerESG]; len(got) != 1 || got[0] != "INTELLIGENCE_COMPLETE" {
		t.Errorf("expected the ESG analyst to close the intelligence branch, got %v", got)
	}
	// Keywordless single-turn branches end on their turn cap, not a closer.
	if got := closers[workflow.WorkerStressTest]; len(got) != 0 {
		t.Errorf("expected no closer for the stress test branch, got %v", got)
	}
}

func TestSubjectFrom(t *testing.T) {
	tests := []struct {
		context string
		want    string
	}{
		{"Should I buy stocks of AAPL?", "AAPL"},
		{"Should I sell my TSLA stocks now?", "TSLA"},
		{"What is the 5-day outlook for MSFT?", "MSFT"},
		{"Analyze BRK.B for value", "BRK.B"},
		{"Discuss the market in general", "the subject"},
		{"BUY or SELL or HOLD alone say nothing", "the subject"},
		{"End with: STOP after covering NVDA", "NVDA"},
	}
	for _, tt := range tests {
		if got := subjectFrom(tt.context); got != tt.want {
			t.Errorf("subjectFrom(%q) = %q, want %q", tt.context, got, tt.want)
		}
	}
}

func TestAnalystHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &Analyst{id: workflow.WorkerQuantAnalyst}
	if _, err := a.Invoke(ctx, "Analyze AAPL", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// flakyWorker fails a fixed number of times before succeeding.
type flakyWorker struct {
	failures int
	calls    int
	err      error
}

func (w *flakyWorker) ID() string { return "flaky" }

func (w *flakyWorker) Invoke(context.Context, string, []analysis.Turn) (string, error) {
	w.calls++
	if w.calls <= w.failures {
		return "", w.err
	}
	return "recovered", nil
}

func TestWrapRetriesTransientFailures(t *testing.T) {
	inner := &flakyWorker{failures: 2, err: errors.New("transient glitch")}
	w := Wrap(inner, config.Retry{Attempts: 3, BaseDelay: time.Millisecond},
		resilience.NewBreaker(10, time.Second))

	out, err := w.Invoke(context.Background(), "Analyze AAPL", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "recovered" {
		t.Errorf("unexpected output %q", out)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls (2 failures + success), got %d", inner.calls)
	}
}

func TestWrapDoesNotRetryTimeouts(t *testing.T) {
	inner := &flakyWorker{failures: 10, err: worker.ErrTimeout}
	w := Wrap(inner, config.Retry{Attempts: 5, BaseDelay: time.Millisecond},
		resilience.NewBreaker(10, time.Second))

	_, err := w.Invoke(context.Background(), "Analyze AAPL", nil)
	if !errors.Is(err, worker.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected a single call for a timeout, got %d", inner.calls)
	}
}

func TestWrapBreakerOpensAfterRepeatedFailures(t *testing.T) {
	inner := &flakyWorker{failures: 1000, err: errors.New("backend down")}
	w := Wrap(inner, config.Retry{Attempts: 0, BaseDelay: time.Millisecond},
		resilience.NewBreaker(2, time.Minute))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := w.Invoke(ctx, "Analyze AAPL", nil); err == nil {
			t.Fatal("expected failure")
		}
	}

	callsBefore := inner.calls
	_, err := w.Invoke(ctx, "Analyze AAPL", nil)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.calls != callsBefore {
		t.Error("open breaker still reached the worker")
	}
}
