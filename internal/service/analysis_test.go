package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Draymont/StockCouncil/internal/config"
	"github.com/Draymont/StockCouncil/internal/domain/analysis"
	"github.com/Draymont/StockCouncil/internal/domain/workflow"
	"github.com/Draymont/StockCouncil/internal/port/cache"
	"github.com/Draymont/StockCouncil/internal/port/worker"
	"github.com/Draymont/StockCouncil/internal/service/registry"
)

// fakeFactory builds one scripted worker per plan id.
type fakeFactory struct {
	make func(id string) worker.Worker
}

func (f *fakeFactory) WorkersFor(v workflow.Variant) (map[string]worker.Worker, error) {
	plan, err := workflow.PlanFor(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]worker.Worker)
	for _, id := range plan.WorkerIDs() {
		if f.make != nil {
			out[id] = f.make(id)
		} else {
			out[id] = &scriptedWorker{id: id}
		}
	}
	return out, nil
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Analysis = testAnalysisConfig()
	cfg.Cache.TTL = time.Minute
	return &cfg
}

func newTestService(t *testing.T, factory worker.Factory, snapshots cache.Cache) (*AnalysisService, *registry.Store, *capturePublisher) {
	t.Helper()
	store := registry.New()
	pub := &capturePublisher{}
	cfg := testConfig()
	sched := NewScheduler(store, cfg.Analysis, nil, pub)
	svc := NewAnalysisService(store, sched, factory, snapshots, cfg, nil, pub)
	return svc, store, pub
}

type memSnapshots struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{data: make(map[string][]byte)}
}

func (m *memSnapshots) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memSnapshots) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memSnapshots) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// waitTerminal polls the store until the session reaches a terminal status.
func waitTerminal(t *testing.T, store *registry.Store, id string) analysis.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := store.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		if sess.Status.IsTerminal() {
			return sess
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("session never reached a terminal status")
	return analysis.Session{}
}

func TestStartRunsCouncilToCompletion(t *testing.T) {
	factory := &fakeFactory{make: func(id string) worker.Worker {
		return &scriptedWorker{id: id, reply: func(int, string, []analysis.Turn) (string, error) {
			if id == workflow.WorkerReport {
				return "FINAL RECOMMENDATION: BUY\nCONFIDENCE: 85%\nSTOP", nil
			}
			return "analysis from " + id, nil
		}}
	}}
	svc, store, pub := newTestService(t, factory, nil)

	sess, err := svc.Start(context.Background(), StartRequest{Subject: " aapl ", AnalysisType: "buying"})
	if err != nil {
		t.Fatal(err)
	}
	if sess.Subject != "AAPL" {
		t.Errorf("expected normalized subject AAPL, got %q", sess.Subject)
	}
	if sess.Variant != string(workflow.VariantCouncil) {
		t.Errorf("expected council default, got %q", sess.Variant)
	}
	if sess.Question != "Should I buy stocks of AAPL?" {
		t.Errorf("unexpected question %q", sess.Question)
	}

	done := waitTerminal(t, store, sess.ID)
	if done.Status != analysis.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", done.Status, done.Error)
	}
	if done.Progress != 100 {
		t.Errorf("expected progress 100, got %d", done.Progress)
	}
	if done.Recommendation != analysis.Buy {
		t.Errorf("expected BUY verdict, got %s", done.Recommendation)
	}
	if done.Confidence == nil || *done.Confidence != 85 {
		t.Error("expected confidence 85")
	}
	if len(done.Phases) != 1 || done.Phases[0].Reason != analysis.ReasonKeyword {
		t.Errorf("expected single keyword-terminated phase, got %+v", done.Phases)
	}

	events := pub.all()
	last := events[len(events)-1]
	if last.Kind != analysis.EventAnalysisComplete {
		t.Errorf("expected terminal complete event last, got %s", last.Kind)
	}
	if !strings.HasPrefix(last.Content, "BUY AAPL") {
		t.Errorf("unexpected terminal summary %q", last.Content)
	}
}

func TestStartRejectsBadRequests(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeFactory{}, nil)

	if _, err := svc.Start(context.Background(), StartRequest{Subject: "   "}); err == nil {
		t.Error("expected error for empty subject")
	}
	if _, err := svc.Start(context.Background(), StartRequest{
		Subject: "AAPL", Variant: workflow.Variant("classic"),
	}); err == nil {
		t.Error("expected error for unknown variant")
	}
}

func TestCancelEndsSessionCancelled(t *testing.T) {
	factory := &fakeFactory{make: func(id string) worker.Worker {
		return &scriptedWorker{id: id, delay: 10 * time.Millisecond}
	}}
	svc, store, pub := newTestService(t, factory, nil)

	sess, err := svc.Start(context.Background(), StartRequest{Subject: "TSLA"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Cancel(sess.ID); err != nil {
		t.Fatal(err)
	}

	done := waitTerminal(t, store, sess.ID)
	if done.Status != analysis.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", done.Status)
	}
	// Verdict extraction is skipped on cancellation.
	if done.Recommendation != "" {
		t.Errorf("expected no verdict on a cancelled session, got %s", done.Recommendation)
	}

	events := pub.all()
	last := events[len(events)-1]
	if last.Kind != analysis.EventAnalysisCancelled {
		t.Errorf("expected cancelled event last, got %s", last.Kind)
	}
}

func TestCancelUnknownSession(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeFactory{}, nil)
	if err := svc.Cancel("ghost"); !errors.Is(err, analysis.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunFailureEndsSessionError(t *testing.T) {
	factory := &fakeFactory{make: func(id string) worker.Worker {
		return &scriptedWorker{id: id, reply: func(int, string, []analysis.Turn) (string, error) {
			return "", &worker.FailureError{WorkerID: id, Reason: "backend down"}
		}}
	}}
	svc, store, pub := newTestService(t, factory, nil)

	sess, err := svc.Start(context.Background(), StartRequest{Subject: "NVDA"})
	if err != nil {
		t.Fatal(err)
	}

	done := waitTerminal(t, store, sess.ID)
	if done.Status != analysis.StatusError {
		t.Fatalf("expected error status, got %s", done.Status)
	}
	if !strings.Contains(done.Error, "backend down") {
		t.Errorf("expected failure cause recorded, got %q", done.Error)
	}

	events := pub.all()
	last := events[len(events)-1]
	if last.Kind != analysis.EventAnalysisError {
		t.Errorf("expected error event last, got %s", last.Kind)
	}
}

func TestTerminalSnapshotCached(t *testing.T) {
	snapshots := newMemSnapshots()
	svc, store, _ := newTestService(t, &fakeFactory{}, snapshots)

	sess, err := svc.Start(context.Background(), StartRequest{Subject: "AMZN"})
	if err != nil {
		t.Fatal(err)
	}
	waitTerminal(t, store, sess.ID)

	// cacheSnapshot runs right after the terminal transition.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok, _ := snapshots.Get(context.Background(), "session:"+sess.ID); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("terminal snapshot never cached")
		}
		time.Sleep(2 * time.Millisecond)
	}

	got, err := svc.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != sess.ID || !got.Status.IsTerminal() {
		t.Errorf("unexpected cached snapshot %+v", got)
	}
}

func TestGetServesFromCacheFirst(t *testing.T) {
	snapshots := newMemSnapshots()
	svc, _, _ := newTestService(t, &fakeFactory{}, snapshots)

	cached := analysis.Session{ID: "cached-id", Subject: "AAPL", Status: analysis.StatusCompleted}
	data, _ := json.Marshal(cached)
	_ = snapshots.Set(context.Background(), "session:cached-id", data, time.Minute)

	got, err := svc.Get(context.Background(), "cached-id")
	if err != nil {
		t.Fatal(err)
	}
	if got.Subject != "AAPL" || got.Status != analysis.StatusCompleted {
		t.Errorf("expected cached session, got %+v", got)
	}

	// Unknown everywhere still errors.
	if _, err := svc.Get(context.Background(), "ghost"); !errors.Is(err, analysis.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListHonoursHistoryCap(t *testing.T) {
	store := registry.New()
	cfg := testConfig()
	cfg.Analysis.MaxHistory = 2
	sched := NewScheduler(store, cfg.Analysis, nil)
	svc := NewAnalysisService(store, sched, &fakeFactory{}, nil, cfg, nil)

	store.Create("A", "council", "q")
	b := store.Create("B", "council", "q")
	c := store.Create("C", "council", "q")

	list := svc.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	if list[0].ID != b.ID || list[1].ID != c.ID {
		t.Error("expected the most recent sessions kept")
	}
}
