package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/bakkerme/relaypipe/internal/dedupe"
	"github.com/bakkerme/relaypipe/internal/remote/mock"
	"github.com/bakkerme/relaypipe/internal/runner/report"
)

type testSource struct {
	mu    sync.Mutex
	name  string
	items []string
	err   error
	reads int
}

func (s *testSource) Name() string { return s.name }

func (s *testSource) Read(context.Context) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.err != nil {
		return nil, s.err
	}
	snapshot := core.Snapshot{}
	for _, v := range s.items {
		snapshot = append(snapshot, core.Item{Value: v, Source: s.name})
	}
	return snapshot, nil
}

func (s *testSource) set(items ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
}

type failingSeenStore struct {
	dedupe.SeenStore
	err   error
	marks int
}

func (s *failingSeenStore) HasSeen(context.Context, string) (bool, error) { return false, s.err }

func (s *failingSeenStore) MarkSeen(context.Context, string) error {
	s.marks++
	return nil
}

type recordingNotifier struct {
	cycles []*core.Cycle
	err    error
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Notify(_ context.Context, cycle *core.Cycle) error {
	n.cycles = append(n.cycles, cycle)
	return n.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner(t *testing.T, src core.SourceReader, seen core.SeenStore, remote core.RemoteStore) (*Runner, *core.Pipeline) {
	t.Helper()
	pipeline := &core.Pipeline{
		ID:      "pipeline-1",
		Name:    "test",
		Sources: []core.SourceReader{src},
		Seen:    seen,
		Remote:  remote,
	}
	r, err := New(pipeline, discardLogger())
	if err != nil {
		t.Fatalf("failed to create runner: %v", err)
	}
	return r, pipeline
}

func statuses(cycle *core.Cycle) []core.OutcomeStatus {
	out := make([]core.OutcomeStatus, 0, len(cycle.Outcomes))
	for _, o := range cycle.Outcomes {
		out = append(out, o.Status)
	}
	return out
}

func TestRunCycle_WithinBatchDuplicates(t *testing.T) {
	src := &testSource{name: "inbox", items: []string{"hello", "world", "hello"}}
	seen := dedupe.NewMemoryStore()
	remote := mock.NewStore()
	r, _ := newTestRunner(t, src, seen, remote)

	cycle, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	want := []core.OutcomeStatus{core.OutcomeRelayed, core.OutcomeRelayed, core.OutcomeSkippedDuplicate}
	got := statuses(cycle)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if len(remote.Writes) != 2 {
		t.Fatalf("expected 2 remote writes, got %d", len(remote.Writes))
	}
	if seen.Len() != 2 {
		t.Fatalf("expected seen set of 2, got %d", seen.Len())
	}
	if cycle.Status != core.CycleStatusCompleted || cycle.SnapshotSize != 3 || cycle.FilteredCount != 3 {
		t.Fatalf("unexpected cycle: %+v", cycle)
	}
}

func TestRunCycle_NothingNewDoesNotContactRemote(t *testing.T) {
	src := &testSource{name: "inbox", items: []string{"hello", "world"}}
	seen := dedupe.NewMemoryStore()
	_ = seen.MarkSeen(context.Background(), "hello")
	_ = seen.MarkSeen(context.Background(), "world")
	remote := mock.NewStore()
	r, _ := newTestRunner(t, src, seen, remote)

	cycle, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(cycle.Outcomes) != 0 || cycle.FilteredCount != 0 {
		t.Fatalf("expected no outcomes, got %+v", cycle.Outcomes)
	}
	if remote.Calls() != 0 {
		t.Fatalf("expected no remote calls, got %d", remote.Calls())
	}
}

func TestRunCycle_EmptyValueIsRememberedAcrossCycles(t *testing.T) {
	src := &testSource{name: "inbox", items: []string{"hello", ""}}
	seen := dedupe.NewMemoryStore()
	remote := mock.NewStore()
	r, _ := newTestRunner(t, src, seen, remote)

	first, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle 1 failed: %v", err)
	}
	if counts := first.Counts(); counts.Relayed != 2 {
		t.Fatalf("expected both values relayed, got %+v", counts)
	}
	callsAfterFirst := remote.Calls()

	second, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle 2 failed: %v", err)
	}
	if second.FilteredCount != 0 || len(second.Outcomes) != 0 {
		t.Fatalf("expected nothing new in cycle 2, got filtered=%d outcomes=%+v", second.FilteredCount, second.Outcomes)
	}
	if calls := remote.Calls() - callsAfterFirst; calls != 0 {
		t.Fatalf("expected no remote calls in cycle 2, got %d", calls)
	}
	if seen.Len() != 2 {
		t.Fatalf("expected seen set of 2, got %d", seen.Len())
	}
}

type pruningSeenStore struct {
	*dedupe.MemoryStore
	prunes int
}

func (s *pruningSeenStore) Prune(context.Context) (int64, error) {
	s.prunes++
	return 0, nil
}

func TestRunCycle_PrunesAfterRelay(t *testing.T) {
	src := &testSource{name: "inbox", items: []string{"hello"}}
	seen := &pruningSeenStore{MemoryStore: dedupe.NewMemoryStore()}
	r, _ := newTestRunner(t, src, seen, mock.NewStore())

	for i := 0; i < 2; i++ {
		if _, err := r.RunCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d failed: %v", i+1, err)
		}
	}
	if seen.prunes != 2 {
		t.Fatalf("expected a prune per completed cycle, got %d", seen.prunes)
	}

	src.err = core.ErrSourceUnavailable
	_, _ = r.RunCycle(context.Background())
	if seen.prunes != 2 {
		t.Fatalf("expected no prune on a failed cycle, got %d", seen.prunes)
	}
}

func TestRunCycle_WriteFailureIsRetriedNextCycle(t *testing.T) {
	src := &testSource{name: "inbox", items: []string{"hello", "world"}}
	seen := dedupe.NewMemoryStore()
	remote := mock.NewStore()
	remote.WriteErr = map[string]error{"world": errors.New("unavailable")}
	r, _ := newTestRunner(t, src, seen, remote)

	first, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if got := statuses(first); got[0] != core.OutcomeRelayed || got[1] != core.OutcomeFailed {
		t.Fatalf("unexpected first cycle outcomes: %v", got)
	}
	if !errors.Is(first.Outcomes[1].Err, core.ErrRemoteWriteFailed) {
		t.Fatalf("expected ErrRemoteWriteFailed, got %v", first.Outcomes[1].Err)
	}
	if ok, _ := seen.HasSeen(context.Background(), "world"); ok {
		t.Fatalf("failed item must not be marked seen")
	}

	delete(remote.WriteErr, "world")
	second, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if second.FilteredCount != 1 || len(second.Outcomes) != 1 || second.Outcomes[0].Item.Value != "world" {
		t.Fatalf("expected only the failed item to be retried, got %+v", second.Outcomes)
	}
	if second.Outcomes[0].Status != core.OutcomeRelayed {
		t.Fatalf("expected retry to relay, got %s", second.Outcomes[0].Status)
	}
	if len(remote.Writes) != 2 {
		t.Fatalf("expected exactly one write per identity, got %v", remote.Writes)
	}
}

func TestRunCycle_Idempotent(t *testing.T) {
	src := &testSource{name: "inbox", items: []string{"a", "b", "a", "c"}}
	seen := dedupe.NewMemoryStore()
	remote := mock.NewStore()
	r, _ := newTestRunner(t, src, seen, remote)

	if _, err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	writes := len(remote.Writes)
	calls := remote.Calls()

	second, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if len(second.Outcomes) != 0 {
		t.Fatalf("expected no outcomes on unchanged snapshot, got %d", len(second.Outcomes))
	}
	if len(remote.Writes) != writes || remote.Calls() != calls {
		t.Fatalf("second cycle touched the remote")
	}
}

func TestRunCycle_NewItemsBetweenCycles(t *testing.T) {
	src := &testSource{name: "inbox", items: []string{"a"}}
	seen := dedupe.NewMemoryStore()
	remote := mock.NewStore()
	r, _ := newTestRunner(t, src, seen, remote)

	if _, err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	src.set("a", "b")
	cycle, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if len(cycle.Outcomes) != 1 || cycle.Outcomes[0].Item.Value != "b" {
		t.Fatalf("expected only the new item, got %+v", cycle.Outcomes)
	}
}

func TestRunCycle_SourceUnavailableAbortsCycle(t *testing.T) {
	src := &testSource{name: "inbox", err: core.ErrSourceUnavailable}
	seen := dedupe.NewMemoryStore()
	remote := mock.NewStore()
	r, _ := newTestRunner(t, src, seen, remote)

	cycle, err := r.RunCycle(context.Background())
	if !errors.Is(err, core.ErrSourceUnavailable) || !IsSourceFailure(err) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if cycle.Status != core.CycleStatusFailed || cycle.Error == "" {
		t.Fatalf("expected failed cycle with error, got %+v", cycle)
	}
	if remote.Calls() != 0 || seen.Len() != 0 {
		t.Fatalf("expected remote and seen store untouched")
	}
}

func TestRunCycle_SeenStoreFailureAbortsCycle(t *testing.T) {
	src := &testSource{name: "inbox", items: []string{"hello"}}
	seen := &failingSeenStore{err: errors.New("disk gone")}
	remote := mock.NewStore()
	r, _ := newTestRunner(t, src, seen, remote)

	_, err := r.RunCycle(context.Background())
	if !errors.Is(err, dedupe.ErrSeenStoreUnavailable) {
		t.Fatalf("expected ErrSeenStoreUnavailable, got %v", err)
	}
	if remote.Calls() != 0 || seen.marks != 0 {
		t.Fatalf("expected nothing relayed or marked")
	}
}

func TestRunCycle_NotifiesAndSavesReport(t *testing.T) {
	src := &testSource{name: "inbox", items: []string{"hello"}}
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	r, pipeline := newTestRunner(t, src, dedupe.NewMemoryStore(), mock.NewStore())
	pipeline.Notifiers = []core.Notifier{notifier}
	pipeline.ReportPath = filepath.Join(t.TempDir(), "last.json")

	cycle, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("notification errors must not fail the cycle: %v", err)
	}
	if len(notifier.cycles) != 1 || notifier.cycles[0] != cycle {
		t.Fatalf("expected notifier to receive the cycle")
	}
	payload, err := report.Load(pipeline.ReportPath)
	if err != nil {
		t.Fatalf("load report: %v", err)
	}
	if payload.Cycle.ID != cycle.ID || payload.Counts.Relayed != 1 {
		t.Fatalf("unexpected report: %+v", payload)
	}
	if r.LastCycle() != cycle || r.CyclesRun() != 1 {
		t.Fatalf("expected runner to record the last cycle")
	}
}

type dropRule struct{ value string }

func (d dropRule) Name() string { return "drop-" + d.value }

func (d dropRule) Apply(_ context.Context, snapshot core.Snapshot) (core.Snapshot, error) {
	out := core.Snapshot{}
	for _, item := range snapshot {
		if item.Value != d.value {
			out = append(out, item)
		}
	}
	return out, nil
}

func TestRunCycle_AppliesRulesBeforeFilter(t *testing.T) {
	src := &testSource{name: "inbox", items: []string{"keep", "spam"}}
	remote := mock.NewStore()
	r, pipeline := newTestRunner(t, src, dedupe.NewMemoryStore(), remote)
	pipeline.Rules = []core.ItemRule{dropRule{value: "spam"}}

	cycle, err := r.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if cycle.SnapshotSize != 2 || cycle.FilteredCount != 1 {
		t.Fatalf("unexpected counts: snapshot=%d new=%d", cycle.SnapshotSize, cycle.FilteredCount)
	}
	if len(remote.Writes) != 1 || remote.Writes[0] != "keep" {
		t.Fatalf("unexpected writes: %v", remote.Writes)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatalf("expected error for nil pipeline")
	}
	if _, err := New(&core.Pipeline{Seen: dedupe.NewMemoryStore(), Remote: mock.NewStore()}, nil); err == nil {
		t.Fatalf("expected error for pipeline without sources")
	}
	if _, err := New(&core.Pipeline{Sources: []core.SourceReader{&testSource{}}, Remote: mock.NewStore()}, nil); err == nil {
		t.Fatalf("expected error for pipeline without seen store")
	}
}
