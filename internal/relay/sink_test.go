package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/bakkerme/relaypipe/internal/dedupe"
	remotemock "github.com/bakkerme/relaypipe/internal/remote/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func itemsOf(values ...string) []core.Item {
	items := make([]core.Item, 0, len(values))
	for _, v := range values {
		items = append(items, core.Item{Value: v, Source: "test"})
	}
	return items
}

type failingSeenStore struct {
	*dedupe.MemoryStore
}

func (s failingSeenStore) MarkSeen(ctx context.Context, id string) error {
	return errors.New("read-only")
}

func newSink(t *testing.T, remote core.RemoteStore, seen dedupe.SeenStore, concurrency int) *Sink {
	t.Helper()
	sink, err := NewSink(remote, seen, concurrency, discardLogger())
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	return sink
}

func assertStatuses(t *testing.T, outcomes []core.Outcome, want ...core.OutcomeStatus) {
	t.Helper()
	if len(outcomes) != len(want) {
		t.Fatalf("expected %d outcomes, got %d", len(want), len(outcomes))
	}
	for i := range want {
		if outcomes[i].Status != want[i] {
			t.Fatalf("outcome %d (%q): got %s want %s", i, outcomes[i].Item.Value, outcomes[i].Status, want[i])
		}
	}
}

func TestSinkSettlesWithinBatchDuplicateAgainstRemote(t *testing.T) {
	remote := remotemock.NewStore()
	remote.Delay = 5 * time.Millisecond
	seen := dedupe.NewMemoryStore()
	sink := newSink(t, remote, seen, 8)

	outcomes := sink.Relay(context.Background(), itemsOf("hello", "world", "hello"))

	assertStatuses(t, outcomes, core.OutcomeRelayed, core.OutcomeRelayed, core.OutcomeSkippedDuplicate)
	if len(remote.Writes) != 2 {
		t.Fatalf("expected two remote writes, got %v", remote.Writes)
	}
	for _, v := range []string{"hello", "world"} {
		if ok, _ := seen.HasSeen(context.Background(), v); !ok {
			t.Fatalf("expected %q to be marked seen", v)
		}
	}
	if seen.Len() != 2 {
		t.Fatalf("expected seen set of size 2, got %d", seen.Len())
	}
	if outcomes[0].Key == "" || outcomes[1].Key == "" {
		t.Fatalf("expected relayed outcomes to carry remote keys")
	}
}

func TestSinkIsolatesWriteFailure(t *testing.T) {
	remote := remotemock.NewStore()
	remote.WriteErr = map[string]error{"world": errors.New("network unreachable")}
	seen := dedupe.NewMemoryStore()
	sink := newSink(t, remote, seen, 4)

	outcomes := sink.Relay(context.Background(), itemsOf("hello", "world"))

	assertStatuses(t, outcomes, core.OutcomeRelayed, core.OutcomeFailed)
	if !errors.Is(outcomes[1].Err, core.ErrRemoteWriteFailed) {
		t.Fatalf("expected ErrRemoteWriteFailed, got %v", outcomes[1].Err)
	}
	if outcomes[1].Reason == "" {
		t.Fatalf("expected failure reason")
	}
	if ok, _ := seen.HasSeen(context.Background(), "world"); ok {
		t.Fatalf("failed item must not be marked seen")
	}
	if seen.Len() != 1 {
		t.Fatalf("expected seen set {hello}, got size %d", seen.Len())
	}
}

func TestSinkIsolatesQueryFailure(t *testing.T) {
	remote := remotemock.NewStore()
	remote.QueryErr = map[string]error{"a": errors.New("auth expired")}
	seen := dedupe.NewMemoryStore()
	sink := newSink(t, remote, seen, 1)

	outcomes := sink.Relay(context.Background(), itemsOf("a", "b"))

	assertStatuses(t, outcomes, core.OutcomeFailed, core.OutcomeRelayed)
	if !errors.Is(outcomes[0].Err, core.ErrRemoteQueryFailed) {
		t.Fatalf("expected ErrRemoteQueryFailed, got %v", outcomes[0].Err)
	}
	for _, v := range remote.Writes {
		if v == "a" {
			t.Fatalf("item with failed query must not be written")
		}
	}
}

func TestSinkMarksRemoteDuplicatesAsSeen(t *testing.T) {
	remote := remotemock.NewStore("hello")
	seen := dedupe.NewMemoryStore()
	sink := newSink(t, remote, seen, 4)

	outcomes := sink.Relay(context.Background(), itemsOf("hello"))

	assertStatuses(t, outcomes, core.OutcomeSkippedDuplicate)
	if len(remote.Writes) != 0 {
		t.Fatalf("expected no writes, got %v", remote.Writes)
	}
	if ok, _ := seen.HasSeen(context.Background(), "hello"); !ok {
		t.Fatalf("expected remotely present item to be marked seen")
	}
}

type racingRemote struct {
	*remotemock.Store
}

// WriteNew simulates another producer writing the value after Exists.
func (r racingRemote) WriteNew(ctx context.Context, value string) (string, error) {
	return "", core.ErrAlreadyExists
}

func TestSinkTreatsLostWriteRaceAsDuplicate(t *testing.T) {
	seen := dedupe.NewMemoryStore()
	sink := newSink(t, racingRemote{remotemock.NewStore()}, seen, 2)

	outcomes := sink.Relay(context.Background(), itemsOf("hello"))

	assertStatuses(t, outcomes, core.OutcomeSkippedDuplicate)
	if ok, _ := seen.HasSeen(context.Background(), "hello"); !ok {
		t.Fatalf("expected item to be marked seen after losing the race")
	}
}

func TestSinkKeepsOutcomeWhenMarkFails(t *testing.T) {
	remote := remotemock.NewStore()
	sink := newSink(t, remote, failingSeenStore{dedupe.NewMemoryStore()}, 2)

	outcomes := sink.Relay(context.Background(), itemsOf("hello"))

	assertStatuses(t, outcomes, core.OutcomeRelayed)
}

func TestSinkReturnsOutcomesInInputOrder(t *testing.T) {
	remote := remotemock.NewStore()
	remote.Delay = 2 * time.Millisecond
	sink := newSink(t, remote, dedupe.NewMemoryStore(), 3)

	values := []string{"e", "d", "c", "b", "a", "f", "g"}
	outcomes := sink.Relay(context.Background(), itemsOf(values...))

	for i, v := range values {
		if outcomes[i].Item.Value != v {
			t.Fatalf("outcome %d: got %q want %q", i, outcomes[i].Item.Value, v)
		}
		if outcomes[i].Status != core.OutcomeRelayed {
			t.Fatalf("outcome %d: unexpected status %s", i, outcomes[i].Status)
		}
	}
	if got := remote.MaxActive(); got > 3 {
		t.Fatalf("expected at most 3 concurrent remote calls, got %d", got)
	}
}

func TestSinkEmptyInputMakesNoRemoteCalls(t *testing.T) {
	remote := remotemock.NewStore()
	sink := newSink(t, remote, dedupe.NewMemoryStore(), 2)

	outcomes := sink.Relay(context.Background(), nil)
	if len(outcomes) != 0 || remote.Calls() != 0 {
		t.Fatalf("expected no outcomes and no calls, got %d outcomes %d calls", len(outcomes), remote.Calls())
	}
}

func TestGroupByIdentity(t *testing.T) {
	groups := groupByIdentity(itemsOf("a", "b", "a", "c", "b"))
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %v", groups)
	}
	if len(groups[0]) != 2 || groups[0][0] != 0 || groups[0][1] != 2 {
		t.Fatalf("unexpected group for a: %v", groups[0])
	}
	if len(groups[1]) != 2 || groups[1][1] != 4 {
		t.Fatalf("unexpected group for b: %v", groups[1])
	}
}

func TestNewSinkRequiresStores(t *testing.T) {
	if _, err := NewSink(nil, dedupe.NewMemoryStore(), 1, nil); err == nil {
		t.Fatalf("expected error without remote")
	}
	if _, err := NewSink(remotemock.NewStore(), nil, 1, nil); err == nil {
		t.Fatalf("expected error without seen store")
	}
}
