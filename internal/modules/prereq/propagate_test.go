package prereq

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-prereq/internal/data/graph"
	types "github.com/yungbote/neurobridge-prereq/internal/domain"
	"github.com/yungbote/neurobridge-prereq/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

type propagateFixture struct {
	owner   uuid.UUID
	store   *graph.MemoryStore
	signals *recordingPublisher
	prop    *Propagator
}

func newPropagateFixture(t *testing.T) *propagateFixture {
	t.Helper()
	f := &propagateFixture{owner: uuid.New(), store: graph.NewMemoryStore(), signals: &recordingPublisher{}}
	seedGraph(t, f.store, f.owner)
	f.prop = NewPropagator(f.store, nil, f.signals, logger.Nop())
	f.prop.now = fixedNow
	return f
}

func (f *propagateFixture) status(t *testing.T, id string) types.NodeStatus {
	t.Helper()
	n, err := f.store.GetVertex(context.Background(), f.owner, id)
	if err != nil || n == nil {
		t.Fatalf("GetVertex(%s): %v %v", id, n, err)
	}
	return n.Status
}

func TestPropagateStartsUnblockedNodeWithoutDescending(t *testing.T) {
	f := newPropagateFixture(t)
	a := addNode(t, f.store, f.owner, "a", types.StatusUnstarted, types.RootKey)
	b := addNode(t, f.store, f.owner, "b", types.StatusUnstarted, a)

	report, err := f.prop.Propagate(context.Background(), f.owner)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if got := f.status(t, a); got != types.StatusFirstGen {
		t.Fatalf("a: expected firstgen, got %s", got)
	}
	if got := f.status(t, b); got != types.StatusUnstarted {
		t.Fatalf("b must not be touched, got %s", got)
	}
	if len(f.signals.signals) != 1 || f.signals.count(types.SignalContentGeneration, a) != 1 {
		t.Fatalf("expected one generation signal for a, got %+v", f.signals.signals)
	}
	sig := f.signals.signals[0]
	if sig.OwnerID != f.owner || !sig.EmittedAt.Equal(fixedNow()) {
		t.Fatalf("unexpected signal: %+v", sig)
	}
	if !slices.Equal(report.Started, []string{a}) || report.Visited != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got := f.status(t, types.RootKey); got != types.StatusCompleted {
		t.Fatalf("root must stay completed, got %s", got)
	}
}

func TestPropagateGradedEmitsOneRegeneration(t *testing.T) {
	f := newPropagateFixture(t)
	x := addNode(t, f.store, f.owner, "x", types.StatusCompleted, types.RootKey)
	y := addNode(t, f.store, f.owner, "y", types.StatusCompleted, types.RootKey)
	b := addNode(t, f.store, f.owner, "b", types.StatusGraded, x, y)
	c := addNode(t, f.store, f.owner, "c", types.StatusUnstarted, b)

	report, err := f.prop.Propagate(context.Background(), f.owner)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if n := f.signals.count(types.SignalContentRegeneration, b); n != 1 {
		t.Fatalf("expected exactly one regeneration signal for b, got %d", n)
	}
	if len(f.signals.signals) != 1 {
		t.Fatalf("expected no other signals, got %+v", f.signals.signals)
	}
	if got := f.status(t, b); got != types.StatusGraded {
		t.Fatalf("graded node status must not change, got %s", got)
	}
	if got := f.status(t, c); got != types.StatusUnstarted {
		t.Fatalf("children of graded node must not be visited, got %s", got)
	}
	if report.Visited != 4 {
		t.Fatalf("expected root, x, y, b visited; got %d", report.Visited)
	}
}

func TestPropagateStopsAtInFlightNodes(t *testing.T) {
	for _, status := range []types.NodeStatus{types.StatusReady, types.StatusScoring, types.StatusRegen, types.StatusFirstGen} {
		f := newPropagateFixture(t)
		n := addNode(t, f.store, f.owner, "busy", status, types.RootKey)
		child := addNode(t, f.store, f.owner, "child", types.StatusUnstarted, n)
		graded := addNode(t, f.store, f.owner, "graded child", types.StatusGraded, n)

		if _, err := f.prop.Propagate(context.Background(), f.owner); err != nil {
			t.Fatalf("%s: Propagate: %v", status, err)
		}
		if len(f.signals.signals) != 0 {
			t.Fatalf("%s: expected no signals, got %+v", status, f.signals.signals)
		}
		if f.status(t, n) != status || f.status(t, child) != types.StatusUnstarted || f.status(t, graded) != types.StatusGraded {
			t.Fatalf("%s: statuses changed below an in-flight node", status)
		}
	}
}

func TestPropagateWaitsForEveryParent(t *testing.T) {
	f := newPropagateFixture(t)
	done := addNode(t, f.store, f.owner, "done", types.StatusCompleted, types.RootKey)
	busy := addNode(t, f.store, f.owner, "busy", types.StatusReady, types.RootKey)
	target := addNode(t, f.store, f.owner, "target", types.StatusUnstarted, done, busy)

	report, err := f.prop.Propagate(context.Background(), f.owner)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if got := f.status(t, target); got != types.StatusUnstarted {
		t.Fatalf("target has an unfinished parent, got %s", got)
	}
	if !slices.Equal(report.Waiting, []string{target}) || len(f.signals.signals) != 0 {
		t.Fatalf("unexpected report %+v signals %+v", report, f.signals.signals)
	}

	if err := f.store.SetStatus(context.Background(), f.owner, busy, types.StatusCompleted); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if _, err := f.prop.Propagate(context.Background(), f.owner); err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if got := f.status(t, target); got != types.StatusFirstGen {
		t.Fatalf("target should start once all parents complete, got %s", got)
	}
	if n := f.signals.count(types.SignalContentGeneration, target); n != 1 {
		t.Fatalf("expected one generation signal, got %d", n)
	}
}

func TestPropagateIsolatesMalformedStatus(t *testing.T) {
	f := newPropagateFixture(t)
	bad := addNode(t, f.store, f.owner, "bad", types.NodeStatus("half-done"), types.RootKey)
	below := addNode(t, f.store, f.owner, "below", types.StatusUnstarted, bad)
	good := addNode(t, f.store, f.owner, "good", types.StatusUnstarted, types.RootKey)

	report, err := f.prop.Propagate(context.Background(), f.owner)
	if err != nil {
		t.Fatalf("malformed status must not abort the walk: %v", err)
	}
	if len(report.Faults) != 1 || report.Faults[0].NodeID != bad {
		t.Fatalf("expected one fault for bad, got %+v", report.Faults)
	}
	if !errors.Is(report.Faults[0], ErrMalformedStatus) {
		t.Fatalf("fault should match ErrMalformedStatus")
	}
	var mse *MalformedStatusError
	if !errors.As(report.Faults[0], &mse) || mse.Raw != "half-done" {
		t.Fatalf("expected MalformedStatusError, got %+v", report.Faults[0])
	}
	if f.status(t, good) != types.StatusFirstGen {
		t.Fatalf("sibling branch should still start")
	}
	if f.status(t, below) != types.StatusUnstarted {
		t.Fatalf("nodes below a malformed node must not be visited")
	}
}

func TestPropagateReadsParentStatusLikeVisit(t *testing.T) {
	f := newPropagateFixture(t)
	loose := addNode(t, f.store, f.owner, "loose", types.NodeStatus(" Completed"), types.RootKey)
	strict := addNode(t, f.store, f.owner, "strict", types.StatusCompleted, types.RootKey)
	child := addNode(t, f.store, f.owner, "child", types.StatusUnstarted, loose, strict)

	report, err := f.prop.Propagate(context.Background(), f.owner)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if len(report.Faults) != 0 {
		t.Fatalf("a case-folded status is valid, got faults %+v", report.Faults)
	}
	if got := f.status(t, child); got != types.StatusFirstGen {
		t.Fatalf("child of completed parents should start, got %s (report %+v)", got, report)
	}

	// An unreadable prerequisite keeps its dependents blocked.
	f = newPropagateFixture(t)
	done := addNode(t, f.store, f.owner, "done", types.StatusCompleted, types.RootKey)
	broken := addNode(t, f.store, f.owner, "broken", types.NodeStatus("half-done"), types.RootKey)
	child = addNode(t, f.store, f.owner, "child", types.StatusUnstarted, done, broken)

	report, err = f.prop.Propagate(context.Background(), f.owner)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if got := f.status(t, child); got != types.StatusUnstarted {
		t.Fatalf("child behind a malformed parent must wait, got %s", got)
	}
	if len(report.Waiting) != 1 || report.Waiting[0] != child {
		t.Fatalf("expected child waiting, got %+v", report.Waiting)
	}
}

func TestPropagateFailures(t *testing.T) {
	t.Run("root missing", func(t *testing.T) {
		p := NewPropagator(graph.NewMemoryStore(), nil, &recordingPublisher{}, logger.Nop())
		if _, err := p.Propagate(context.Background(), uuid.New()); !errors.Is(err, ErrRootMissing) {
			t.Fatalf("expected ErrRootMissing, got %v", err)
		}
	})
	t.Run("store read", func(t *testing.T) {
		f := newPropagateFixture(t)
		store := &flakyStore{Store: f.store, childrenErr: errBoom}
		p := NewPropagator(store, nil, f.signals, logger.Nop())
		if _, err := p.Propagate(context.Background(), f.owner); !errors.Is(err, ErrStoreRead) || !errors.Is(err, errBoom) {
			t.Fatalf("expected ErrStoreRead, got %v", err)
		}
	})
	t.Run("signal publish", func(t *testing.T) {
		f := newPropagateFixture(t)
		a := addNode(t, f.store, f.owner, "a", types.StatusUnstarted, types.RootKey)
		f.signals.err = errBoom
		if _, err := f.prop.Propagate(context.Background(), f.owner); !errors.Is(err, ErrSignalPublish) {
			t.Fatalf("expected ErrSignalPublish, got %v", err)
		}
		if f.status(t, a) != types.StatusUnstarted {
			t.Fatalf("status must not advance when the signal was not sent")
		}
	})
	t.Run("status write", func(t *testing.T) {
		f := newPropagateFixture(t)
		addNode(t, f.store, f.owner, "a", types.StatusUnstarted, types.RootKey)
		store := &flakyStore{Store: f.store, setErr: errBoom}
		p := NewPropagator(store, nil, f.signals, logger.Nop())
		if _, err := p.Propagate(context.Background(), f.owner); !errors.Is(err, ErrStoreWrite) {
			t.Fatalf("expected ErrStoreWrite, got %v", err)
		}
	})
}

func TestPropagateAppendsStatusHistory(t *testing.T) {
	f := newPropagateFixture(t)
	records := newMemoryRecords()
	dbc := dbctx.Context{Ctx: context.Background()}
	rec, _ := records.Create(dbc, &types.NodeRecord{OwnerID: f.owner, TopicKey: "a", Topic: "a"})
	if err := f.store.InsertVertex(context.Background(), types.TopicNode{ID: "a", OwnerID: f.owner, Kind: types.KindTopic, Topic: "a", Status: types.StatusUnstarted, RecordRef: rec.ID}); err != nil {
		t.Fatalf("InsertVertex: %v", err)
	}
	if err := f.store.InsertEdge(context.Background(), f.owner, types.Edge{From: types.RootKey, To: "a", Label: types.EdgeBase}); err != nil {
		t.Fatalf("InsertEdge: %v", err)
	}

	p := NewPropagator(f.store, records, f.signals, logger.Nop())
	p.now = fixedNow
	if _, err := p.Propagate(context.Background(), f.owner); err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	got, _ := records.GetByID(dbc, rec.ID)
	last := got.LatestStatus()
	if last == nil || last.Status != types.StatusFirstGen || !last.At.Equal(fixedNow()) {
		t.Fatalf("unexpected history: %+v", got.LearningStatus.Data())
	}
}

// TestPropagateReadinessProperty checks, over random DAGs, that a node moves
// to firstgen exactly when it was unstarted, is reachable from the root
// through completed nodes only, and every one of its parents is completed.
func TestPropagateReadinessProperty(t *testing.T) {
	statuses := []types.NodeStatus{
		types.StatusUnstarted, types.StatusUnstarted, types.StatusUnstarted,
		types.StatusCompleted, types.StatusCompleted, types.StatusCompleted,
		types.StatusFirstGen, types.StatusReady, types.StatusScoring,
		types.StatusGraded, types.StatusRegen,
	}

	for seed := uint64(1); seed <= 200; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*7919))
		f := newPropagateFixture(t)
		n := 3 + rng.IntN(12)

		ids := make([]string, n)
		initial := map[string]types.NodeStatus{}
		parents := map[string][]string{types.RootKey: nil}
		for i := 0; i < n; i++ {
			ids[i] = fmt.Sprintf("n%02d", i)
			st := statuses[rng.IntN(len(statuses))]
			var ps []string
			for j := 0; j < i; j++ {
				if rng.IntN(4) == 0 {
					ps = append(ps, ids[j])
				}
			}
			if len(ps) == 0 || rng.IntN(5) == 0 {
				ps = append(ps, types.RootKey)
			}
			addNode(t, f.store, f.owner, ids[i], st, ps...)
			initial[ids[i]] = st
			parents[ids[i]] = ps
		}
		initial[types.RootKey] = types.StatusCompleted

		// Reference: nodes reachable from root through completed nodes.
		children := map[string][]string{}
		for id, ps := range parents {
			for _, p := range ps {
				children[p] = append(children[p], id)
			}
		}
		reached := map[string]bool{types.RootKey: true}
		queue := []string{types.RootKey}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if initial[cur] != types.StatusCompleted {
				continue
			}
			for _, c := range children[cur] {
				if !reached[c] {
					reached[c] = true
					queue = append(queue, c)
				}
			}
		}

		if _, err := f.prop.Propagate(context.Background(), f.owner); err != nil {
			t.Fatalf("seed %d: Propagate: %v", seed, err)
		}

		for _, id := range ids {
			allDone := true
			for _, p := range parents[id] {
				if initial[p] != types.StatusCompleted {
					allDone = false
				}
			}
			wantStart := initial[id] == types.StatusUnstarted && reached[id] && allDone
			got := f.status(t, id)
			switch {
			case wantStart && got != types.StatusFirstGen:
				t.Fatalf("seed %d: %s should be firstgen, got %s", seed, id, got)
			case !wantStart && got != initial[id]:
				t.Fatalf("seed %d: %s changed from %s to %s", seed, id, initial[id], got)
			}
			wantGen := 0
			if wantStart {
				wantGen = 1
			}
			if c := f.signals.count(types.SignalContentGeneration, id); c != wantGen {
				t.Fatalf("seed %d: %s got %d generation signals, want %d", seed, id, c, wantGen)
			}
			wantRegen := 0
			if initial[id] == types.StatusGraded && reached[id] {
				wantRegen = 1
			}
			if c := f.signals.count(types.SignalContentRegeneration, id); c != wantRegen {
				t.Fatalf("seed %d: %s got %d regeneration signals, want %d", seed, id, c, wantRegen)
			}
		}
		if f.status(t, types.RootKey) != types.StatusCompleted {
			t.Fatalf("seed %d: root mutated", seed)
		}
	}
}
