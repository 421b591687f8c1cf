package prereq

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-prereq/internal/data/graph"
	types "github.com/yungbote/neurobridge-prereq/internal/domain"
	"github.com/yungbote/neurobridge-prereq/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

type expandFixture struct {
	owner   uuid.UUID
	store   *graph.MemoryStore
	records *memoryRecords
	oracle  *scriptedOracle
	exp     *Expander
}

func newExpandFixture(t *testing.T, prereqs map[string][]string, bases ...string) *expandFixture {
	t.Helper()
	f := &expandFixture{
		owner:   uuid.New(),
		store:   graph.NewMemoryStore(),
		records: newMemoryRecords(),
		oracle:  newScriptedOracle(prereqs),
	}
	seedGraph(t, f.store, f.owner, bases...)
	f.exp = NewExpander(f.store, f.records, f.oracle, logger.Nop())
	return f
}

func (f *expandFixture) edges(t *testing.T) map[string]bool {
	t.Helper()
	_, edges, err := f.store.Snapshot(context.Background(), f.owner)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	out := map[string]bool{}
	for _, e := range edges {
		if e.Label == types.EdgePrerequisite {
			out[e.From+"->"+e.To] = true
		}
	}
	return out
}

func (f *expandFixture) topicNodes(t *testing.T) []types.TopicNode {
	t.Helper()
	nodes, _, err := f.store.Snapshot(context.Background(), f.owner)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	var out []types.TopicNode
	for _, n := range nodes {
		if n.Kind == types.KindTopic {
			out = append(out, n)
		}
	}
	return out
}

func TestExpandLinksExistingFrontierNode(t *testing.T) {
	f := newExpandFixture(t, map[string][]string{"fractions": {"division"}}, "division")

	node, err := f.exp.Expand(context.Background(), f.owner, "fractions")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if node.ID != "fractions" || node.Status != types.StatusUnstarted {
		t.Fatalf("unexpected node: %+v", node)
	}
	if got := f.topicNodes(t); len(got) != 1 {
		t.Fatalf("expected exactly one new node, got %d", len(got))
	}
	edges := f.edges(t)
	if len(edges) != 1 || !edges["division->fractions"] {
		t.Fatalf("expected single edge division->fractions, got %v", edges)
	}

	rec, _ := f.records.GetByID(dbctx.Context{Ctx: context.Background()}, node.RecordRef)
	if rec == nil || rec.PublicName != "Fractions" || rec.Blurb != types.DefaultBlurb {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.Masteries.Data()) != 0 {
		t.Fatalf("expected empty checklist without a planner, got %v", rec.Masteries.Data())
	}
}

func TestExpandUsesCoverageAnswer(t *testing.T) {
	f := newExpandFixture(t, map[string][]string{"fractions": {"long division"}}, "division")
	f.oracle.covers["long_division"] = "division"

	if _, err := f.exp.Expand(context.Background(), f.owner, "Fractions"); err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if edges := f.edges(t); len(edges) != 1 || !edges["division->fractions"] {
		t.Fatalf("expected coverage edge from division, got %v", edges)
	}
	if f.oracle.coverCalls != 1 {
		t.Fatalf("expected one coverage call, got %d", f.oracle.coverCalls)
	}
}

func TestExpandIgnoresCoverageOutsideFrontier(t *testing.T) {
	f := newExpandFixture(t, map[string][]string{"fractions": {"long division"}}, "division")
	f.oracle.covers["long_division"] = "calculus"

	if _, err := f.exp.Expand(context.Background(), f.owner, "fractions"); err != nil {
		t.Fatalf("Expand: %v", err)
	}
	edges := f.edges(t)
	if !edges["long_division->fractions"] || len(edges) != 1 {
		t.Fatalf("expected long division to be created instead, got %v", edges)
	}
}

func TestExpandRecursesAndReusesSiblings(t *testing.T) {
	f := newExpandFixture(t, map[string][]string{
		"calculus":  {"limits", "functions"},
		"limits":    {"functions"},
		"functions": {"algebra"},
		"algebra":   {"counting"},
	}, "counting")

	node, err := f.exp.Expand(context.Background(), f.owner, "Calculus")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if node.ID != "calculus" {
		t.Fatalf("unexpected node id %q", node.ID)
	}
	if got := f.topicNodes(t); len(got) != 4 {
		t.Fatalf("expected calculus, limits, functions, algebra; got %+v", got)
	}
	want := []string{
		"counting->algebra",
		"algebra->functions",
		"functions->limits",
		"limits->calculus",
		"functions->calculus",
	}
	edges := f.edges(t)
	if len(edges) != len(want) {
		t.Fatalf("expected %d edges, got %v", len(want), edges)
	}
	for _, e := range want {
		if !edges[e] {
			t.Fatalf("missing edge %s in %v", e, edges)
		}
	}
	if got := f.oracle.lineages["functions"]; len(got) != 2 || got[0] != "limits" || got[1] != "Calculus" {
		t.Fatalf("unexpected lineage for functions: %q", got)
	}
}

func TestExpandIsIdempotentAcrossPhrasings(t *testing.T) {
	f := newExpandFixture(t, map[string][]string{"long division": {"division"}}, "division")

	first, err := f.exp.Expand(context.Background(), f.owner, "Long Division")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	calls := len(f.oracle.decomposed)
	for _, phrasing := range []string{"long-division", "  LONG division!! ", "long_division"} {
		again, err := f.exp.Expand(context.Background(), f.owner, phrasing)
		if err != nil {
			t.Fatalf("Expand(%q): %v", phrasing, err)
		}
		if again.ID != first.ID || again.RecordRef != first.RecordRef {
			t.Fatalf("Expand(%q) returned a different node: %+v vs %+v", phrasing, again, first)
		}
	}
	if len(f.oracle.decomposed) != calls {
		t.Fatalf("re-expansion should not decompose again")
	}
	if got := f.topicNodes(t); len(got) != 1 {
		t.Fatalf("expected one node, got %d", len(got))
	}
}

func TestExpandSharedPrerequisiteAnyOrder(t *testing.T) {
	table := map[string][]string{
		"fractions": {"division"},
		"ratios":    {"Division"},
		"division":  {"multiplication"},
	}
	orders := [][]string{
		{"fractions", "ratios", "division"},
		{"ratios", "division", "fractions"},
		{"division", "fractions", "ratios"},
	}
	for _, order := range orders {
		f := newExpandFixture(t, table, "multiplication")
		for _, topic := range order {
			if _, err := f.exp.Expand(context.Background(), f.owner, topic); err != nil {
				t.Fatalf("order %v: Expand(%s): %v", order, topic, err)
			}
		}
		count := map[string]int{}
		for _, n := range f.topicNodes(t) {
			count[n.ID]++
		}
		if len(count) != 3 || count["division"] != 1 {
			t.Fatalf("order %v: unexpected nodes %v", order, count)
		}
		edges := f.edges(t)
		if !edges["division->fractions"] || !edges["division->ratios"] {
			t.Fatalf("order %v: division should feed both dependents, got %v", order, edges)
		}
	}
}

func TestExpandDepthExceeded(t *testing.T) {
	chain := map[string][]string{}
	for i := 0; i < 20; i++ {
		chain[fmt.Sprintf("level %d", i)] = []string{fmt.Sprintf("level %d", i+1)}
	}
	f := newExpandFixture(t, chain, "counting")

	_, err := f.exp.Expand(context.Background(), f.owner, "level 0")
	if !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("expected ErrDepthExceeded, got %v", err)
	}
	if got := f.topicNodes(t); len(got) != 0 {
		t.Fatalf("no node of the chain may be committed, got %d", len(got))
	}
	if n := len(f.records.rows); n != 0 {
		t.Fatalf("no record of the chain may be committed, got %d", n)
	}
}

func TestExpandDeepestAllowedLevel(t *testing.T) {
	chain := map[string][]string{}
	for i := 0; i < DefaultMaxDepth; i++ {
		chain[fmt.Sprintf("level %d", i)] = []string{fmt.Sprintf("level %d", i+1)}
	}
	f := newExpandFixture(t, chain)

	if _, err := f.exp.Expand(context.Background(), f.owner, "level 0"); err != nil {
		t.Fatalf("chain of %d levels should fit: %v", DefaultMaxDepth+1, err)
	}
	if got := f.topicNodes(t); len(got) != DefaultMaxDepth+1 {
		t.Fatalf("expected %d nodes, got %d", DefaultMaxDepth+1, len(got))
	}

	short := NewExpander(graph.NewMemoryStore(), newMemoryRecords(), f.oracle, logger.Nop(), WithMaxDepth(2))
	owner := uuid.New()
	seedGraph(t, short.graph, owner)
	if _, err := short.Expand(context.Background(), owner, "level 0"); !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("expected ErrDepthExceeded with max depth 2, got %v", err)
	}
}

func TestExpandSkipsAncestorCycles(t *testing.T) {
	f := newExpandFixture(t, map[string][]string{
		"a": {"b"},
		"b": {"A", "c"},
		"c": {"b"},
	})

	if _, err := f.exp.Expand(context.Background(), f.owner, "a"); err != nil {
		t.Fatalf("Expand: %v", err)
	}
	edges := f.edges(t)
	want := map[string]bool{"c->b": true, "b->a": true}
	if len(edges) != len(want) {
		t.Fatalf("expected %v, got %v", want, edges)
	}
	for e := range want {
		if !edges[e] {
			t.Fatalf("missing %s in %v", e, edges)
		}
	}
}

func TestExpandFailures(t *testing.T) {
	t.Run("decomposition", func(t *testing.T) {
		f := newExpandFixture(t, nil)
		f.oracle.decompErr = errBoom
		_, err := f.exp.Expand(context.Background(), f.owner, "fractions")
		if !errors.Is(err, ErrOracleDecomposition) || !errors.Is(err, errBoom) {
			t.Fatalf("expected wrapped decomposition error, got %v", err)
		}
		if len(f.topicNodes(t)) != 0 {
			t.Fatalf("nothing should be created")
		}
	})
	t.Run("root missing", func(t *testing.T) {
		exp := NewExpander(graph.NewMemoryStore(), newMemoryRecords(), newScriptedOracle(nil), logger.Nop())
		if _, err := exp.Expand(context.Background(), uuid.New(), "fractions"); !errors.Is(err, ErrRootMissing) {
			t.Fatalf("expected ErrRootMissing, got %v", err)
		}
	})
	t.Run("empty topic", func(t *testing.T) {
		f := newExpandFixture(t, nil)
		if _, err := f.exp.Expand(context.Background(), f.owner, " ?! "); !errors.Is(err, ErrEmptyTopic) {
			t.Fatalf("expected ErrEmptyTopic, got %v", err)
		}
	})
	t.Run("vertex write", func(t *testing.T) {
		owner := uuid.New()
		mem := graph.NewMemoryStore()
		seedGraph(t, mem, owner)
		store := &flakyStore{Store: mem, insertErr: errBoom}
		exp := NewExpander(store, newMemoryRecords(), newScriptedOracle(nil), logger.Nop())
		if _, err := exp.Expand(context.Background(), owner, "fractions"); !errors.Is(err, ErrStoreWrite) {
			t.Fatalf("expected ErrStoreWrite, got %v", err)
		}
	})
}

func TestExpandReusesLeftoverRecord(t *testing.T) {
	f := newExpandFixture(t, nil)
	leftover, err := f.records.Create(dbctx.Context{Ctx: context.Background()}, &types.NodeRecord{OwnerID: f.owner, TopicKey: "fractions", Topic: "fractions"})
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
	node, err := f.exp.Expand(context.Background(), f.owner, "fractions")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if node.RecordRef != leftover.ID {
		t.Fatalf("expected vertex to reference leftover record %s, got %s", leftover.ID, node.RecordRef)
	}
}

func TestExpandMasteryChecklist(t *testing.T) {
	owner := uuid.New()
	store := graph.NewMemoryStore()
	seedGraph(t, store, owner)
	records := newMemoryRecords()
	oracle := &plannerOracle{scriptedOracle: newScriptedOracle(nil), masteries: []string{"one-sided limits", "limits at infinity"}}

	node, err := NewExpander(store, records, oracle, logger.Nop()).Expand(context.Background(), owner, "limits")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	rec, _ := records.GetByID(dbctx.Context{Ctx: context.Background()}, node.RecordRef)
	if m := rec.Masteries.Data(); len(m) != 2 || m["one-sided limits"] {
		t.Fatalf("unexpected checklist: %v", m)
	}

	oracle.err = errBoom
	node, err = NewExpander(store, records, oracle, logger.Nop()).Expand(context.Background(), owner, "derivatives")
	if err != nil {
		t.Fatalf("planner failure must not abort expansion: %v", err)
	}
	rec, _ = records.GetByID(dbctx.Context{Ctx: context.Background()}, node.RecordRef)
	if len(rec.Masteries.Data()) != 0 {
		t.Fatalf("expected empty checklist after planner failure")
	}

	oracle.err = nil
	node, err = NewExpander(store, records, oracle, logger.Nop(), WithMasteryPlanner(nil)).Expand(context.Background(), owner, "integrals")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	rec, _ = records.GetByID(dbctx.Context{Ctx: context.Background()}, node.RecordRef)
	if len(rec.Masteries.Data()) != 0 {
		t.Fatalf("disabled planner should leave the checklist empty, got %v", rec.Masteries.Data())
	}
}

func TestFrontierWithDoesNotMutate(t *testing.T) {
	base := Frontier{"division": {NodeID: "division", Topic: "division"}}
	next := base.With("fractions", types.TopicNode{ID: "fractions", Topic: "fractions"})
	if len(base) != 1 || len(next) != 2 {
		t.Fatalf("With mutated receiver: base=%v next=%v", base, next)
	}
	if got := next.Candidates(); len(got) != 2 || got[0] != "division" || got[1] != "fractions" {
		t.Fatalf("unexpected candidates: %v", got)
	}
	if e, ok := next.Lookup("Fractions!"); !ok || e.NodeID != "fractions" {
		t.Fatalf("Lookup by phrasing failed: %+v %v", e, ok)
	}
}

func TestExpandAnchorsTopicWithoutPrerequisitesAtRoot(t *testing.T) {
	f := newExpandFixture(t, map[string][]string{"juggling": nil, "cycling": {"Cycling"}}, "counting")
	ctx := context.Background()

	for _, topic := range []string{"Juggling", "cycling"} {
		node, err := f.exp.Expand(ctx, f.owner, topic)
		if err != nil {
			t.Fatalf("Expand(%s): %v", topic, err)
		}
		parents, err := f.store.Parents(ctx, f.owner, node.ID)
		if err != nil {
			t.Fatalf("Parents: %v", err)
		}
		if len(parents) != 1 || parents[0].ID != types.RootKey {
			t.Fatalf("%s should hang off the root, got %+v", node.ID, parents)
		}
	}

	p := NewPropagator(f.store, f.records, &recordingPublisher{}, logger.Nop())
	report, err := p.Propagate(ctx, f.owner)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if len(report.Started) != 2 {
		t.Fatalf("anchored topics should start, got %+v", report)
	}
}
