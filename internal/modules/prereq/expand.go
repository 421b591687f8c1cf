package prereq

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/yungbote/neurobridge-prereq/internal/data/graph"
	"github.com/yungbote/neurobridge-prereq/internal/data/repos"
	types "github.com/yungbote/neurobridge-prereq/internal/domain"
	"github.com/yungbote/neurobridge-prereq/internal/normalization"
	"github.com/yungbote/neurobridge-prereq/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

const DefaultMaxDepth = 10

type Expander struct {
	graph    graph.Store
	records  repos.NodeRecordRepo
	oracle   TopicOracle
	planner  MasteryPlanner
	log      *logger.Logger
	tracer   trace.Tracer
	maxDepth int
}

type ExpanderOption func(*Expander)

// WithMaxDepth sets the deepest recursion level allowed; the top-level
// topic is depth 0.
func WithMaxDepth(d int) ExpanderOption {
	return func(e *Expander) {
		if d > 0 {
			e.maxDepth = d
		}
	}
}

// WithMasteryPlanner overrides the planner detected on the oracle. Passing
// nil disables mastery checklists.
func WithMasteryPlanner(p MasteryPlanner) ExpanderOption {
	return func(e *Expander) { e.planner = p }
}

func NewExpander(store graph.Store, records repos.NodeRecordRepo, oracle TopicOracle, baseLog *logger.Logger, opts ...ExpanderOption) *Expander {
	e := &Expander{
		graph:    store,
		records:  records,
		oracle:   oracle,
		log:      baseLog.With("service", "GraphExpander"),
		tracer:   otel.Tracer("neurobridge-prereq/prereq"),
		maxDepth: DefaultMaxDepth,
	}
	if p, ok := oracle.(MasteryPlanner); ok {
		e.planner = p
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// expansion is the state of one top-level Expand call.
type expansion struct {
	*Expander
	ownerID uuid.UUID
	created int
}

// Expand grows the owner's graph so that topic exists with its unlearned
// prerequisites linked beneath it, and returns topic's node.
//
// Prerequisites already implied by a frontier node are linked to that node
// instead of being created. Everything else is expanded recursively, depth
// first, and joins the frontier so later siblings can reuse it. If topic
// already exists for the owner, the existing node is returned unchanged.
func (e *Expander) Expand(ctx context.Context, ownerID uuid.UUID, topic string) (*types.TopicNode, error) {
	topic = normalization.CleanText(topic)
	key := normalization.TopicKey(topic)
	if key == "" {
		return nil, ErrEmptyTopic
	}

	ctx, span := e.tracer.Start(ctx, "prereq.Expand", trace.WithAttributes(
		attribute.String("topic.key", key),
	))
	defer span.End()

	root, err := e.graph.GetVertex(ctx, ownerID, types.RootKey)
	if err != nil {
		return nil, e.fail(span, wrap(ErrStoreRead, "load root", err))
	}
	if root == nil {
		return nil, e.fail(span, ErrRootMissing)
	}

	frontier, err := LoadFrontier(ctx, e.graph, ownerID)
	if err != nil {
		return nil, e.fail(span, err)
	}

	run := &expansion{Expander: e, ownerID: ownerID}
	node, _, err := run.expand(ctx, topic, nil, map[string]bool{}, frontier, 0)
	if err != nil {
		e.log.Warn("Expansion aborted", "owner_id", ownerID, "topic", topic, "created", run.created, "error", err)
		return nil, e.fail(span, err)
	}
	span.SetAttributes(attribute.Int("nodes.created", run.created))
	e.log.Info("Expansion done", "owner_id", ownerID, "topic", topic, "node_id", node.ID, "created", run.created)
	return node, nil
}

func (e *Expander) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// expand builds topic and returns its node together with the frontier as
// extended by everything created beneath it.
func (x *expansion) expand(ctx context.Context, topic string, lineage []string, ancestors map[string]bool, frontier Frontier, depth int) (*types.TopicNode, Frontier, error) {
	if depth > x.maxDepth {
		return nil, frontier, wrap(ErrDepthExceeded, "topic %q at depth %d (max %d)", nil, topic, depth, x.maxDepth)
	}
	key := normalization.TopicKey(topic)

	existing, err := x.graph.GetVertex(ctx, x.ownerID, key)
	if err != nil {
		return nil, frontier, wrap(ErrStoreRead, "lookup %q", err, key)
	}
	if existing != nil {
		x.log.Debug("Topic already in graph", "depth", depth, "topic", topic, "node_id", existing.ID)
		return existing, frontier, nil
	}

	prereqs, err := x.oracle.Decompose(ctx, topic, lineage)
	if err != nil {
		return nil, frontier, wrap(ErrOracleDecomposition, "decompose %q", err, topic)
	}
	x.log.Debug("Expanding topic", "depth", depth, "topic", topic, "prerequisites", prereqs)

	inner := make(map[string]bool, len(ancestors)+1)
	for k := range ancestors {
		inner[k] = true
	}
	inner[key] = true
	childLineage := append([]string{topic}, lineage...)

	var sources []string
	seen := map[string]bool{}
	link := func(nodeID string) {
		if nodeID == key || seen[nodeID] {
			return
		}
		seen[nodeID] = true
		sources = append(sources, nodeID)
	}

	for _, p := range prereqs {
		p = normalization.CleanText(p)
		pk := normalization.TopicKey(p)
		if pk == "" {
			continue
		}
		if inner[pk] {
			x.log.Warn("Skipping prerequisite that reintroduces an ancestor", "depth", depth, "topic", topic, "prerequisite", p)
			continue
		}
		if entry, ok := frontier[pk]; ok {
			x.log.Debug("Prerequisite already on frontier", "depth", depth, "prerequisite", p, "node_id", entry.NodeID)
			link(entry.NodeID)
			continue
		}

		cov, err := x.oracle.FindCoverage(ctx, p, frontier.Candidates())
		if err != nil {
			return nil, frontier, wrap(ErrOracleCoverage, "coverage of %q", err, p)
		}
		if cov.Covered {
			if entry, ok := frontier.Lookup(cov.Topic); ok && !inner[entry.NodeID] {
				x.log.Debug("Prerequisite covered", "depth", depth, "prerequisite", p, "covered_by", entry.NodeID)
				link(entry.NodeID)
				continue
			}
		}

		x.log.Debug("No coverage, recursing", "depth", depth, "prerequisite", p)
		child, next, err := x.expand(ctx, p, childLineage, inner, frontier, depth+1)
		if err != nil {
			return nil, frontier, err
		}
		frontier = next.With(pk, *child)
		link(child.ID)
	}

	node, err := x.create(ctx, key, topic, depth)
	if err != nil {
		return nil, frontier, err
	}
	if len(sources) == 0 {
		// Nothing is required first, so the node hangs off the root where
		// propagation can reach it.
		if err := x.graph.InsertEdge(ctx, x.ownerID, types.Edge{From: types.RootKey, To: node.ID, Label: types.EdgeBase}); err != nil {
			return nil, frontier, wrap(ErrStoreWrite, "edge %s -> %s", err, types.RootKey, node.ID)
		}
	}
	for _, from := range sources {
		edge := types.Edge{From: from, To: node.ID, Label: types.EdgePrerequisite}
		if err := x.graph.InsertEdge(ctx, x.ownerID, edge); err != nil {
			return nil, frontier, wrap(ErrStoreWrite, "edge %s -> %s", err, from, node.ID)
		}
	}
	return node, frontier, nil
}

// create inserts the record, then the vertex. A record left behind by an
// earlier aborted run is reused; a vertex inserted concurrently wins.
func (x *expansion) create(ctx context.Context, key, topic string, depth int) (*types.TopicNode, error) {
	masteries := map[string]bool{}
	if x.planner != nil {
		subs, err := x.planner.Masteries(ctx, topic)
		if err != nil {
			x.log.Warn("Mastery planning failed, using empty checklist", "topic", topic, "error", err)
		} else {
			masteries = types.NewMasteryChecklist(subs)
		}
	}

	rec, _, err := x.records.GetOrCreate(dbctx.New(ctx), &types.NodeRecord{
		OwnerID:    x.ownerID,
		TopicKey:   key,
		Topic:      topic,
		PublicName: normalization.DisplayName(topic),
		Blurb:      types.DefaultBlurb,
		Masteries:  datatypes.NewJSONType(masteries),
	})
	if err != nil {
		return nil, wrap(ErrStoreWrite, "record for %q", err, key)
	}

	node := types.TopicNode{
		ID:        key,
		OwnerID:   x.ownerID,
		Kind:      types.KindTopic,
		Topic:     topic,
		Status:    types.StatusUnstarted,
		RecordRef: rec.ID,
	}
	if err := x.graph.InsertVertex(ctx, node); err != nil {
		if !errors.Is(err, graph.ErrVertexExists) {
			return nil, wrap(ErrStoreWrite, "vertex %q", err, key)
		}
		existing, getErr := x.graph.GetVertex(ctx, x.ownerID, key)
		if getErr != nil || existing == nil {
			return nil, wrap(ErrStoreWrite, "vertex %q", err, key)
		}
		return existing, nil
	}
	x.created++
	x.log.Debug("Created node", "depth", depth, "node_id", key, "record_id", rec.ID)
	return &node, nil
}
