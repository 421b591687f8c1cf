package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-prereq/internal/data/graph"
	"github.com/yungbote/neurobridge-prereq/internal/data/repos"
	types "github.com/yungbote/neurobridge-prereq/internal/domain"
	"github.com/yungbote/neurobridge-prereq/internal/domain/seed"
	"github.com/yungbote/neurobridge-prereq/internal/modules/prereq"
	"github.com/yungbote/neurobridge-prereq/internal/normalization"
	"github.com/yungbote/neurobridge-prereq/internal/ownerlock"
	"github.com/yungbote/neurobridge-prereq/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

type GraphService interface {
	SeedLearner(ctx context.Context, ownerID uuid.UUID, gradeLevel string) (*SeedResult, error)
	// Expand grows the graph for topic and then propagates readiness.
	Expand(ctx context.Context, ownerID uuid.UUID, topic string) (*ExpandResult, error)
	Propagate(ctx context.Context, ownerID uuid.UUID) (*prereq.Report, error)
	AdvanceStatus(ctx context.Context, req AdvanceStatusRequest) (*AdvanceResult, error)

	GraphStructure(ctx context.Context, ownerID uuid.UUID) (*GraphView, error)
	NodeDetails(ctx context.Context, ownerID uuid.UUID, nodeID string) (*NodeView, error)
}

type SeedResult struct {
	Root      types.TopicNode   `json:"root"`
	BaseNodes []types.TopicNode `json:"base_nodes"`
	Created   int               `json:"created"`
}

type ExpandResult struct {
	Node   *types.TopicNode `json:"node"`
	Report *prereq.Report   `json:"propagation"`
}

type AdvanceStatusRequest struct {
	OwnerID    uuid.UUID
	NodeID     string
	Status     string
	ContentRef *string
	Reason     string
}

type AdvanceResult struct {
	Node   *types.TopicNode `json:"node"`
	From   types.NodeStatus `json:"from"`
	Report *prereq.Report   `json:"propagation"`
}

type GraphNodeView struct {
	ID          string           `json:"id"`
	Kind        types.NodeKind   `json:"kind"`
	Topic       string           `json:"topic"`
	DisplayName string           `json:"display_name"`
	Status      types.NodeStatus `json:"status"`
}

type GraphView struct {
	OwnerID uuid.UUID       `json:"owner_id"`
	Nodes   []GraphNodeView `json:"nodes"`
	Edges   []types.Edge    `json:"edges"`
}

type NodeView struct {
	ID           string                `json:"id"`
	Kind         types.NodeKind        `json:"kind"`
	Topic        string                `json:"topic"`
	DisplayName  string                `json:"display_name"`
	Status       types.NodeStatus      `json:"status"`
	Blurb        string                `json:"blurb"`
	Masteries    map[string]bool       `json:"masteries"`
	LatestStatus *types.StatusSnapshot `json:"latest_status,omitempty"`
	ContentRef   *string               `json:"content_ref,omitempty"`
	Parents      []string              `json:"parents"`
	Children     []string              `json:"children"`
}

type graphService struct {
	graph      graph.Store
	records    repos.NodeRecordRepo
	expander   *prereq.Expander
	propagator *prereq.Propagator
	locks      ownerlock.Locker
	log        *logger.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

func NewGraphService(
	store graph.Store,
	records repos.NodeRecordRepo,
	expander *prereq.Expander,
	propagator *prereq.Propagator,
	locks ownerlock.Locker,
	baseLog *logger.Logger,
) GraphService {
	if locks == nil {
		locks = ownerlock.NewLocal()
	}
	return &graphService{
		graph:      store,
		records:    records,
		expander:   expander,
		propagator: propagator,
		locks:      locks,
		log:        baseLog.With("service", "GraphService"),
		tracer:     otel.Tracer("neurobridge-prereq/services"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *graphService) withOwner(ctx context.Context, name string, ownerID uuid.UUID, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("owner_id", ownerID.String())))
	defer span.End()

	unlock, err := s.locks.Lock(ctx, ownerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock")
		return fmt.Errorf("lock learner graph: %w", err)
	}
	defer unlock()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// SeedLearner creates the root and one completed base node per subject.
// Seeding again is a no-op for nodes that already exist; a different grade
// adds that grade's base nodes alongside the existing ones.
func (s *graphService) SeedLearner(ctx context.Context, ownerID uuid.UUID, gradeLevel string) (*SeedResult, error) {
	bases, err := seed.BaseTopics(gradeLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGrade, gradeLevel)
	}

	out := &SeedResult{}
	err = s.withOwner(ctx, "GraphService.SeedLearner", ownerID, func(ctx context.Context) error {
		root, created, err := s.ensureNode(ctx, types.TopicNode{
			ID:      types.RootKey,
			OwnerID: ownerID,
			Kind:    types.KindRoot,
			Topic:   "Root",
			Status:  types.StatusCompleted,
		}, "Root")
		if err != nil {
			return err
		}
		out.Root = *root
		if created {
			out.Created++
		}

		for _, b := range bases {
			topic := normalization.CleanText(b.Topic)
			node, created, err := s.ensureNode(ctx, types.TopicNode{
				ID:      normalization.TopicKey(topic),
				OwnerID: ownerID,
				Kind:    types.KindBase,
				Topic:   topic,
				Status:  types.StatusCompleted,
			}, b.Subject)
			if err != nil {
				return err
			}
			if err := s.graph.InsertEdge(ctx, ownerID, types.Edge{From: types.RootKey, To: node.ID, Label: types.EdgeBase}); err != nil {
				return fmt.Errorf("%w: base edge %q: %w", prereq.ErrStoreWrite, node.ID, err)
			}
			out.BaseNodes = append(out.BaseNodes, *node)
			if created {
				out.Created++
			}
		}
		return nil
	})
	if err != nil {
		s.log.Warn("Seeding failed", "owner_id", ownerID, "grade", gradeLevel, "error", err)
		return nil, err
	}
	s.log.Info("Learner seeded", "owner_id", ownerID, "grade", seed.NormalizeGrade(gradeLevel), "created", out.Created)
	return out, nil
}

// ensureNode creates the record and vertex for node unless the vertex is
// already there.
func (s *graphService) ensureNode(ctx context.Context, node types.TopicNode, publicName string) (*types.TopicNode, bool, error) {
	existing, err := s.graph.GetVertex(ctx, node.OwnerID, node.ID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: vertex %q: %w", prereq.ErrStoreRead, node.ID, err)
	}
	if existing != nil {
		return existing, false, nil
	}

	rec, _, err := s.records.GetOrCreate(dbctx.New(ctx), &types.NodeRecord{
		OwnerID:    node.OwnerID,
		TopicKey:   node.ID,
		Topic:      node.Topic,
		PublicName: publicName,
		LearningStatus: datatypes.NewJSONType([]types.StatusSnapshot{{
			Status: node.Status,
			Reason: "seeded",
			At:     s.now(),
		}}),
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: record %q: %w", prereq.ErrStoreWrite, node.ID, err)
	}
	node.RecordRef = rec.ID

	if err := s.graph.InsertVertex(ctx, node); err != nil {
		if errors.Is(err, graph.ErrVertexExists) {
			got, gerr := s.graph.GetVertex(ctx, node.OwnerID, node.ID)
			if gerr == nil && got != nil {
				return got, false, nil
			}
		}
		return nil, false, fmt.Errorf("%w: vertex %q: %w", prereq.ErrStoreWrite, node.ID, err)
	}
	return &node, true, nil
}

func (s *graphService) Expand(ctx context.Context, ownerID uuid.UUID, topic string) (*ExpandResult, error) {
	out := &ExpandResult{}
	err := s.withOwner(ctx, "GraphService.Expand", ownerID, func(ctx context.Context) error {
		node, err := s.expander.Expand(ctx, ownerID, topic)
		if err != nil {
			return err
		}
		out.Node = node
		report, err := s.propagator.Propagate(ctx, ownerID)
		if err != nil {
			return err
		}
		out.Report = report
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *graphService) Propagate(ctx context.Context, ownerID uuid.UUID) (*prereq.Report, error) {
	var report *prereq.Report
	err := s.withOwner(ctx, "GraphService.Propagate", ownerID, func(ctx context.Context) error {
		r, err := s.propagator.Propagate(ctx, ownerID)
		report = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// AdvanceStatus applies a collaborator-requested transition, records it in
// the node's history and re-runs propagation.
func (s *graphService) AdvanceStatus(ctx context.Context, req AdvanceStatusRequest) (*AdvanceResult, error) {
	nodeID := strings.TrimSpace(req.NodeID)
	if nodeID == types.RootKey {
		return nil, ErrRootImmutable
	}
	to, ok := types.ParseNodeStatus(req.Status)
	if !ok {
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrInvalidStatus, req.Status, statusNames())
	}

	out := &AdvanceResult{}
	err := s.withOwner(ctx, "GraphService.AdvanceStatus", req.OwnerID, func(ctx context.Context) error {
		node, err := s.graph.GetVertex(ctx, req.OwnerID, nodeID)
		if err != nil {
			return fmt.Errorf("%w: vertex %q: %w", prereq.ErrStoreRead, nodeID, err)
		}
		if node == nil {
			return fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
		}
		if node.IsRoot() {
			return ErrRootImmutable
		}
		from, ok := types.ParseNodeStatus(string(node.Status))
		if !ok {
			return &prereq.MalformedStatusError{NodeID: node.ID, Raw: string(node.Status)}
		}
		if !types.CanAdvance(from, to) {
			return &TransitionError{NodeID: node.ID, From: from, To: to}
		}

		if req.ContentRef != nil {
			ref := strings.TrimSpace(*req.ContentRef)
			if err := s.graph.SetContentRef(ctx, req.OwnerID, node.ID, &ref); err != nil {
				return fmt.Errorf("%w: content ref of %q: %w", prereq.ErrStoreWrite, node.ID, err)
			}
			node.ContentRef = &ref
		}
		if err := s.graph.SetStatus(ctx, req.OwnerID, node.ID, to); err != nil {
			return fmt.Errorf("%w: status of %q: %w", prereq.ErrStoreWrite, node.ID, err)
		}
		node.Status = to

		if node.RecordRef != uuid.Nil {
			reason := strings.TrimSpace(req.Reason)
			if reason == "" {
				reason = fmt.Sprintf("%s -> %s", from, to)
			}
			_, err := s.records.AppendStatus(dbctx.New(ctx), node.RecordRef, types.StatusSnapshot{Status: to, Reason: reason, At: s.now()})
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: status history of %q: %w", prereq.ErrStoreWrite, node.ID, err)
			}
		}
		s.log.Info("Node status advanced", "owner_id", req.OwnerID, "node_id", node.ID, "from", from, "to", to)

		out.Node = node
		out.From = from
		report, err := s.propagator.Propagate(ctx, req.OwnerID)
		if err != nil {
			return err
		}
		out.Report = report
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *graphService) GraphStructure(ctx context.Context, ownerID uuid.UUID) (*GraphView, error) {
	ctx, span := s.tracer.Start(ctx, "GraphService.GraphStructure")
	defer span.End()

	nodes, edges, err := s.graph.Snapshot(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot: %w", prereq.ErrStoreRead, err)
	}
	if len(nodes) == 0 {
		return nil, prereq.ErrRootMissing
	}

	names := map[uuid.UUID]string{}
	ids := make([]uuid.UUID, 0, len(nodes))
	for _, n := range nodes {
		if n.RecordRef != uuid.Nil {
			ids = append(ids, n.RecordRef)
		}
	}
	if len(ids) > 0 {
		recs, err := s.records.GetByIDs(dbctx.New(ctx), ids)
		if err != nil {
			return nil, fmt.Errorf("%w: records: %w", prereq.ErrStoreRead, err)
		}
		for _, r := range recs {
			names[r.ID] = r.PublicName
		}
	}

	out := &GraphView{OwnerID: ownerID, Nodes: make([]GraphNodeView, 0, len(nodes)), Edges: edges}
	for _, n := range nodes {
		out.Nodes = append(out.Nodes, GraphNodeView{
			ID:          n.ID,
			Kind:        n.Kind,
			Topic:       n.Topic,
			DisplayName: displayName(names[n.RecordRef], n.Topic),
			Status:      n.Status,
		})
	}
	if out.Edges == nil {
		out.Edges = []types.Edge{}
	}
	return out, nil
}

func (s *graphService) NodeDetails(ctx context.Context, ownerID uuid.UUID, nodeID string) (*NodeView, error) {
	ctx, span := s.tracer.Start(ctx, "GraphService.NodeDetails")
	defer span.End()

	nodeID = strings.TrimSpace(nodeID)
	node, err := s.graph.GetVertex(ctx, ownerID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("%w: vertex %q: %w", prereq.ErrStoreRead, nodeID, err)
	}
	if node == nil {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}

	view := &NodeView{
		ID:         node.ID,
		Kind:       node.Kind,
		Topic:      node.Topic,
		Status:     node.Status,
		ContentRef: node.ContentRef,
		Masteries:  map[string]bool{},
		Blurb:      types.DefaultBlurb,
	}
	var publicName string
	if node.RecordRef != uuid.Nil {
		rec, err := s.records.GetByID(dbctx.New(ctx), node.RecordRef)
		if err != nil {
			return nil, fmt.Errorf("%w: record of %q: %w", prereq.ErrStoreRead, nodeID, err)
		}
		if rec != nil {
			publicName = rec.PublicName
			view.Blurb = rec.Blurb
			if m := rec.Masteries.Data(); m != nil {
				view.Masteries = m
			}
			view.LatestStatus = rec.LatestStatus()
		}
	}
	view.DisplayName = displayName(publicName, node.Topic)

	parents, err := s.graph.Parents(ctx, ownerID, node.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: parents of %q: %w", prereq.ErrStoreRead, nodeID, err)
	}
	children, err := s.graph.Children(ctx, ownerID, node.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: children of %q: %w", prereq.ErrStoreRead, nodeID, err)
	}
	view.Parents = nodeIDs(parents)
	view.Children = nodeIDs(children)
	return view, nil
}

func displayName(public, topic string) string {
	if strings.TrimSpace(public) != "" {
		return public
	}
	return normalization.DisplayName(topic)
}

func nodeIDs(nodes []types.TopicNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	sort.Strings(out)
	return out
}

func statusNames() string {
	all := types.AllStatuses()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.String()
	}
	return strings.Join(names, ", ")
}
