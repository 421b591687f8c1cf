package prereq

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-prereq/internal/data/graph"
	"github.com/yungbote/neurobridge-prereq/internal/data/repos"
	types "github.com/yungbote/neurobridge-prereq/internal/domain"
	"github.com/yungbote/neurobridge-prereq/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

// NodeFault is a branch the walk gave up on.
type NodeFault struct {
	NodeID  string `json:"node_id"`
	Message string `json:"error"`
	err     error
}

func (f NodeFault) Error() string { return f.Message }

func (f NodeFault) Unwrap() error { return f.err }

// Report summarizes one propagation walk.
type Report struct {
	Visited     int         `json:"visited"`
	Started     []string    `json:"started"`
	Regenerated []string    `json:"regenerated"`
	Waiting     []string    `json:"waiting"`
	Faults      []NodeFault `json:"faults,omitempty"`
}

type Propagator struct {
	graph   graph.Store
	records repos.NodeRecordRepo
	signals SignalPublisher
	log     *logger.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewPropagator wires the walk. records may be nil, in which case status
// history is not appended for nodes the walk starts.
func NewPropagator(store graph.Store, records repos.NodeRecordRepo, signals SignalPublisher, baseLog *logger.Logger) *Propagator {
	return &Propagator{
		graph:   store,
		records: records,
		signals: signals,
		log:     baseLog.With("service", "ReadinessPropagator"),
		tracer:  otel.Tracer("neurobridge-prereq/prereq"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type walk struct {
	*Propagator
	ownerID uuid.UUID
	visited map[string]bool
	report  *Report
}

// Propagate walks the owner's graph depth first from the root and starts
// every node whose prerequisites are all completed.
//
// Completed nodes are descended through. Graded nodes get a regeneration
// signal. Unstarted nodes move to firstgen with a generation signal once
// every incoming source is completed. Nodes in flight stop the walk. A node
// is evaluated at most once per call. A malformed status is recorded in the
// report and only ends its own branch; store and signal failures abort the
// walk and are returned.
func (p *Propagator) Propagate(ctx context.Context, ownerID uuid.UUID) (*Report, error) {
	ctx, span := p.tracer.Start(ctx, "prereq.Propagate")
	defer span.End()

	root, err := p.graph.GetVertex(ctx, ownerID, types.RootKey)
	if err != nil {
		return nil, p.fail(span, wrap(ErrStoreRead, "load root", err))
	}
	if root == nil {
		return nil, p.fail(span, ErrRootMissing)
	}
	if root.Status != types.StatusCompleted {
		p.log.Warn("Root status is not completed, walking as completed", "owner_id", ownerID, "status", root.Status)
	}

	w := &walk{Propagator: p, ownerID: ownerID, visited: map[string]bool{root.ID: true}, report: &Report{Visited: 1}}
	if err := w.descend(ctx, *root, 0); err != nil {
		p.log.Warn("Propagation aborted", "owner_id", ownerID, "visited", w.report.Visited, "error", err)
		return w.report, p.fail(span, err)
	}

	span.SetAttributes(
		attribute.Int("nodes.visited", w.report.Visited),
		attribute.Int("nodes.started", len(w.report.Started)),
		attribute.Int("nodes.regenerated", len(w.report.Regenerated)),
		attribute.Int("nodes.faulted", len(w.report.Faults)),
	)
	p.log.Info("Propagation done",
		"owner_id", ownerID,
		"visited", w.report.Visited,
		"started", len(w.report.Started),
		"regenerated", len(w.report.Regenerated),
		"faults", len(w.report.Faults),
	)
	return w.report, nil
}

func (p *Propagator) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (w *walk) descend(ctx context.Context, node types.TopicNode, depth int) error {
	children, err := w.graph.Children(ctx, w.ownerID, node.ID)
	if err != nil {
		return wrap(ErrStoreRead, "children of %q", err, node.ID)
	}
	for _, child := range children {
		if err := w.visit(ctx, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *walk) visit(ctx context.Context, node types.TopicNode, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.visited[node.ID] {
		return nil
	}
	w.visited[node.ID] = true
	w.report.Visited++

	status, ok := types.ParseNodeStatus(string(node.Status))
	if !ok {
		fault := &MalformedStatusError{NodeID: node.ID, Raw: string(node.Status)}
		w.report.Faults = append(w.report.Faults, NodeFault{NodeID: node.ID, Message: fault.Error(), err: fault})
		w.log.Warn("Skipping branch with malformed status", "depth", depth, "node_id", node.ID, "status", node.Status)
		return nil
	}
	w.log.Debug("Visiting node", "depth", depth, "node_id", node.ID, "status", status)

	switch {
	case status.InFlight():
		return nil
	case status == types.StatusCompleted:
		return w.descend(ctx, node, depth)
	case status == types.StatusGraded:
		if err := w.emit(ctx, types.SignalContentRegeneration, node.ID); err != nil {
			return err
		}
		w.report.Regenerated = append(w.report.Regenerated, node.ID)
		return nil
	case status == types.StatusUnstarted:
		return w.tryStart(ctx, node, depth)
	}
	return nil
}

func (w *walk) tryStart(ctx context.Context, node types.TopicNode, depth int) error {
	parents, err := w.graph.Parents(ctx, w.ownerID, node.ID)
	if err != nil {
		return wrap(ErrStoreRead, "parents of %q", err, node.ID)
	}
	for _, parent := range parents {
		if parent.IsRoot() {
			continue
		}
		if st, ok := types.ParseNodeStatus(string(parent.Status)); !ok || st != types.StatusCompleted {
			w.report.Waiting = append(w.report.Waiting, node.ID)
			w.log.Debug("Node still blocked", "depth", depth, "node_id", node.ID, "blocked_by", parent.ID)
			return nil
		}
	}

	// Signal first: a crash before the status write re-sends on the next
	// walk instead of leaving a firstgen node that nobody will build.
	if err := w.emit(ctx, types.SignalContentGeneration, node.ID); err != nil {
		return err
	}
	if err := w.graph.SetStatus(ctx, w.ownerID, node.ID, types.StatusFirstGen); err != nil {
		return wrap(ErrStoreWrite, "status of %q", err, node.ID)
	}
	if w.records != nil && node.RecordRef != uuid.Nil {
		_, err := w.records.AppendStatus(dbctx.New(ctx), node.RecordRef, types.StatusSnapshot{
			Status: types.StatusFirstGen,
			Reason: "prerequisites completed",
			At:     w.now(),
		})
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return wrap(ErrStoreWrite, "status history of %q", err, node.ID)
		}
	}
	w.report.Started = append(w.report.Started, node.ID)
	return nil
}

func (w *walk) emit(ctx context.Context, kind types.SignalKind, nodeID string) error {
	sig := types.Signal{Kind: kind, NodeID: nodeID, OwnerID: w.ownerID, EmittedAt: w.now()}
	if err := w.signals.Publish(ctx, sig); err != nil {
		return wrap(ErrSignalPublish, "%s for %q", err, kind, nodeID)
	}
	return nil
}
