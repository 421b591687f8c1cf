package graph

import (
	"context"
	"errors"

	"github.com/google/uuid"

	types "github.com/yungbote/neurobridge-prereq/internal/domain"
)

var (
	ErrVertexExists   = errors.New("graph: vertex already exists")
	ErrVertexNotFound = errors.New("graph: vertex not found")
)

// Store is the traversal surface the engines need from a learner's graph.
// Every call is scoped to one owner; vertex ids are only unique per owner.
// Status values are returned exactly as stored so callers can detect
// malformed entries.
type Store interface {
	// InsertVertex creates the vertex, or fails with ErrVertexExists.
	InsertVertex(ctx context.Context, node types.TopicNode) error
	// InsertEdge links two existing vertices. Inserting the same edge twice
	// is a no-op.
	InsertEdge(ctx context.Context, ownerID uuid.UUID, edge types.Edge) error

	// GetVertex returns nil, nil when the vertex does not exist.
	GetVertex(ctx context.Context, ownerID uuid.UUID, id string) (*types.TopicNode, error)
	// Frontier lists the non-root vertices with no outgoing prerequisite edge.
	Frontier(ctx context.Context, ownerID uuid.UUID) ([]types.TopicNode, error)
	// Children follows every outgoing edge of id.
	Children(ctx context.Context, ownerID uuid.UUID, id string) ([]types.TopicNode, error)
	// Parents follows every incoming edge of id back to its source.
	Parents(ctx context.Context, ownerID uuid.UUID, id string) ([]types.TopicNode, error)

	SetStatus(ctx context.Context, ownerID uuid.UUID, id string, status types.NodeStatus) error
	SetContentRef(ctx context.Context, ownerID uuid.UUID, id string, ref *string) error

	// Snapshot returns the owner's whole graph.
	Snapshot(ctx context.Context, ownerID uuid.UUID) ([]types.TopicNode, []types.Edge, error)
}
