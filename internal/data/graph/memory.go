package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	types "github.com/yungbote/neurobridge-prereq/internal/domain"
)

type ownerGraph struct {
	order []string
	nodes map[string]*types.TopicNode
	out   map[string][]types.Edge
	in    map[string][]types.Edge
}

func newOwnerGraph() *ownerGraph {
	return &ownerGraph{
		nodes: map[string]*types.TopicNode{},
		out:   map[string][]types.Edge{},
		in:    map[string][]types.Edge{},
	}
}

// MemoryStore keeps graphs in process memory. It backs local development
// when NEO4J_URI is unset and serves as the store in engine tests.
type MemoryStore struct {
	mu     sync.RWMutex
	owners map[uuid.UUID]*ownerGraph
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{owners: map[uuid.UUID]*ownerGraph{}}
}

func (s *MemoryStore) graphFor(ownerID uuid.UUID, create bool) *ownerGraph {
	g := s.owners[ownerID]
	if g == nil && create {
		g = newOwnerGraph()
		s.owners[ownerID] = g
	}
	return g
}

func (s *MemoryStore) InsertVertex(ctx context.Context, node types.TopicNode) error {
	if node.ID == "" {
		return fmt.Errorf("graph: empty vertex id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.graphFor(node.OwnerID, true)
	if _, ok := g.nodes[node.ID]; ok {
		return ErrVertexExists
	}
	n := cloneNode(node)
	g.nodes[node.ID] = &n
	g.order = append(g.order, node.ID)
	return nil
}

func (s *MemoryStore) InsertEdge(ctx context.Context, ownerID uuid.UUID, edge types.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.graphFor(ownerID, false)
	if g == nil {
		return fmt.Errorf("%w: %s", ErrVertexNotFound, edge.From)
	}
	if _, ok := g.nodes[edge.From]; !ok {
		return fmt.Errorf("%w: %s", ErrVertexNotFound, edge.From)
	}
	if _, ok := g.nodes[edge.To]; !ok {
		return fmt.Errorf("%w: %s", ErrVertexNotFound, edge.To)
	}
	for _, e := range g.out[edge.From] {
		if e == edge {
			return nil
		}
	}
	g.out[edge.From] = append(g.out[edge.From], edge)
	g.in[edge.To] = append(g.in[edge.To], edge)
	return nil
}

func (s *MemoryStore) GetVertex(ctx context.Context, ownerID uuid.UUID, id string) (*types.TopicNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.graphFor(ownerID, false)
	if g == nil {
		return nil, nil
	}
	n, ok := g.nodes[id]
	if !ok {
		return nil, nil
	}
	out := cloneNode(*n)
	return &out, nil
}

func (s *MemoryStore) Frontier(ctx context.Context, ownerID uuid.UUID) ([]types.TopicNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.graphFor(ownerID, false)
	if g == nil {
		return nil, nil
	}
	var out []types.TopicNode
	for _, id := range g.order {
		n := g.nodes[id]
		if n.IsRoot() {
			continue
		}
		hasPrereqOut := false
		for _, e := range g.out[id] {
			if e.Label == types.EdgePrerequisite {
				hasPrereqOut = true
				break
			}
		}
		if !hasPrereqOut {
			out = append(out, cloneNode(*n))
		}
	}
	return out, nil
}

func (s *MemoryStore) Children(ctx context.Context, ownerID uuid.UUID, id string) ([]types.TopicNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.graphFor(ownerID, false)
	if g == nil {
		return nil, nil
	}
	out := make([]types.TopicNode, 0, len(g.out[id]))
	for _, e := range g.out[id] {
		out = append(out, cloneNode(*g.nodes[e.To]))
	}
	return out, nil
}

func (s *MemoryStore) Parents(ctx context.Context, ownerID uuid.UUID, id string) ([]types.TopicNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.graphFor(ownerID, false)
	if g == nil {
		return nil, nil
	}
	out := make([]types.TopicNode, 0, len(g.in[id]))
	for _, e := range g.in[id] {
		out = append(out, cloneNode(*g.nodes[e.From]))
	}
	return out, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, ownerID uuid.UUID, id string, status types.NodeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.graphFor(ownerID, false)
	if g == nil || g.nodes[id] == nil {
		return fmt.Errorf("%w: %s", ErrVertexNotFound, id)
	}
	g.nodes[id].Status = status
	return nil
}

func (s *MemoryStore) SetContentRef(ctx context.Context, ownerID uuid.UUID, id string, ref *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.graphFor(ownerID, false)
	if g == nil || g.nodes[id] == nil {
		return fmt.Errorf("%w: %s", ErrVertexNotFound, id)
	}
	g.nodes[id].ContentRef = cloneRef(ref)
	return nil
}

func (s *MemoryStore) Snapshot(ctx context.Context, ownerID uuid.UUID) ([]types.TopicNode, []types.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.graphFor(ownerID, false)
	if g == nil {
		return nil, nil, nil
	}
	nodes := make([]types.TopicNode, 0, len(g.order))
	var edges []types.Edge
	for _, id := range g.order {
		nodes = append(nodes, cloneNode(*g.nodes[id]))
		edges = append(edges, g.out[id]...)
	}
	return nodes, edges, nil
}

func cloneNode(n types.TopicNode) types.TopicNode {
	n.ContentRef = cloneRef(n.ContentRef)
	return n
}

func cloneRef(ref *string) *string {
	if ref == nil {
		return nil
	}
	v := *ref
	return &v
}
