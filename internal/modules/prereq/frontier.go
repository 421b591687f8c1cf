package prereq

import (
	"context"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-prereq/internal/data/graph"
	types "github.com/yungbote/neurobridge-prereq/internal/domain"
	"github.com/yungbote/neurobridge-prereq/internal/normalization"
)

type FrontierEntry struct {
	NodeID string
	Topic  string
}

// Frontier maps a canonical topic key to a node that currently has no
// prerequisite pointing out of it. It is a value: With returns a new map and
// the receiver is never modified.
type Frontier map[string]FrontierEntry

// LoadFrontier reads the owner's frontier once. Expansion extends the
// returned value in memory instead of re-reading the store.
func LoadFrontier(ctx context.Context, store graph.Store, ownerID uuid.UUID) (Frontier, error) {
	nodes, err := store.Frontier(ctx, ownerID)
	if err != nil {
		return nil, wrap(ErrStoreRead, "load frontier", err)
	}
	f := make(Frontier, len(nodes))
	for _, n := range nodes {
		key := normalization.TopicKey(n.Topic)
		if key == "" {
			key = n.ID
		}
		f[key] = FrontierEntry{NodeID: n.ID, Topic: n.Topic}
	}
	return f, nil
}

func (f Frontier) With(key string, node types.TopicNode) Frontier {
	next := maps.Clone(f)
	if next == nil {
		next = Frontier{}
	}
	next[key] = FrontierEntry{NodeID: node.ID, Topic: node.Topic}
	return next
}

// Candidates lists frontier topic texts in key order so prompts are stable.
func (f Frontier) Candidates() []string {
	keys := slices.Sorted(maps.Keys(f))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, f[k].Topic)
	}
	return out
}

// Lookup resolves a topic text, usually a coverage answer, to its entry.
func (f Frontier) Lookup(topic string) (FrontierEntry, bool) {
	e, ok := f[normalization.TopicKey(topic)]
	return e, ok
}
