package knowledge

import (
	"github.com/google/uuid"
)

// RootKey is the vertex id of every learner's root node. Topic keys never
// start with an underscore, so it cannot collide with a canonical topic.
const RootKey = "__root__"

type NodeKind string

const (
	KindRoot  NodeKind = "root"
	KindBase  NodeKind = "base"
	KindTopic NodeKind = "topic"
)

type EdgeLabel string

const (
	EdgePrerequisite EdgeLabel = "prerequisite"
	EdgeBase         EdgeLabel = "base"
)

// TopicNode is a vertex of a learner's prerequisite graph. ID is the
// canonical topic key and is unique per owner.
type TopicNode struct {
	ID         string     `json:"id"`
	OwnerID    uuid.UUID  `json:"owner_id"`
	Kind       NodeKind   `json:"kind"`
	Topic      string     `json:"topic"`
	Status     NodeStatus `json:"status"`
	RecordRef  uuid.UUID  `json:"record_ref"`
	ContentRef *string    `json:"content_ref,omitempty"`
}

func (n TopicNode) IsRoot() bool { return n.Kind == KindRoot || n.ID == RootKey }

// Edge points from a prerequisite (or the root) to the node that depends on it.
type Edge struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	Label EdgeLabel `json:"label"`
}
