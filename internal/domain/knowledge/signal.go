package knowledge

import (
	"time"

	"github.com/google/uuid"
)

type SignalKind string

const (
	SignalContentGeneration   SignalKind = "content-generation-requested"
	SignalContentRegeneration SignalKind = "content-regeneration-requested"
)

// Signal asks the content pipeline to (re)build lesson content for a node.
type Signal struct {
	Kind      SignalKind `json:"kind"`
	NodeID    string     `json:"node_id"`
	OwnerID   uuid.UUID  `json:"owner_id"`
	EmittedAt time.Time  `json:"emitted_at"`
}
