package knowledge

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const DefaultBlurb = "You haven't started this node yet!"

// StatusSnapshot is one entry of a node record's append-only status history.
type StatusSnapshot struct {
	Status NodeStatus `json:"status"`
	Reason string     `json:"reason,omitempty"`
	At     time.Time  `json:"at"`
}

// NodeRecord holds the relational metadata of a topic node.
type NodeRecord struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID uuid.UUID `gorm:"type:uuid;column:owner_id;not null;uniqueIndex:idx_node_record_owner_key,priority:1" json:"owner_id"`

	TopicKey   string `gorm:"column:topic_key;not null;uniqueIndex:idx_node_record_owner_key,priority:2" json:"topic_key"`
	Topic      string `gorm:"column:topic;type:text;not null" json:"topic"`
	PublicName string `gorm:"column:public_name;not null" json:"public_name"`
	Blurb      string `gorm:"column:blurb;type:text" json:"blurb"`

	Masteries      datatypes.JSONType[map[string]bool]  `gorm:"column:masteries" json:"masteries"`
	LearningStatus datatypes.JSONType[[]StatusSnapshot] `gorm:"column:learning_status" json:"learning_status"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (NodeRecord) TableName() string { return "node_record" }

// LatestStatus returns the most recent snapshot, if any.
func (r *NodeRecord) LatestStatus() *StatusSnapshot {
	if r == nil {
		return nil
	}
	hist := r.LearningStatus.Data()
	if len(hist) == 0 {
		return nil
	}
	last := hist[len(hist)-1]
	return &last
}

// NewMasteryChecklist marks every subtopic as not yet mastered.
func NewMasteryChecklist(subtopics []string) map[string]bool {
	out := make(map[string]bool, len(subtopics))
	for _, s := range subtopics {
		if s == "" {
			continue
		}
		out[s] = false
	}
	return out
}
