package prereq

import (
	"context"

	types "github.com/yungbote/neurobridge-prereq/internal/domain"
)

// TopicOracle answers the two judgments expansion needs.
type TopicOracle interface {
	// Decompose lists the immediate prerequisites of topic. lineage holds the
	// dependents currently being expanded, nearest first.
	Decompose(ctx context.Context, topic string, lineage []string) ([]string, error)
	// FindCoverage picks the candidate that implies topic, if any. The
	// result must name one of candidates or be not covered.
	FindCoverage(ctx context.Context, topic string, candidates []string) (types.Coverage, error)
}

// MasteryPlanner is optionally implemented by an oracle to seed the mastery
// checklist of new records.
type MasteryPlanner interface {
	Masteries(ctx context.Context, topic string) ([]string, error)
}

type SignalPublisher interface {
	Publish(ctx context.Context, sig types.Signal) error
}
