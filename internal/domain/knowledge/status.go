package knowledge

import "strings"

// NodeStatus is the learning state of a topic node.
type NodeStatus string

const (
	StatusUnstarted NodeStatus = "unstarted"
	StatusFirstGen  NodeStatus = "firstgen"
	StatusReady     NodeStatus = "ready"
	StatusScoring   NodeStatus = "scoring"
	StatusGraded    NodeStatus = "graded"
	StatusCompleted NodeStatus = "completed"
	StatusRegen     NodeStatus = "regen"
)

var allStatuses = []NodeStatus{
	StatusUnstarted,
	StatusFirstGen,
	StatusReady,
	StatusScoring,
	StatusGraded,
	StatusCompleted,
	StatusRegen,
}

func AllStatuses() []NodeStatus {
	out := make([]NodeStatus, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseNodeStatus accepts the stored representation of a status. Whitespace
// and case are tolerated; anything outside the enum is rejected.
func ParseNodeStatus(raw string) (NodeStatus, bool) {
	s := NodeStatus(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

func (s NodeStatus) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// InFlight reports statuses whose content or assessment is still being
// produced. Readiness of their dependents cannot change until they settle.
func (s NodeStatus) InFlight() bool {
	switch s {
	case StatusReady, StatusScoring, StatusRegen, StatusFirstGen:
		return true
	default:
		return false
	}
}

func (s NodeStatus) String() string { return string(s) }

// advance lists the transitions collaborators may request. unstarted ->
// firstgen is absent because only readiness propagation performs it.
var advance = map[NodeStatus][]NodeStatus{
	StatusFirstGen:  {StatusReady},
	StatusRegen:     {StatusReady},
	StatusReady:     {StatusScoring},
	StatusScoring:   {StatusGraded},
	StatusGraded:    {StatusFirstGen, StatusRegen, StatusCompleted},
	StatusCompleted: {StatusScoring},
}

// CanAdvance reports whether an external collaborator may move a node from
// one status to another.
func CanAdvance(from, to NodeStatus) bool {
	for _, next := range advance[from] {
		if next == to {
			return true
		}
	}
	return false
}
