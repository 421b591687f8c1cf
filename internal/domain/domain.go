package domain

import (
	"github.com/yungbote/neurobridge-prereq/internal/domain/knowledge"
)

const (
	RootKey = knowledge.RootKey

	KindRoot  = knowledge.KindRoot
	KindBase  = knowledge.KindBase
	KindTopic = knowledge.KindTopic

	EdgePrerequisite = knowledge.EdgePrerequisite
	EdgeBase         = knowledge.EdgeBase

	StatusUnstarted = knowledge.StatusUnstarted
	StatusFirstGen  = knowledge.StatusFirstGen
	StatusReady     = knowledge.StatusReady
	StatusScoring   = knowledge.StatusScoring
	StatusGraded    = knowledge.StatusGraded
	StatusCompleted = knowledge.StatusCompleted
	StatusRegen     = knowledge.StatusRegen

	SignalContentGeneration   = knowledge.SignalContentGeneration
	SignalContentRegeneration = knowledge.SignalContentRegeneration

	DefaultBlurb = knowledge.DefaultBlurb
)

type (
	NodeStatus     = knowledge.NodeStatus
	NodeKind       = knowledge.NodeKind
	EdgeLabel      = knowledge.EdgeLabel
	TopicNode      = knowledge.TopicNode
	Edge           = knowledge.Edge
	NodeRecord     = knowledge.NodeRecord
	StatusSnapshot = knowledge.StatusSnapshot
	SignalKind     = knowledge.SignalKind
	Signal         = knowledge.Signal
	Coverage       = knowledge.Coverage
)

var (
	ParseNodeStatus     = knowledge.ParseNodeStatus
	AllStatuses         = knowledge.AllStatuses
	CanAdvance          = knowledge.CanAdvance
	NewMasteryChecklist = knowledge.NewMasteryChecklist
	NotCovered          = knowledge.NotCovered
	CoveredBy           = knowledge.CoveredBy
)
