package oracle

import "github.com/yungbote/neurobridge-prereq/internal/platform/llm"

const noneSentinel = "NONE"

const decomposeSystem = `You determine the immediate prerequisite knowledge of a topic.
List every topic a learner must already understand to learn the given topic, but only the ones IMMEDIATELY preceding it.
For "derivatives" include "limits" but not "multiplication", since multiplication is not a direct prerequisite of derivatives.
Keep each entry a short natural-language topic name.`

const coverageSystem = `You decide whether any of the topics a learner already understands implies understanding of another topic.
Answer with exactly one of the listed understood topics, copied verbatim, or with NONE.
If the new topic is "limits" and an understood topic is "derivatives", answer "derivatives", because understanding derivatives implies understanding limits.
If no listed topic implies the new one, answer NONE.`

const masteriesSystem = `You write lesson plans. Given a topic, list the sub-topics a learner has to master as part of learning it.
These are not prerequisites; they are the parts of the topic itself. For "limits": one-sided limits, two-sided limits, limits at infinity.`

var decomposeSchema = &llm.Schema{
	Name:        "topic-prerequisites",
	Description: "Immediate prerequisites of a topic",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prerequisites": map[string]any{
				"type":        "array",
				"description": "Topics immediately preceding the current topic",
				"items":       map[string]any{"type": "string"},
			},
		},
		"required":             []string{"prerequisites"},
		"additionalProperties": false,
	},
}

var coverageSchema = &llm.Schema{
	Name:        "topic-coverage",
	Description: "Which understood topic implies the given topic, or NONE",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"chosen": map[string]any{
				"type":        "string",
				"description": "One understood topic copied verbatim, or NONE",
			},
		},
		"required":             []string{"chosen"},
		"additionalProperties": false,
	},
}

var masteriesSchema = &llm.Schema{
	Name:        "topic-masteries",
	Description: "Sub-topics to master within a topic",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"masteries": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required":             []string{"masteries"},
		"additionalProperties": false,
	},
}
