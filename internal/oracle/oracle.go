package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	types "github.com/yungbote/neurobridge-prereq/internal/domain"
	"github.com/yungbote/neurobridge-prereq/internal/normalization"
	"github.com/yungbote/neurobridge-prereq/internal/platform/llm"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

const defaultMaxTokens = 1024

// LLMOracle answers decomposition, coverage and mastery questions with a
// structured-output LLM call each.
type LLMOracle struct {
	provider  llm.Provider
	log       *logger.Logger
	maxTokens int
}

func New(provider llm.Provider, baseLog *logger.Logger) *LLMOracle {
	return &LLMOracle{
		provider:  provider,
		log:       baseLog.With("service", "TopicOracle"),
		maxTokens: defaultMaxTokens,
	}
}

// Decompose returns the immediate prerequisites of topic in the order the
// model listed them. lineage is the chain of dependents being expanded,
// nearest first, and keeps the answer focused on why topic is needed.
// Blank entries, repeats and the topic itself are dropped.
func (o *LLMOracle) Decompose(ctx context.Context, topic string, lineage []string) ([]string, error) {
	user := topic
	if len(lineage) > 0 {
		user = fmt.Sprintf("%s, which unlocks %s", topic, strings.Join(lineage, ", "))
	}

	var out struct {
		Prerequisites []string `json:"prerequisites"`
	}
	if err := o.call(llm.WithPurpose(ctx, "decompose"), decomposeSystem, user, decomposeSchema, &out); err != nil {
		return nil, err
	}

	self := normalization.TopicKey(topic)
	seen := map[string]bool{self: true}
	prereqs := make([]string, 0, len(out.Prerequisites))
	for _, p := range out.Prerequisites {
		p = normalization.CleanText(p)
		key := normalization.TopicKey(p)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		prereqs = append(prereqs, p)
	}
	o.log.Debug("Decomposed topic", "topic", topic, "prerequisites", prereqs)
	return prereqs, nil
}

// FindCoverage asks which candidate implies topic. The answer is accepted
// only when it names one of the candidates, verbatim or by canonical key;
// anything else, including NONE, is reported as not covered.
func (o *LLMOracle) FindCoverage(ctx context.Context, topic string, candidates []string) (types.Coverage, error) {
	if len(candidates) == 0 {
		return types.NotCovered(), nil
	}

	var b strings.Builder
	b.WriteString("I currently understand these topics:\n")
	for _, c := range candidates {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	b.WriteString("Here is the topic I'm specifying: ")
	b.WriteString(topic)

	var out struct {
		Chosen string `json:"chosen"`
	}
	if err := o.call(llm.WithPurpose(ctx, "coverage"), coverageSystem, b.String(), coverageSchema, &out); err != nil {
		return types.Coverage{}, err
	}
	return matchCandidate(out.Chosen, candidates, o.log), nil
}

// Masteries lists the sub-topics of topic for a new node's checklist.
func (o *LLMOracle) Masteries(ctx context.Context, topic string) ([]string, error) {
	var out struct {
		Masteries []string `json:"masteries"`
	}
	user := "Here is the topic I want you to make sub-topics for: " + topic
	if err := o.call(llm.WithPurpose(ctx, "masteries"), masteriesSystem, user, masteriesSchema, &out); err != nil {
		return nil, err
	}
	res := make([]string, 0, len(out.Masteries))
	for _, m := range out.Masteries {
		if m = normalization.CleanText(m); m != "" {
			res = append(res, m)
		}
	}
	return res, nil
}

func (o *LLMOracle) call(ctx context.Context, system, user string, schema *llm.Schema, dst any) error {
	resp, err := o.provider.Generate(ctx, llm.UserPrompt(system, user, schema, o.maxTokens))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Content, dst); err != nil {
		return &llm.ErrInvalidResponse{Content: resp.Content, Err: err}
	}
	return nil
}

func matchCandidate(chosen string, candidates []string, log *logger.Logger) types.Coverage {
	chosen = strings.TrimSpace(chosen)
	if chosen == "" || strings.EqualFold(chosen, noneSentinel) {
		return types.NotCovered()
	}
	for _, c := range candidates {
		if c == chosen {
			return types.CoveredBy(c)
		}
	}
	for _, c := range candidates {
		if normalization.SameTopic(c, chosen) {
			return types.CoveredBy(c)
		}
	}
	log.Warn("Coverage answer outside candidate set, treating as not covered", "answer", chosen, "candidates", len(candidates))
	return types.NotCovered()
}
