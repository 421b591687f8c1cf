package seed

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed starting_knowledge.yaml
var startingKnowledgeYAML []byte

// BaseTopic is one subject base node seeded under a learner's root.
type BaseTopic struct {
	Subject string
	Topic   string
}

type startingKnowledge struct {
	Subjects []string                     `yaml:"subjects"`
	Grades   map[string]map[string]string `yaml:"grades"`
}

var (
	loadOnce sync.Once
	loaded   startingKnowledge
	loadErr  error
)

func load() (startingKnowledge, error) {
	loadOnce.Do(func() {
		loadErr = yaml.Unmarshal(startingKnowledgeYAML, &loaded)
		if loadErr == nil && len(loaded.Subjects) == 0 {
			loadErr = fmt.Errorf("starting knowledge: no subjects")
		}
	})
	return loaded, loadErr
}

// NormalizeGrade maps user input ("k", "kindergarten", "college", " 7 ") onto
// the keys used by the seed document.
func NormalizeGrade(raw string) string {
	g := strings.ToLower(strings.TrimSpace(raw))
	switch g {
	case "k", "kindergarten":
		return "K"
	case "college", "university":
		return "College"
	}
	return g
}

// GradeLevels lists every grade with seed data.
func GradeLevels() ([]string, error) {
	sk, err := load()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(sk.Grades))
	for _, g := range []string{"K", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12", "College"} {
		if _, ok := sk.Grades[g]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

// BaseTopics returns the subject base nodes for a grade level, in subject order.
func BaseTopics(grade string) ([]BaseTopic, error) {
	sk, err := load()
	if err != nil {
		return nil, err
	}
	byGrade, ok := sk.Grades[NormalizeGrade(grade)]
	if !ok {
		return nil, fmt.Errorf("unknown grade level %q", grade)
	}
	out := make([]BaseTopic, 0, len(sk.Subjects))
	for _, subject := range sk.Subjects {
		topic := strings.TrimSpace(byGrade[subject])
		if topic == "" {
			return nil, fmt.Errorf("grade %q missing subject %q", grade, subject)
		}
		out = append(out, BaseTopic{Subject: subject, Topic: topic})
	}
	return out, nil
}
