package normalization

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CleanText trims topic text and collapses internal whitespace, keeping case.
func CleanText(input string) string {
	return strings.Join(strings.Fields(input), " ")
}

// TopicKey canonicalizes topic text into the identifier used for graph
// vertices. Case is folded, every run of non letter/digit runes collapses to a
// single underscore, and leading/trailing separators are dropped, so
// "Long Division", "long-division" and " LONG   division! " share one key.
// Text with no letters or digits maps to "".
func TopicKey(topic string) string {
	folded := cases.Fold().String(topic)
	var b strings.Builder
	b.Grow(len(folded))
	pendingSep := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// SameTopic reports whether two phrasings canonicalize to the same key.
func SameTopic(a, b string) bool {
	ka := TopicKey(a)
	return ka != "" && ka == TopicKey(b)
}

// DisplayName renders topic text the way learners see it in the graph view.
func DisplayName(topic string) string {
	return cases.Title(language.English).String(strings.Join(strings.Fields(topic), " "))
}
