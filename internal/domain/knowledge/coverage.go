package knowledge

// Coverage is the validated answer to "does an already understood topic
// imply this one". Topic is only meaningful when Covered is true and is
// always one of the candidates that were offered.
type Coverage struct {
	Covered bool   `json:"covered"`
	Topic   string `json:"topic,omitempty"`
}

func NotCovered() Coverage { return Coverage{} }

func CoveredBy(topic string) Coverage { return Coverage{Covered: true, Topic: topic} }
