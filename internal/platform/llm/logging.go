package llm

import (
	"context"
	"time"

	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

type loggingProvider struct {
	inner Provider
	log   *logger.Logger
}

// WithLogging records latency, token usage and failures of every call.
func WithLogging(p Provider, log *logger.Logger) Provider {
	return &loggingProvider{inner: p, log: log.With("component", "LLM", "model", p.ModelID())}
}

func (l *loggingProvider) ModelID() string { return l.inner.ModelID() }

func (l *loggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	kv := []interface{}{
		"purpose", PurposeFrom(ctx),
		"latency_ms", time.Since(start).Milliseconds(),
	}
	if req.Schema != nil {
		kv = append(kv, "schema", req.Schema.Name)
	}
	if err != nil {
		l.log.Warn("LLM call failed", append(kv, "error", err)...)
		return nil, err
	}
	l.log.Debug("LLM call done", append(kv,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)...)
	return resp, nil
}
