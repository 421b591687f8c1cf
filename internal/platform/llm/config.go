package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-prereq/internal/platform/envutil"
	"github.com/yungbote/neurobridge-prereq/internal/platform/logger"
)

type Config struct {
	Provider  string
	Anthropic AnthropicConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Retry     RetryConfig
	Timeout   time.Duration
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

func ConfigFromEnv() Config {
	return Config{
		Provider: strings.ToLower(envutil.String("LLM_PROVIDER", "openai")),
		Anthropic: AnthropicConfig{
			APIKey: envutil.String("ANTHROPIC_API_KEY", ""),
			Model:  envutil.String("ANTHROPIC_MODEL", "claude-haiku"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  envutil.String("OPENAI_API_KEY", ""),
			Model:   envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: envutil.String("OPENAI_BASE_URL", ""),
		},
		Gemini: GeminiConfig{
			APIKey: envutil.String("GEMINI_API_KEY", ""),
			Model:  envutil.String("GEMINI_MODEL", "gemini-flash"),
		},
		Retry: RetryConfig{
			MaxAttempts: envutil.Int("LLM_MAX_ATTEMPTS", 3),
			InitialWait: time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2,
		},
		Timeout: envutil.Seconds("LLM_TIMEOUT_SECONDS", 60*time.Second),
	}
}

// NewProvider builds the configured provider wrapped as
// caller -> timeout -> retry -> logging -> provider.
func NewProvider(ctx context.Context, cfg Config, log *logger.Logger) (Provider, error) {
	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(WithRetry(WithLogging(base, log), cfg.Retry), cfg.Timeout), nil
}
