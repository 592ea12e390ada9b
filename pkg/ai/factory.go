package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ProviderConfig selects and configures a judge.
type ProviderConfig struct {
	Provider        string
	Model           string
	MaxTokens       int
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AzureEndpoint   string
	AzureAPIKey     string
	AzureDeployment string
	AzureAPIVersion string
	AnthropicAPIKey string
	GeminiAPIKey    string
	Logger          zerolog.Logger
}

// NewJudge constructs the judge named by cfg.Provider.
func NewJudge(ctx context.Context, cfg ProviderConfig) (Judge, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		return NewOpenAIJudge(OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Logger:    cfg.Logger,
		})
	case ProviderAzure:
		if strings.TrimSpace(cfg.AzureEndpoint) == "" {
			return nil, fmt.Errorf("azure openai endpoint is required")
		}
		return NewOpenAIJudge(OpenAIConfig{
			APIKey:          cfg.AzureAPIKey,
			AzureEndpoint:   cfg.AzureEndpoint,
			AzureAPIVersion: cfg.AzureAPIVersion,
			Model:           cfg.AzureDeployment,
			MaxTokens:       cfg.MaxTokens,
			Logger:          cfg.Logger,
		})
	case ProviderAnthropic:
		return NewAnthropicJudge(AnthropicConfig{
			APIKey:    cfg.AnthropicAPIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Logger:    cfg.Logger,
		})
	case ProviderGemini:
		return NewGeminiJudge(ctx, GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Logger:    cfg.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}
