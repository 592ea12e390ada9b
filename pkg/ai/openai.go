package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultAzureAPIVersion = "2024-02-01"

// OpenAIConfig defines configuration options for the OpenAI judge.
// Setting AzureEndpoint switches the client to Azure OpenAI, where Model is the deployment name.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	AzureEndpoint   string
	AzureAPIVersion string
	Model           string
	MaxTokens       int
	Temperature     float32
	Logger          zerolog.Logger
}

// OpenAIJudge implements Judge against the OpenAI chat completion API.
type OpenAIJudge struct {
	client   *openai.Client
	cfg      OpenAIConfig
	provider string
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// NewOpenAIJudge builds a new judge using the provided configuration.
func NewOpenAIJudge(cfg OpenAIConfig) (*OpenAIJudge, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}

	provider := ProviderOpenAI
	var config openai.ClientConfig
	if cfg.AzureEndpoint != "" {
		if cfg.Model == "" {
			return nil, fmt.Errorf("azure openai deployment name is required")
		}
		provider = ProviderAzure
		config = openai.DefaultAzureConfig(cfg.APIKey, cfg.AzureEndpoint)
		config.APIVersion = cfg.AzureAPIVersion
		if config.APIVersion == "" {
			config.APIVersion = defaultAzureAPIVersion
		}
		deployment := cfg.Model
		config.AzureModelMapperFunc = func(string) string { return deployment }
	} else {
		if cfg.Model == "" {
			cfg.Model = "gpt-4o-mini"
		}
		config = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			config.BaseURL = cfg.BaseURL
		}
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OpenAIJudge{
		client:   openai.NewClientWithConfig(config),
		cfg:      cfg,
		provider: provider,
		tracer:   otel.Tracer("github.com/noah-isme/gema-evaluator/pkg/ai/openai"),
		logger:   logger.With().Str("component", "openai_judge").Logger(),
	}, nil
}

// Provider reports openai or azure.
func (j *OpenAIJudge) Provider() string { return j.provider }

// Model reports the model or Azure deployment in use.
func (j *OpenAIJudge) Model() string { return j.cfg.Model }

// Judge sends the comparison to OpenAI and validates the returned verdict.
func (j *OpenAIJudge) Judge(parent context.Context, input JudgeInput) (JudgeOutput, error) {
	ctx, span := j.tracer.Start(parent, "openai.judge", trace.WithAttributes(
		attribute.String("provider", j.provider),
		attribute.String("model", j.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       j.cfg.Model,
		MaxTokens:   j.cfg.MaxTokens,
		Temperature: j.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: judgeSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildJudgePrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := j.client.CreateChatCompletion(ctx, request)
	observeDuration(j.provider, start)
	if err != nil {
		recordFailure(j.provider, span, err)
		return JudgeOutput{}, fmt.Errorf("openai judge: %w", err)
	}

	if len(resp.Choices) == 0 {
		recordFailure(j.provider, span, ErrEmptyCompletion)
		return JudgeOutput{}, fmt.Errorf("openai judge: %w", ErrEmptyCompletion)
	}

	verdict, err := ValidateVerdict(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		recordFailure(j.provider, span, err)
		j.logger.Warn().Err(err).Str("finish_reason", string(resp.Choices[0].FinishReason)).Msg("openai returned an invalid verdict")
		return JudgeOutput{}, err
	}

	span.SetStatus(codes.Ok, "judged")
	return JudgeOutput{
		Verdict:  verdict,
		Provider: j.provider,
		Model:    j.cfg.Model,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}
