package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AnthropicConfig defines configuration options for the Anthropic judge.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Logger    zerolog.Logger
}

// AnthropicJudge implements Judge against the Anthropic messages API.
type AnthropicJudge struct {
	client *anthropic.Client
	cfg    AnthropicConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewAnthropicJudge constructs a judge backed by the Anthropic SDK.
func NewAnthropicJudge(cfg AnthropicConfig) (*AnthropicJudge, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &AnthropicJudge{
		client: &client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-evaluator/pkg/ai/anthropic"),
		logger: logger.With().Str("component", "anthropic_judge").Logger(),
	}, nil
}

// Provider reports anthropic.
func (j *AnthropicJudge) Provider() string { return ProviderAnthropic }

// Model reports the configured model.
func (j *AnthropicJudge) Model() string { return j.cfg.Model }

// Judge sends the comparison to Anthropic and validates the returned verdict.
func (j *AnthropicJudge) Judge(parent context.Context, input JudgeInput) (JudgeOutput, error) {
	ctx, span := j.tracer.Start(parent, "anthropic.judge", trace.WithAttributes(
		attribute.String("model", j.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	msg, err := j.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(j.cfg.Model),
		MaxTokens:   int64(j.cfg.MaxTokens),
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: judgeSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildJudgePrompt(input))),
		},
	})
	observeDuration(ProviderAnthropic, start)
	if err != nil {
		recordFailure(ProviderAnthropic, span, err)
		return JudgeOutput{}, fmt.Errorf("anthropic judge: %w", err)
	}

	text := ""
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		recordFailure(ProviderAnthropic, span, ErrEmptyCompletion)
		return JudgeOutput{}, fmt.Errorf("anthropic judge: %w", ErrEmptyCompletion)
	}

	verdict, err := ValidateVerdict(text)
	if err != nil {
		recordFailure(ProviderAnthropic, span, err)
		j.logger.Warn().Err(err).Str("stop_reason", string(msg.StopReason)).Msg("anthropic returned an invalid verdict")
		return JudgeOutput{}, err
	}

	span.SetStatus(codes.Ok, "judged")
	return JudgeOutput{
		Verdict:  verdict,
		Provider: ProviderAnthropic,
		Model:    string(msg.Model),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}
