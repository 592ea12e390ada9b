package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

// GeminiConfig defines configuration options for the Gemini judge.
type GeminiConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Logger    zerolog.Logger
}

// GeminiJudge implements Judge against the Gemini API.
type GeminiJudge struct {
	client *genai.Client
	cfg    GeminiConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewGeminiJudge constructs a judge backed by the Google GenAI SDK.
func NewGeminiJudge(ctx context.Context, cfg GeminiConfig) (*GeminiJudge, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &GeminiJudge{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-evaluator/pkg/ai/gemini"),
		logger: logger.With().Str("component", "gemini_judge").Logger(),
	}, nil
}

// Provider reports gemini.
func (j *GeminiJudge) Provider() string { return ProviderGemini }

// Model reports the configured model.
func (j *GeminiJudge) Model() string { return j.cfg.Model }

// Judge sends the comparison to Gemini and validates the returned verdict.
func (j *GeminiJudge) Judge(parent context.Context, input JudgeInput) (JudgeOutput, error) {
	ctx, span := j.tracer.Start(parent, "gemini.judge", trace.WithAttributes(
		attribute.String("model", j.cfg.Model),
	))
	defer span.End()

	temperature := float32(0)
	config := &genai.GenerateContentConfig{
		MaxOutputTokens:  int32(j.cfg.MaxTokens),
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   geminiVerdictSchema(),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: judgeSystemPrompt}},
		},
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: buildJudgePrompt(input)}},
	}}

	start := time.Now()
	result, err := j.client.Models.GenerateContent(ctx, j.cfg.Model, contents, config)
	observeDuration(ProviderGemini, start)
	if err != nil {
		recordFailure(ProviderGemini, span, err)
		return JudgeOutput{}, fmt.Errorf("gemini judge: %w", err)
	}

	verdict, err := ValidateVerdict(result.Text())
	if err != nil {
		recordFailure(ProviderGemini, span, err)
		j.logger.Warn().Err(err).Msg("gemini returned an invalid verdict")
		return JudgeOutput{}, err
	}

	output := JudgeOutput{
		Verdict:  verdict,
		Provider: ProviderGemini,
		Model:    j.cfg.Model,
	}
	if result.UsageMetadata != nil {
		output.Usage = Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(result.UsageMetadata.TotalTokenCount),
		}
	}

	span.SetStatus(codes.Ok, "judged")
	return output, nil
}

func geminiVerdictSchema() *genai.Schema {
	assessments := &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type:     genai.TypeObject,
			Required: []string{"feature", "score", "reason"},
			Properties: map[string]*genai.Schema{
				"feature": {Type: genai.TypeString},
				"score":   {Type: genai.TypeInteger},
				"reason":  {Type: genai.TypeString},
			},
		},
	}

	return &genai.Schema{
		Type:     genai.TypeObject,
		Required: []string{"decision_type", "final_decision", "analysis"},
		Properties: map[string]*genai.Schema{
			"decision_type":  {Type: genai.TypeString, Enum: []string{"Normal", "Trap Detected"}},
			"final_decision": {Type: genai.TypeString},
			"scores": {
				Type:     genai.TypeObject,
				Required: []string{"submission_a_total", "submission_b_total"},
				Properties: map[string]*genai.Schema{
					"submission_a_total": {Type: genai.TypeNumber},
					"submission_b_total": {Type: genai.TypeNumber},
				},
			},
			"analysis": {
				Type:     genai.TypeObject,
				Required: []string{"submission_a", "submission_b"},
				Properties: map[string]*genai.Schema{
					"submission_a": assessments,
					"submission_b": assessments,
				},
			},
		},
	}
}
