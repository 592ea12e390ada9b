package ai

import (
	"context"
	"encoding/json"
	"errors"
)

// Provider names accepted by NewJudge.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

var (
	// ErrInvalidVerdict indicates the model answered with JSON that does not match the verdict schema.
	ErrInvalidVerdict = errors.New("invalid verdict")
	// ErrEmptyCompletion indicates the provider returned no usable content.
	ErrEmptyCompletion = errors.New("empty completion")
)

// JudgeInput contains the material the model compares.
type JudgeInput struct {
	CorrectPrompt   string
	SubmissionA     string
	SubmissionAName string
	SubmissionB     string
	SubmissionBName string
}

// Usage reports token consumption for a single judgement.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// JudgeOutput carries the schema-checked verdict JSON.
type JudgeOutput struct {
	Verdict  json.RawMessage
	Provider string
	Model    string
	Usage    Usage
}

// Judge describes an AI model capable of comparing two submissions against a prompt.
type Judge interface {
	Judge(ctx context.Context, input JudgeInput) (JudgeOutput, error)
	Provider() string
	Model() string
}
