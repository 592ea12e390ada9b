package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func chatCompletionBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
		"usage": map[string]int{"prompt_tokens": 120, "completion_tokens": 80, "total_tokens": 200},
	})
	require.NoError(t, err)
	return body
}

func TestOpenAIJudgeReturnsValidatedVerdict(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		payload, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(payload, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(chatCompletionBody(t, sampleVerdict))
	}))
	defer server.Close()

	judge, err := NewOpenAIJudge(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1", Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.Equal(t, ProviderOpenAI, judge.Provider())
	require.Equal(t, "gpt-4o-mini", judge.Model())

	output, err := judge.Judge(context.Background(), JudgeInput{CorrectPrompt: "p", SubmissionA: "a", SubmissionB: "b"})
	require.NoError(t, err)
	require.JSONEq(t, sampleVerdict, string(output.Verdict))
	require.Equal(t, 200, output.Usage.TotalTokens)

	format, ok := captured["response_format"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "json_object", format["type"])
}

func TestOpenAIJudgeRejectsInvalidVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(chatCompletionBody(t, `{"winner": "A"}`))
	}))
	defer server.Close()

	judge, err := NewOpenAIJudge(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	_, err = judge.Judge(context.Background(), JudgeInput{CorrectPrompt: "p", SubmissionA: "a", SubmissionB: "b"})
	require.ErrorIs(t, err, ErrInvalidVerdict)
}

func TestOpenAIJudgeSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	judge, err := NewOpenAIJudge(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	_, err = judge.Judge(context.Background(), JudgeInput{CorrectPrompt: "p", SubmissionA: "a", SubmissionB: "b"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidVerdict)
}

func TestNewJudgeSelectsProvider(t *testing.T) {
	ctx := context.Background()

	judge, err := NewJudge(ctx, ProviderConfig{Provider: "OpenAI", OpenAIAPIKey: "sk"})
	require.NoError(t, err)
	require.Equal(t, ProviderOpenAI, judge.Provider())

	judge, err = NewJudge(ctx, ProviderConfig{
		Provider:        ProviderAzure,
		AzureAPIKey:     "key",
		AzureEndpoint:   "https://example.openai.azure.com",
		AzureDeployment: "evaluator",
	})
	require.NoError(t, err)
	require.Equal(t, ProviderAzure, judge.Provider())
	require.Equal(t, "evaluator", judge.Model())

	judge, err = NewJudge(ctx, ProviderConfig{Provider: ProviderAnthropic, AnthropicAPIKey: "key"})
	require.NoError(t, err)
	require.Equal(t, ProviderAnthropic, judge.Provider())

	_, err = NewJudge(ctx, ProviderConfig{Provider: ProviderAzure, AzureAPIKey: "key", AzureDeployment: "x"})
	require.Error(t, err)

	_, err = NewJudge(ctx, ProviderConfig{Provider: ProviderAzure, AzureAPIKey: "key", AzureEndpoint: "https://example.openai.azure.com"})
	require.Error(t, err)

	_, err = NewJudge(ctx, ProviderConfig{Provider: "mystery"})
	require.Error(t, err)

	_, err = NewJudge(ctx, ProviderConfig{Provider: ProviderOpenAI})
	require.Error(t, err)
}
