package ai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleVerdict = `{
  "decision_type": "Trap Detected",
  "final_decision": "Submission B altered the subject.",
  "analysis": {
    "submission_a": [{"feature": "Synaptic Filter Array", "score": 4, "reason": "implemented"}],
    "submission_b": [{"feature": "Synaptic Filter Array", "score": 0, "reason": "replaced by a Bio-Scan Array"}]
  }
}`

func TestValidateVerdictAcceptsWellFormedAnswer(t *testing.T) {
	raw, err := ValidateVerdict(sampleVerdict)
	require.NoError(t, err)
	require.JSONEq(t, sampleVerdict, string(raw))
}

func TestValidateVerdictStripsCodeFence(t *testing.T) {
	raw, err := ValidateVerdict("```json\n" + sampleVerdict + "\n```")
	require.NoError(t, err)
	require.JSONEq(t, sampleVerdict, string(raw))
}

func TestValidateVerdictRejectsInvalidAnswers(t *testing.T) {
	cases := map[string]string{
		"not_json":       "the winner is A",
		"missing_fields": `{"decision_type": "Normal"}`,
		"unknown_type":   `{"decision_type": "Maybe", "final_decision": "", "analysis": {"submission_a": [], "submission_b": []}}`,
		"score_range":    `{"decision_type": "Normal", "final_decision": "", "analysis": {"submission_a": [{"feature": "x", "score": 9, "reason": ""}], "submission_b": []}}`,
		"score_type":     `{"decision_type": "Normal", "final_decision": "", "analysis": {"submission_a": [{"feature": "x", "score": "high", "reason": ""}], "submission_b": []}}`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateVerdict(content)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidVerdict))
		})
	}
}

func TestValidateVerdictRejectsEmptyContent(t *testing.T) {
	_, err := ValidateVerdict("   ")
	require.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestBuildJudgePromptIncludesInputs(t *testing.T) {
	prompt := buildJudgePrompt(JudgeInput{
		CorrectPrompt:   "Build a relevance threshold slider",
		SubmissionA:     "<input type=range>",
		SubmissionAName: "a.html",
		SubmissionB:     "<input type=number>",
	})

	require.Contains(t, prompt, "[CORRECT_PROMPT]\nBuild a relevance threshold slider\n[/CORRECT_PROMPT]")
	require.Contains(t, prompt, "[SUBMISSION_A_CODE file=a.html]\n<input type=range>")
	require.Contains(t, prompt, "[SUBMISSION_B_CODE]\n<input type=number>")
	require.Contains(t, prompt, "Trap Detected")
}
