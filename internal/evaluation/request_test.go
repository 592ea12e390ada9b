package evaluation_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-evaluator/internal/evaluation"
)

func TestNewRequestValid(t *testing.T) {
	a := evaluation.File{Name: "a.html", Content: []byte("<h1>A</h1>")}
	b := evaluation.File{Name: "b.html", Content: []byte("<h1>B</h1>")}

	req, err := evaluation.NewRequest("Build a landing page", a, b)
	require.NoError(t, err)
	require.Equal(t, "Build a landing page", req.CorrectPrompt)
	require.Equal(t, "a.html", req.SubmissionA.Name)
	require.Equal(t, "b.html", req.SubmissionB.Name)
}

func TestNewRequestMissingFields(t *testing.T) {
	file := evaluation.File{Name: "x.py", Content: []byte("print(1)")}

	cases := []struct {
		name    string
		prompt  string
		a, b    evaluation.File
		missing []string
	}{
		{name: "prompt", prompt: "", a: file, b: file, missing: []string{evaluation.FieldCorrectPrompt}},
		{name: "blank_prompt", prompt: "   \n", a: file, b: file, missing: []string{evaluation.FieldCorrectPrompt}},
		{name: "submission_a", prompt: "p", b: file, missing: []string{evaluation.FieldSubmissionA}},
		{name: "empty_submission_b", prompt: "p", a: file, b: evaluation.File{Name: "empty.py", Content: []byte{}}, missing: []string{evaluation.FieldSubmissionB}},
		{name: "everything", missing: []string{evaluation.FieldCorrectPrompt, evaluation.FieldSubmissionA, evaluation.FieldSubmissionB}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := evaluation.NewRequest(tc.prompt, tc.a, tc.b)
			require.Error(t, err)

			var validationErr *evaluation.ValidationError
			require.True(t, errors.As(err, &validationErr))
			require.Equal(t, tc.missing, validationErr.Fields)
		})
	}
}

func TestServiceErrorMessage(t *testing.T) {
	require.Equal(t, "file too large", evaluation.NewServiceError(413, "file too large").Error())

	fallback := evaluation.NewServiceError(500, "  ")
	require.Equal(t, evaluation.DefaultServiceMessage, fallback.Error())
	require.NotEmpty(t, fallback.Error())
}

func TestTransportErrorUnwraps(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := fmt.Errorf("evaluate: %w", evaluation.NewUnreachableError(inner))

	var transportErr *evaluation.TransportError
	require.True(t, errors.As(err, &transportErr))
	require.Equal(t, "unable to reach the evaluation service", transportErr.Error())
	require.ErrorIs(t, err, inner)
}
