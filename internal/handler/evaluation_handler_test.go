package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-evaluator/internal/evaluation"
	"github.com/noah-isme/gema-evaluator/internal/handler"
	"github.com/noah-isme/gema-evaluator/internal/models"
	"github.com/noah-isme/gema-evaluator/internal/service"
	"github.com/noah-isme/gema-evaluator/pkg/ai"
)

type mockEvaluationService struct {
	outcome    service.EvaluationOutcome
	err        error
	lastInput  service.EvaluationInput
	records    []models.EvaluationRecord
	record     models.EvaluationRecord
	historyErr error
}

func (m *mockEvaluationService) Evaluate(_ context.Context, input service.EvaluationInput) (service.EvaluationOutcome, error) {
	m.lastInput = input
	if m.err != nil {
		return service.EvaluationOutcome{}, m.err
	}
	return m.outcome, nil
}

func (m *mockEvaluationService) Recent(_ context.Context, _ int) ([]models.EvaluationRecord, error) {
	return m.records, m.historyErr
}

func (m *mockEvaluationService) Find(_ context.Context, _ string) (models.EvaluationRecord, error) {
	return m.record, m.historyErr
}

func sampleOutcome() service.EvaluationOutcome {
	result := evaluation.Result{
		DecisionType:  evaluation.DecisionNormal,
		FinalDecision: "Submission A wins",
		Scores:        &evaluation.Scores{SubmissionATotal: 12, SubmissionBTotal: 8},
		Analysis: evaluation.Analysis{
			SubmissionA: []evaluation.FeatureAssessment{{Feature: "Add items", Score: 5, Reason: "complete"}},
			SubmissionB: []evaluation.FeatureAssessment{{Feature: "Add items", Score: 3, Reason: "partial"}},
		},
	}
	return service.EvaluationOutcome{
		ReferenceID: "ref-123",
		Result:      result,
		Verdict:     evaluation.Interpret(result),
	}
}

func newEvaluationApp(svc service.EvaluationService) *fiber.App {
	app := fiber.New()
	h := handler.NewEvaluationHandler(svc, zerolog.New(io.Discard))
	h.Register(app.Group("/evaluate-files"))
	h.RegisterHistory(app.Group("/api/v1/evaluations"))
	return app
}

func multipartRequest(t *testing.T, target string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for field, content := range files {
		part, err := writer.CreateFormFile(field, field+".html")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func validEvaluationRequest(t *testing.T) *http.Request {
	return multipartRequest(t, "/evaluate-files/",
		map[string]string{evaluation.FieldCorrectPrompt: "Build a todo list"},
		map[string]string{
			evaluation.FieldSubmissionA: "<p>a</p>",
			evaluation.FieldSubmissionB: "<p>b</p>",
		},
	)
}

func TestEvaluateReturnsBareResult(t *testing.T) {
	svc := &mockEvaluationService{outcome: sampleOutcome()}
	app := newEvaluationApp(svc)

	resp, err := app.Test(validEvaluationRequest(t), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "ref-123", resp.Header.Get("X-Evaluation-Reference"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	_, err = ai.ValidateVerdict(string(body))
	require.NoError(t, err, "response must satisfy the verdict schema")

	var result evaluation.Result
	require.NoError(t, json.Unmarshal(body, &result))
	require.Equal(t, "Submission A wins", result.FinalDecision)
	require.Equal(t, evaluation.SideA, evaluation.Interpret(result).Winner)

	require.Equal(t, "Build a todo list", svc.lastInput.CorrectPrompt)
	require.NotNil(t, svc.lastInput.SubmissionA)
	require.Equal(t, "submission_b_file.html", svc.lastInput.SubmissionB.Filename)
}

func TestEvaluateMapsErrorsToDetail(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"missing field", &service.FieldError{Field: evaluation.FieldSubmissionA, Err: service.ErrMissingField}, fiber.StatusUnprocessableEntity, "submission_a_file is required"},
		{"too large", &service.FieldError{Field: evaluation.FieldSubmissionB, Err: service.ErrFileTooLarge}, fiber.StatusRequestEntityTooLarge, "submission_b_file exceeds maximum allowed size"},
		{"binary", &service.FieldError{Field: evaluation.FieldSubmissionA, Err: service.ErrNotTextFile}, fiber.StatusBadRequest, "submission_a_file must be a UTF-8 text file"},
		{"judge failed", fmt.Errorf("%w: %v", service.ErrJudgeFailed, "rate limited"), fiber.StatusBadGateway, "An error occurred with the AI provider: rate limited"},
		{"invalid verdict", fmt.Errorf("%w: bad json", service.ErrInvalidVerdict), fiber.StatusBadGateway, "The AI provider returned an invalid verdict."},
		{"unexpected", errors.New("disk full"), fiber.StatusInternalServerError, "An unexpected error occurred."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newEvaluationApp(&mockEvaluationService{err: tc.err})

			resp, err := app.Test(validEvaluationRequest(t), -1)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			var payload map[string]interface{}
			decodeResponse(t, resp, &payload)
			require.Equal(t, map[string]interface{}{"detail": tc.detail}, payload)
		})
	}
}

func TestEvaluateWithoutMultipartPassesEmptyInput(t *testing.T) {
	svc := &mockEvaluationService{err: &service.FieldError{Field: evaluation.FieldCorrectPrompt, Err: service.ErrMissingField}}
	app := newEvaluationApp(svc)

	req := httptest.NewRequest(http.MethodPost, "/evaluate-files", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	require.Nil(t, svc.lastInput.SubmissionA)
	require.Nil(t, svc.lastInput.SubmissionB)
}

func TestEvaluationHistoryRoutes(t *testing.T) {
	svc := &mockEvaluationService{
		records: []models.EvaluationRecord{{ReferenceID: "ref-1", Outcome: models.EvaluationOutcomeTie}},
		record:  models.EvaluationRecord{ReferenceID: "ref-1", Outcome: models.EvaluationOutcomeTie},
	}
	app := newEvaluationApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/evaluations?limit=5", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var list struct {
		Success bool                      `json:"success"`
		Data    []models.EvaluationRecord `json:"data"`
	}
	decodeResponse(t, resp, &list)
	require.True(t, list.Success)
	require.Len(t, list.Data, 1)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/evaluations/ref-1", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/evaluations?limit=abc", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEvaluationHistoryErrors(t *testing.T) {
	app := newEvaluationApp(&mockEvaluationService{historyErr: service.ErrHistoryUnavailable})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/evaluations", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	app = newEvaluationApp(&mockEvaluationService{historyErr: service.ErrEvaluationNotFound})
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/evaluations/nope", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var payload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	decodeResponse(t, resp, &payload)
	require.False(t, payload.Success)
	require.Equal(t, service.ErrEvaluationNotFound.Error(), payload.Message)
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}
