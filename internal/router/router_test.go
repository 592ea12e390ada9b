package router_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-evaluator/internal/config"
	"github.com/noah-isme/gema-evaluator/internal/handler"
	"github.com/noah-isme/gema-evaluator/internal/models"
	"github.com/noah-isme/gema-evaluator/internal/observability"
	"github.com/noah-isme/gema-evaluator/internal/router"
	"github.com/noah-isme/gema-evaluator/internal/service"
)

const secret = "router-secret"

type emptyEvaluationService struct{}

func (emptyEvaluationService) Evaluate(context.Context, service.EvaluationInput) (service.EvaluationOutcome, error) {
	return service.EvaluationOutcome{}, nil
}

func (emptyEvaluationService) Recent(context.Context, int) ([]models.EvaluationRecord, error) {
	return []models.EvaluationRecord{}, nil
}

func (emptyEvaluationService) Find(context.Context, string) (models.EvaluationRecord, error) {
	return models.EvaluationRecord{}, nil
}

func newApp(cfg config.Config) *fiber.App {
	observability.RegisterMetrics()

	app := fiber.New()
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler: handler.NewEvaluationHandler(emptyEvaluationService{}, zerolog.New(io.Discard)),
		EvaluateGuards:    router.EvaluateGuards(cfg, ""),
		HistoryGuards:     router.HistoryGuards(cfg),
	})
	return app
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "user-1",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestRegisterHealthAndMetrics(t *testing.T) {
	app := newApp(config.Config{AppName: "GEMA Evaluator"})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "GEMA Evaluator", resp.Header.Get("X-Application"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestEvaluateRequiresTokenWhenSecretConfigured(t *testing.T) {
	app := newApp(config.Config{JWTSecret: secret})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/evaluate-files", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "authorization header missing", payload["detail"])
}

func TestEvaluateRateLimited(t *testing.T) {
	app := newApp(config.Config{RateLimitMax: 1, RateLimitWindow: time.Minute})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/evaluate-files", nil), -1)
	require.NoError(t, err)
	require.NotEqual(t, fiber.StatusTooManyRequests, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/evaluate-files", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Contains(t, payload, "detail")
}

func TestHistoryRequiresAllowedRole(t *testing.T) {
	app := newApp(config.Config{JWTSecret: secret, JWTHistoryRoles: []string{"admin", "reviewer"}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/evaluations", nil)
	req.Header.Set("Authorization", bearer(t, "student"))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/evaluations", nil)
	req.Header.Set("Authorization", bearer(t, "Reviewer"))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestHistoryOpenWithoutSecret(t *testing.T) {
	app := newApp(config.Config{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/evaluations", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
