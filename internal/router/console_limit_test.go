package router_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-evaluator/internal/config"
	"github.com/noah-isme/gema-evaluator/internal/evalclient"
	"github.com/noah-isme/gema-evaluator/internal/evaluation"
	"github.com/noah-isme/gema-evaluator/internal/handler"
	"github.com/noah-isme/gema-evaluator/internal/models"
	"github.com/noah-isme/gema-evaluator/internal/observability"
	"github.com/noah-isme/gema-evaluator/internal/router"
	"github.com/noah-isme/gema-evaluator/internal/service"
	"github.com/noah-isme/gema-evaluator/internal/web"
)

type decidedEvaluationService struct{}

func (decidedEvaluationService) Evaluate(context.Context, service.EvaluationInput) (service.EvaluationOutcome, error) {
	return service.EvaluationOutcome{
		ReferenceID: uuid.NewString(),
		Result: evaluation.Result{
			DecisionType:  evaluation.DecisionNormal,
			FinalDecision: "Submission A covers more of the prompt.",
			Scores:        &evaluation.Scores{SubmissionATotal: 12, SubmissionBTotal: 8},
			Analysis: evaluation.Analysis{
				SubmissionA: []evaluation.FeatureAssessment{{Feature: "Navigation bar", Score: 5, Reason: "complete"}},
				SubmissionB: []evaluation.FeatureAssessment{{Feature: "Navigation bar", Score: 2, Reason: "partial"}},
			},
		},
	}, nil
}

func (decidedEvaluationService) Recent(context.Context, int) ([]models.EvaluationRecord, error) {
	return []models.EvaluationRecord{}, nil
}

func (decidedEvaluationService) Find(context.Context, string) (models.EvaluationRecord, error) {
	return models.EvaluationRecord{}, nil
}

// startCombinedServer serves the API and the console from one listener, with
// the console posting back to the API the way the default deployment does.
func startCombinedServer(t *testing.T, cfg config.Config) string {
	t.Helper()
	observability.RegisterMetrics()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	baseURL := "http://" + listener.Addr().String()

	consoleKey := uuid.NewString()
	client, err := evalclient.New(evalclient.Config{
		BaseURL:    baseURL + "/evaluate-files/",
		Timeout:    5 * time.Second,
		ConsoleKey: consoleKey,
		Logger:     zerolog.New(io.Discard),
	})
	require.NoError(t, err)

	renderer, err := web.NewRenderer()
	require.NoError(t, err)

	consoleService := service.NewConsoleService(client, nil, service.ConsoleServiceConfig{}, zerolog.Nop())
	consoleHandler := handler.NewConsoleHandler(consoleService, renderer, "GEMA Evaluator", 2, zerolog.New(io.Discard))

	app := fiber.New(fiber.Config{ProxyHeader: cfg.ProxyHeader})
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler: handler.NewEvaluationHandler(decidedEvaluationService{}, zerolog.New(io.Discard)),
		ConsoleHandler:    consoleHandler,
		EvaluateGuards:    router.EvaluateGuards(cfg, consoleKey),
		ConsoleGuards:     router.ConsoleGuards(cfg, consoleHandler.RespondLimited),
	})

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	t.Cleanup(func() {
		_ = app.Shutdown()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	})
	return baseURL
}

func submitConsole(t *testing.T, baseURL, clientIP string) (int, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField(evaluation.FieldCorrectPrompt, "Build a portfolio page"))
	for field, content := range map[string]string{
		evaluation.FieldSubmissionA: "<nav>A</nav>",
		evaluation.FieldSubmissionB: "<nav>B</nav>",
	} {
		part, err := writer.CreateFormFile(field, field+".html")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, baseURL+"/console/evaluate", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(fiber.HeaderXForwardedFor, clientIP)
	req.AddCookie(&http.Cookie{Name: handler.SessionCookie, Value: uuid.NewString()})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(payload)
}

func TestConsoleUsersDoNotShareEvaluateLimit(t *testing.T) {
	baseURL := startCombinedServer(t, config.Config{
		AppName:         "GEMA Evaluator",
		RateLimitMax:    2,
		RateLimitWindow: time.Minute,
		ProxyHeader:     fiber.HeaderXForwardedFor,
	})

	for _, ip := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		status, body := submitConsole(t, baseURL, ip)
		require.Equal(t, fiber.StatusOK, status, ip)
		require.Contains(t, body, "Winner: Submission A", ip)
		require.NotContains(t, body, "An error occurred", ip)
	}
}

func TestConsoleSubmitLimitedPerClient(t *testing.T) {
	baseURL := startCombinedServer(t, config.Config{
		AppName:         "GEMA Evaluator",
		RateLimitMax:    1,
		RateLimitWindow: time.Minute,
		ProxyHeader:     fiber.HeaderXForwardedFor,
	})

	status, _ := submitConsole(t, baseURL, "198.51.100.7")
	require.Equal(t, fiber.StatusOK, status)

	status, body := submitConsole(t, baseURL, "198.51.100.7")
	require.Equal(t, fiber.StatusTooManyRequests, status)
	require.Contains(t, body, "too many requests, please retry later")
	require.Contains(t, body, "Evaluate Submissions")

	status, _ = submitConsole(t, baseURL, "198.51.100.8")
	require.Equal(t, fiber.StatusOK, status)
}
