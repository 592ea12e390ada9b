package evalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-evaluator/internal/evaluation"
	"github.com/noah-isme/gema-evaluator/internal/middleware"
)

const maxErrorBody = 64 * 1024

// Config defines how the client reaches the evaluation service.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	BearerToken string
	// ConsoleKey is sent as X-Console-Key so the co-located API can tell console traffic apart.
	ConsoleKey string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client submits evaluation requests to the remote service. Each call is a single attempt.
type Client struct {
	endpoint string
	token    string
	key      string
	http     *http.Client
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// New builds a client for the configured endpoint.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.BaseURL)
	if endpoint == "" {
		return nil, fmt.Errorf("evaluation service url is required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid evaluation service url %q", endpoint)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &Client{
		endpoint: endpoint,
		token:    strings.TrimSpace(cfg.BearerToken),
		key:      strings.TrimSpace(cfg.ConsoleKey),
		http:     httpClient,
		tracer:   otel.Tracer("github.com/noah-isme/gema-evaluator/internal/evalclient"),
		logger:   logger.With().Str("component", "evaluation_client").Logger(),
	}, nil
}

// Endpoint returns the URL requests are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Submit validates the raw inputs and evaluates them. Invalid inputs fail
// with *evaluation.ValidationError before any network traffic.
func (c *Client) Submit(ctx context.Context, prompt string, submissionA, submissionB evaluation.File) (evaluation.Result, error) {
	req, err := evaluation.NewRequest(prompt, submissionA, submissionB)
	if err != nil {
		return evaluation.Result{}, err
	}
	return c.Evaluate(ctx, req)
}

// Evaluate posts the request as multipart form data and decodes the verdict.
func (c *Client) Evaluate(parent context.Context, req evaluation.Request) (evaluation.Result, error) {
	ctx, span := c.tracer.Start(parent, "evalclient.evaluate", trace.WithAttributes(
		attribute.String("evaluation.endpoint", c.endpoint),
		attribute.Int("evaluation.submission_a_bytes", len(req.SubmissionA.Content)),
		attribute.Int("evaluation.submission_b_bytes", len(req.SubmissionB.Content)),
	))
	defer span.End()

	body, contentType, err := encodeForm(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return evaluation.Result{}, evaluation.NewUnreachableError(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request build failed")
		return evaluation.Result{}, evaluation.NewUnreachableError(err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if correlation := middleware.CorrelationIDFromContext(ctx); correlation != "" {
		httpReq.Header.Set(middleware.HeaderCorrelationID, correlation)
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.key != "" {
		httpReq.Header.Set(middleware.HeaderConsoleKey, c.key)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("evaluation request failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failed")
		return evaluation.Result{}, evaluation.NewUnreachableError(err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		serviceErr := decodeServiceError(resp)
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("detail", serviceErr.Detail).
			Msg("evaluation service rejected request")
		span.RecordError(serviceErr)
		span.SetStatus(codes.Error, "service error")
		return evaluation.Result{}, serviceErr
	}

	var result evaluation.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return evaluation.Result{}, evaluation.NewUnreadableError(err)
	}

	c.logger.Info().
		Str("decision_type", string(result.DecisionType)).
		Dur("elapsed", time.Since(start)).
		Msg("evaluation received")
	span.SetStatus(codes.Ok, "evaluated")

	return result, nil
}

func encodeForm(req evaluation.Request) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	if err := writer.WriteField(evaluation.FieldCorrectPrompt, req.CorrectPrompt); err != nil {
		return nil, "", err
	}
	if err := writeFile(writer, evaluation.FieldSubmissionA, req.SubmissionA, "submission_a.txt"); err != nil {
		return nil, "", err
	}
	if err := writeFile(writer, evaluation.FieldSubmissionB, req.SubmissionB, "submission_b.txt"); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return buf, writer.FormDataContentType(), nil
}

func writeFile(writer *multipart.Writer, field string, file evaluation.File, fallbackName string) error {
	name := strings.TrimSpace(file.Name)
	if name == "" {
		name = fallbackName
	}
	part, err := writer.CreateFormFile(field, name)
	if err != nil {
		return err
	}
	_, err = part.Write(file.Content)
	return err
}

func decodeServiceError(resp *http.Response) *evaluation.ServiceError {
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return evaluation.NewServiceError(resp.StatusCode, "")
	}

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || len(body.Detail) == 0 {
		return evaluation.NewServiceError(resp.StatusCode, "")
	}

	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err != nil {
		return evaluation.NewServiceError(resp.StatusCode, "")
	}

	return evaluation.NewServiceError(resp.StatusCode, detail)
}
