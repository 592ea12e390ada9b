package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-evaluator/internal/evaluation"
	"github.com/noah-isme/gema-evaluator/internal/middleware"
	"github.com/noah-isme/gema-evaluator/internal/models"
	"github.com/noah-isme/gema-evaluator/internal/observability"
	"github.com/noah-isme/gema-evaluator/internal/repository"
	"github.com/noah-isme/gema-evaluator/pkg/ai"
)

var (
	// ErrMissingField indicates a required form field was absent or empty.
	ErrMissingField = errors.New("is required")
	// ErrFileTooLarge indicates a submission exceeded the configured limit.
	ErrFileTooLarge = errors.New("exceeds maximum allowed size")
	// ErrNotTextFile indicates a submission is not UTF-8 text.
	ErrNotTextFile = errors.New("must be a UTF-8 text file")
	// ErrJudgeFailed indicates the AI provider call failed.
	ErrJudgeFailed = errors.New("ai provider request failed")
	// ErrInvalidVerdict indicates the AI provider answered with an unusable verdict.
	ErrInvalidVerdict = errors.New("invalid verdict")
	// ErrHistoryUnavailable indicates no evaluation store is configured.
	ErrHistoryUnavailable = errors.New("evaluation history is not configured")
	// ErrEvaluationNotFound indicates the reference id is unknown.
	ErrEvaluationNotFound = errors.New("evaluation not found")
)

// EvaluationCompletedEvent is the payload published after every successful evaluation.
const EvaluationCompletedEvent = "evaluation.completed"

// FieldError ties an input failure to the form field that caused it.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Err.Error())
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// SubmissionArchive stores submission files and returns a retrievable URL.
type SubmissionArchive interface {
	Archive(ctx context.Context, reference, name string, reader io.Reader) (string, error)
}

// EventPublisher is satisfied by *nats.Conn.
type EventPublisher interface {
	Publish(subject string, data []byte) error
}

// EvaluationInput carries the raw multipart inputs of an evaluation request.
type EvaluationInput struct {
	CorrectPrompt string
	SubmissionA   *multipart.FileHeader
	SubmissionB   *multipart.FileHeader
}

// EvaluationOutcome is the result of a successful evaluation.
type EvaluationOutcome struct {
	ReferenceID string
	Result      evaluation.Result
	Verdict     evaluation.Verdict
	Provider    string
	Model       string
}

// EvaluationServiceConfig tunes the evaluation service.
type EvaluationServiceConfig struct {
	MaxUploadMB int
	Subject     string
}

// EvaluationService judges submissions and records the outcome.
type EvaluationService interface {
	Evaluate(ctx context.Context, input EvaluationInput) (EvaluationOutcome, error)
	Recent(ctx context.Context, limit int) ([]models.EvaluationRecord, error)
	Find(ctx context.Context, referenceID string) (models.EvaluationRecord, error)
}

type evaluationService struct {
	judge     ai.Judge
	repo      repository.EvaluationRepository
	archive   SubmissionArchive
	publisher EventPublisher
	subject   string
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	maxSize   int64
	logger    zerolog.Logger
	tracer    trace.Tracer
}

type evaluationEvent struct {
	Event         string                  `json:"event"`
	ReferenceID   string                  `json:"reference_id"`
	CorrelationID string                  `json:"correlation_id,omitempty"`
	DecisionType  evaluation.DecisionType `json:"decision_type"`
	Winner        evaluation.Side         `json:"winner"`
	Provider      string                  `json:"provider"`
	Model         string                  `json:"model"`
	CompletedAt   time.Time               `json:"completed_at"`
}

type submission struct {
	field   string
	name    string
	content []byte
}

// NewEvaluationService constructs the evaluation service. repo, archive and publisher are optional.
func NewEvaluationService(judge ai.Judge, repo repository.EvaluationRepository, archive SubmissionArchive, publisher EventPublisher, validate *validator.Validate, cfg EvaluationServiceConfig, logger zerolog.Logger) EvaluationService {
	maxSizeMB := cfg.MaxUploadMB
	if maxSizeMB <= 0 {
		maxSizeMB = 2
	}
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &evaluationService{
		judge:     judge,
		repo:      repo,
		archive:   archive,
		publisher: publisher,
		subject:   strings.TrimSpace(cfg.Subject),
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		maxSize:   int64(maxSizeMB) * 1024 * 1024,
		logger:    logger.With().Str("component", "evaluation_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-evaluator/internal/service/evaluation"),
	}
}

func (s *evaluationService) Evaluate(ctx context.Context, input EvaluationInput) (EvaluationOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.evaluate")
	defer span.End()

	correlationID := middleware.CorrelationIDFromContext(ctx)
	logger := s.logger.With().Str("correlation_id", correlationID).Logger()

	prompt := strings.TrimSpace(input.CorrectPrompt)
	if prompt == "" {
		return EvaluationOutcome{}, s.reject(span, &FieldError{Field: evaluation.FieldCorrectPrompt, Err: ErrMissingField})
	}

	submissionA, err := s.readSubmission(evaluation.FieldSubmissionA, input.SubmissionA)
	if err != nil {
		return EvaluationOutcome{}, s.reject(span, err)
	}
	submissionB, err := s.readSubmission(evaluation.FieldSubmissionB, input.SubmissionB)
	if err != nil {
		return EvaluationOutcome{}, s.reject(span, err)
	}

	for _, sub := range []submission{submissionA, submissionB} {
		if !hasAcceptedExtension(sub.name) {
			logger.Warn().Str("field", sub.field).Str("file_name", sub.name).Msg("submission has an unexpected extension")
		}
	}

	span.SetAttributes(
		attribute.String("evaluation.provider", s.judge.Provider()),
		attribute.Int("evaluation.submission_a_bytes", len(submissionA.content)),
		attribute.Int("evaluation.submission_b_bytes", len(submissionB.content)),
	)

	start := time.Now()
	output, err := s.judge.Judge(ctx, ai.JudgeInput{
		CorrectPrompt:   prompt,
		SubmissionA:     string(submissionA.content),
		SubmissionAName: submissionA.name,
		SubmissionB:     string(submissionB.content),
		SubmissionBName: submissionB.name,
	})
	if err != nil {
		observability.EvaluationsTotal().WithLabelValues("failed").Inc()
		span.RecordError(err)
		if errors.Is(err, ai.ErrInvalidVerdict) || errors.Is(err, ai.ErrEmptyCompletion) {
			span.SetStatus(codes.Error, "invalid verdict")
			logger.Error().Err(err).Msg("judge returned an invalid verdict")
			return EvaluationOutcome{}, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
		}
		span.SetStatus(codes.Error, "judge failed")
		logger.Error().Err(err).Msg("judge request failed")
		return EvaluationOutcome{}, fmt.Errorf("%w: %v", ErrJudgeFailed, err)
	}

	result, err := s.decodeVerdict(output.Verdict)
	if err != nil {
		observability.EvaluationsTotal().WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid verdict")
		logger.Error().Err(err).Msg("judge verdict failed validation")
		return EvaluationOutcome{}, err
	}

	verdict := evaluation.Interpret(result)
	outcome := EvaluationOutcome{
		ReferenceID: uuid.NewString(),
		Result:      result,
		Verdict:     verdict,
		Provider:    output.Provider,
		Model:       output.Model,
	}
	elapsed := time.Since(start)

	urlA, urlB := s.archiveSubmissions(ctx, logger, outcome.ReferenceID, submissionA, submissionB)
	s.persist(ctx, logger, persistInput{
		outcome:       outcome,
		prompt:        prompt,
		submissionA:   submissionA,
		submissionB:   submissionB,
		urlA:          urlA,
		urlB:          urlB,
		correlationID: correlationID,
		usage:         output.Usage,
		elapsed:       elapsed,
	})
	s.publish(logger, outcome, correlationID)

	observability.EvaluationsTotal().WithLabelValues(outcomeLabel(verdict)).Inc()
	span.SetAttributes(
		attribute.String("evaluation.reference_id", outcome.ReferenceID),
		attribute.String("evaluation.decision_type", string(result.DecisionType)),
		attribute.String("evaluation.winner", outcomeLabel(verdict)),
	)
	span.SetStatus(codes.Ok, "evaluated")

	logger.Info().
		Str("reference_id", outcome.ReferenceID).
		Str("decision_type", string(result.DecisionType)).
		Str("winner", outcomeLabel(verdict)).
		Str("provider", output.Provider).
		Dur("elapsed", elapsed).
		Msg("evaluation completed")

	return outcome, nil
}

func (s *evaluationService) Recent(ctx context.Context, limit int) ([]models.EvaluationRecord, error) {
	if s.repo == nil {
		return nil, ErrHistoryUnavailable
	}
	return s.repo.ListRecent(ctx, limit)
}

func (s *evaluationService) Find(ctx context.Context, referenceID string) (models.EvaluationRecord, error) {
	if s.repo == nil {
		return models.EvaluationRecord{}, ErrHistoryUnavailable
	}

	record, err := s.repo.GetByReference(ctx, strings.TrimSpace(referenceID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.EvaluationRecord{}, ErrEvaluationNotFound
		}
		return models.EvaluationRecord{}, err
	}
	return record, nil
}

func (s *evaluationService) reject(span trace.Span, err error) error {
	reason := "invalid"
	switch {
	case errors.Is(err, ErrMissingField):
		reason = "missing"
	case errors.Is(err, ErrFileTooLarge):
		reason = "size"
	case errors.Is(err, ErrNotTextFile):
		reason = "type"
	}
	observability.EvaluationRejected().WithLabelValues(reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "validation failed")
	return err
}

func (s *evaluationService) readSubmission(field string, file *multipart.FileHeader) (submission, error) {
	if file == nil {
		return submission{}, &FieldError{Field: field, Err: ErrMissingField}
	}
	if file.Size > s.maxSize {
		return submission{}, &FieldError{Field: field, Err: ErrFileTooLarge}
	}

	handle, err := file.Open()
	if err != nil {
		return submission{}, fmt.Errorf("open %s: %w", field, err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		return submission{}, fmt.Errorf("read %s: %w", field, err)
	}
	if int64(buf.Len()) > s.maxSize {
		return submission{}, &FieldError{Field: field, Err: ErrFileTooLarge}
	}
	if buf.Len() == 0 {
		return submission{}, &FieldError{Field: field, Err: ErrMissingField}
	}
	if !isText(buf.Bytes()) {
		return submission{}, &FieldError{Field: field, Err: ErrNotTextFile}
	}

	name := filepath.Base(strings.TrimSpace(file.Filename))
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}

	return submission{field: field, name: name, content: buf.Bytes()}, nil
}

func (s *evaluationService) decodeVerdict(raw json.RawMessage) (evaluation.Result, error) {
	var result evaluation.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return evaluation.Result{}, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
	}
	if err := s.validator.Struct(result); err != nil {
		return evaluation.Result{}, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
	}

	result.FinalDecision = s.clean(result.FinalDecision)
	result.Analysis.SubmissionA = s.cleanAssessments(result.Analysis.SubmissionA)
	result.Analysis.SubmissionB = s.cleanAssessments(result.Analysis.SubmissionB)
	return result, nil
}

func (s *evaluationService) cleanAssessments(items []evaluation.FeatureAssessment) []evaluation.FeatureAssessment {
	cleaned := make([]evaluation.FeatureAssessment, 0, len(items))
	for _, item := range items {
		item.Feature = s.clean(item.Feature)
		item.Reason = s.clean(item.Reason)
		cleaned = append(cleaned, item)
	}
	return cleaned
}

// clean strips markup; the output is plain text and is escaped again at render time.
func (s *evaluationService) clean(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(value)))
}

func (s *evaluationService) archiveSubmissions(ctx context.Context, logger zerolog.Logger, reference string, a, b submission) (string, string) {
	if s.archive == nil {
		return "", ""
	}

	urls := make([]string, 2)
	for i, sub := range []submission{a, b} {
		name := sub.name
		if name == "" {
			name = sub.field + ".txt"
		}
		url, err := s.archive.Archive(ctx, reference, fmt.Sprintf("%s-%s", sideLabel(i), name), bytes.NewReader(sub.content))
		if err != nil {
			logger.Warn().Err(err).Str("field", sub.field).Msg("failed to archive submission")
			continue
		}
		urls[i] = url
	}
	return urls[0], urls[1]
}

type persistInput struct {
	outcome       EvaluationOutcome
	prompt        string
	submissionA   submission
	submissionB   submission
	urlA          string
	urlB          string
	correlationID string
	usage         ai.Usage
	elapsed       time.Duration
}

func (s *evaluationService) persist(ctx context.Context, logger zerolog.Logger, in persistInput) {
	if s.repo == nil {
		return
	}

	payload, err := resultMap(in.outcome.Result)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to encode result for storage")
		return
	}

	record := models.EvaluationRecord{
		ReferenceID:     in.outcome.ReferenceID,
		CorrelationID:   in.correlationID,
		CorrectPrompt:   in.prompt,
		SubmissionAName: in.submissionA.name,
		SubmissionBName: in.submissionB.name,
		SubmissionAURL:  in.urlA,
		SubmissionBURL:  in.urlB,
		Checksum:        checksum(in.submissionA.content, in.submissionB.content),
		DecisionType:    string(in.outcome.Result.DecisionType),
		Outcome:         outcomeLabel(in.outcome.Verdict),
		Provider:        in.outcome.Provider,
		Model:           in.outcome.Model,
		TotalTokens:     in.usage.TotalTokens,
		DurationMs:      in.elapsed.Milliseconds(),
		Result:          payload,
	}

	if err := s.repo.Create(ctx, &record); err != nil {
		logger.Error().Err(err).Str("reference_id", record.ReferenceID).Msg("failed to persist evaluation")
	}
}

func (s *evaluationService) publish(logger zerolog.Logger, outcome EvaluationOutcome, correlationID string) {
	if s.publisher == nil || s.subject == "" {
		return
	}

	payload, err := json.Marshal(evaluationEvent{
		Event:         EvaluationCompletedEvent,
		ReferenceID:   outcome.ReferenceID,
		CorrelationID: correlationID,
		DecisionType:  outcome.Result.DecisionType,
		Winner:        outcome.Verdict.Winner,
		Provider:      outcome.Provider,
		Model:         outcome.Model,
		CompletedAt:   time.Now().UTC(),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to encode evaluation event")
		return
	}

	if err := s.publisher.Publish(s.subject, payload); err != nil {
		logger.Warn().Err(err).Str("subject", s.subject).Msg("failed to publish evaluation event")
	}
}

func isText(content []byte) bool {
	if !utf8.Valid(content) {
		return false
	}
	for mt := mimetype.Detect(content); mt != nil; mt = mt.Parent() {
		switch {
		case mt.Is("text/plain"), strings.HasPrefix(mt.String(), "text/"):
			return true
		case mt.Is("application/json"), mt.Is("application/javascript"):
			return true
		}
	}
	return false
}

func hasAcceptedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, accepted := range evaluation.AcceptedExtensions {
		if ext == accepted {
			return true
		}
	}
	return false
}

func outcomeLabel(verdict evaluation.Verdict) string {
	switch verdict.Winner {
	case evaluation.SideA:
		return models.EvaluationOutcomeWinnerA
	case evaluation.SideB:
		return models.EvaluationOutcomeWinnerB
	default:
		return models.EvaluationOutcomeTie
	}
}

func sideLabel(index int) string {
	if index == 0 {
		return "a"
	}
	return "b"
}

func checksum(parts ...[]byte) string {
	hash := sha256.New()
	for _, part := range parts {
		hash.Write(part)
	}
	return hex.EncodeToString(hash.Sum(nil))
}

func resultMap(result evaluation.Result) (datatypes.JSONMap, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	var payload datatypes.JSONMap
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
