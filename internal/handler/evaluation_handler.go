package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evaluator/internal/evaluation"
	"github.com/noah-isme/gema-evaluator/internal/service"
	"github.com/noah-isme/gema-evaluator/internal/utils"
)

const (
	providerErrorPrefix  = "An error occurred with the AI provider: "
	invalidVerdictDetail = "The AI provider returned an invalid verdict."
	unexpectedDetail     = "An unexpected error occurred."
)

// EvaluationHandler serves the evaluation endpoint and the evaluation history.
type EvaluationHandler struct {
	service service.EvaluationService
	logger  zerolog.Logger
}

// NewEvaluationHandler constructs an evaluation handler.
func NewEvaluationHandler(service service.EvaluationService, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		service: service,
		logger:  logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register wires POST / under the evaluate-files group.
func (h *EvaluationHandler) Register(router fiber.Router) {
	router.Post("/", h.evaluate)
}

// RegisterHistory wires the read-only history routes.
func (h *EvaluationHandler) RegisterHistory(router fiber.Router) {
	router.Get("/", h.list)
	router.Get("/:reference", h.get)
}

func (h *EvaluationHandler) evaluate(c *fiber.Ctx) error {
	input := service.EvaluationInput{
		CorrectPrompt: c.FormValue(evaluation.FieldCorrectPrompt),
	}
	if file, err := c.FormFile(evaluation.FieldSubmissionA); err == nil {
		input.SubmissionA = file
	}
	if file, err := c.FormFile(evaluation.FieldSubmissionB); err == nil {
		input.SubmissionB = file
	}

	outcome, err := h.service.Evaluate(requestContext(c), input)
	if err != nil {
		return h.sendEvaluationError(c, err)
	}

	c.Set("X-Evaluation-Reference", outcome.ReferenceID)
	return c.Status(fiber.StatusOK).JSON(outcome.Result)
}

func (h *EvaluationHandler) sendEvaluationError(c *fiber.Ctx, err error) error {
	logger := requestLogger(h.logger, c)

	var fieldErr *service.FieldError
	if errors.As(err, &fieldErr) {
		switch {
		case errors.Is(err, service.ErrMissingField):
			return utils.SendDetail(c, fiber.StatusUnprocessableEntity, fieldErr.Error())
		case errors.Is(err, service.ErrFileTooLarge):
			return utils.SendDetail(c, fiber.StatusRequestEntityTooLarge, fieldErr.Error())
		case errors.Is(err, service.ErrNotTextFile):
			return utils.SendDetail(c, fiber.StatusBadRequest, fieldErr.Error())
		}
	}

	switch {
	case errors.Is(err, service.ErrInvalidVerdict):
		return utils.SendDetail(c, fiber.StatusBadGateway, invalidVerdictDetail)
	case errors.Is(err, service.ErrJudgeFailed):
		cause := strings.TrimPrefix(err.Error(), service.ErrJudgeFailed.Error()+": ")
		return utils.SendDetail(c, fiber.StatusBadGateway, providerErrorPrefix+cause)
	default:
		logger.Error().Err(err).Msg("evaluation failed")
		return utils.SendDetail(c, fiber.StatusInternalServerError, unexpectedDetail)
	}
}

func (h *EvaluationHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	records, err := h.service.Recent(requestContext(c), limit)
	if err != nil {
		return h.sendHistoryError(c, err)
	}

	return utils.SendSuccess(c, "recent evaluations", records)
}

func (h *EvaluationHandler) get(c *fiber.Ctx) error {
	record, err := h.service.Find(requestContext(c), c.Params("reference"))
	if err != nil {
		return h.sendHistoryError(c, err)
	}

	return utils.SendSuccess(c, "evaluation retrieved", record)
}

func (h *EvaluationHandler) sendHistoryError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrHistoryUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrEvaluationNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to load evaluation history")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load evaluations")
	}
}
