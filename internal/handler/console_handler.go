package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evaluator/internal/evaluation"
	"github.com/noah-isme/gema-evaluator/internal/service"
	"github.com/noah-isme/gema-evaluator/internal/utils"
	"github.com/noah-isme/gema-evaluator/internal/web"
)

// SessionCookie identifies a console browser session.
const SessionCookie = "gema_console_session"

const (
	progressPath     = "/console/progress/ws"
	inFlightNotice   = "An evaluation is already in progress for this session."
	sessionLocalsKey = "console_session"
)

// ConsoleHandler serves the server-rendered evaluation console.
type ConsoleHandler struct {
	service  service.ConsoleService
	renderer *web.Renderer
	appName  string
	maxBytes int64
	logger   zerolog.Logger
}

// NewConsoleHandler constructs the console handler. maxUploadMB bounds how much of each file is read.
func NewConsoleHandler(service service.ConsoleService, renderer *web.Renderer, appName string, maxUploadMB int, logger zerolog.Logger) *ConsoleHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 2
	}
	return &ConsoleHandler{
		service:  service,
		renderer: renderer,
		appName:  appName,
		maxBytes: int64(maxUploadMB) * 1024 * 1024,
		logger:   logger.With().Str("component", "console_handler").Logger(),
	}
}

// Register binds the console pages, assets and progress stream. submitGuards
// run in front of the form submission only.
func (h *ConsoleHandler) Register(router fiber.Router, submitGuards ...fiber.Handler) {
	router.Use("/static", filesystem.New(filesystem.Config{Root: web.Static()}))

	submit := append(append([]fiber.Handler{}, submitGuards...), h.evaluate)

	router.Get("/", h.index)
	router.Post("/console/evaluate", submit...)
	router.Get("/console/state", h.state)

	router.Use(progressPath, func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals(sessionLocalsKey, h.session(c))
		return c.Next()
	})
	router.Get(progressPath, websocket.New(h.progress))
}

func (h *ConsoleHandler) index(c *fiber.Ctx) error {
	sessionID := h.session(c)
	return h.render(c, fiber.StatusOK, h.page(h.service.State(sessionID), "", ""))
}

func (h *ConsoleHandler) evaluate(c *fiber.Ctx) error {
	sessionID := h.session(c)
	logger := requestLogger(h.logger, c)

	prompt := c.FormValue(evaluation.FieldCorrectPrompt)
	submissionA, err := h.readFile(c, evaluation.FieldSubmissionA)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read console upload")
	}
	submissionB, err := h.readFile(c, evaluation.FieldSubmissionB)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read console upload")
	}

	state, err := h.service.Submit(requestContext(c), sessionID, service.ConsoleSubmission{
		CorrectPrompt: prompt,
		SubmissionA:   submissionA,
		SubmissionB:   submissionB,
	})

	status := fiber.StatusOK
	notice := ""
	var validationErr *evaluation.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &validationErr):
		status = fiber.StatusUnprocessableEntity
	case errors.Is(err, service.ErrSubmissionInFlight):
		status = fiber.StatusConflict
		notice = inFlightNotice
	case state.Error == "":
		logger.Error().Err(err).Msg("console submission failed")
		status = fiber.StatusInternalServerError
		notice = "The console could not start the evaluation."
	}

	return h.render(c, status, h.page(state, prompt, notice))
}

// RespondLimited renders the console with message as the notice. It matches
// middleware.ErrorResponder so guards on the submit route answer in HTML.
func (h *ConsoleHandler) RespondLimited(c *fiber.Ctx, status int, message string) error {
	state := h.service.State(h.session(c))
	return h.render(c, status, h.page(state, c.FormValue(evaluation.FieldCorrectPrompt), message))
}

func (h *ConsoleHandler) state(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "console state", h.service.State(h.session(c)))
}

func (h *ConsoleHandler) progress(conn *websocket.Conn) {
	sessionID, _ := conn.Locals(sessionLocalsKey).(string)
	if sessionID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusBadRequest, "session missing"))
		_ = conn.Close()
		return
	}

	events, cleanup := h.service.Subscribe(sessionID)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug().Str("session_id", sessionID).Msg("progress stream connected")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

func (h *ConsoleHandler) page(state service.ConsoleState, prompt, notice string) web.Page {
	page := web.Page{
		AppName:    h.appName,
		Prompt:     prompt,
		Notice:     notice,
		Loading:    state.Loading,
		Log:        state.Log,
		Error:      state.Error,
		ProgressWS: progressPath,
	}
	if state.Result != nil && state.Verdict != nil {
		page.Result = web.NewResultView(*state.Result, *state.Verdict)
	}
	return page
}

func (h *ConsoleHandler) render(c *fiber.Ctx, status int, page web.Page) error {
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, page); err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to render console")
		return fiber.ErrInternalServerError
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).Send(buf.Bytes())
}

// session returns the caller's session id, issuing a cookie when absent.
func (h *ConsoleHandler) session(c *fiber.Ctx) string {
	if existing := strings.TrimSpace(c.Cookies(SessionCookie)); existing != "" {
		if _, err := uuid.Parse(existing); err == nil {
			return existing
		}
	}

	id := uuid.NewString()
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   c.Protocol() == "https",
	})
	return id
}

func (h *ConsoleHandler) readFile(c *fiber.Ctx, field string) (evaluation.File, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return evaluation.File{}, nil
	}
	return h.readHeader(header)
}

func (h *ConsoleHandler) readHeader(header *multipart.FileHeader) (evaluation.File, error) {
	handle, err := header.Open()
	if err != nil {
		return evaluation.File{}, err
	}
	defer handle.Close()

	// One byte past the limit lets the evaluation service report the oversize file.
	content, err := io.ReadAll(io.LimitReader(handle, h.maxBytes+1))
	if err != nil {
		return evaluation.File{}, err
	}
	return evaluation.File{Name: header.Filename, Content: content}, nil
}
