package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-evaluator/internal/config"
	"github.com/noah-isme/gema-evaluator/internal/handler"
	"github.com/noah-isme/gema-evaluator/internal/middleware"
	"github.com/noah-isme/gema-evaluator/internal/observability"
	"github.com/noah-isme/gema-evaluator/internal/utils"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EvaluationHandler *handler.EvaluationHandler
	ConsoleHandler    *handler.ConsoleHandler
	// EvaluateGuards run in front of POST /evaluate-files (auth, rate limiting).
	EvaluateGuards []fiber.Handler
	// HistoryGuards run in front of the evaluation history routes.
	HistoryGuards []fiber.Handler
	// ConsoleGuards run in front of the console form submission.
	ConsoleGuards []fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	if deps.EvaluationHandler != nil {
		evaluate := app.Group("/evaluate-files", deps.EvaluateGuards...)
		deps.EvaluationHandler.Register(evaluate)

		history := api.Group("/evaluations", deps.HistoryGuards...)
		deps.EvaluationHandler.RegisterHistory(history)
	}

	if deps.ConsoleHandler != nil {
		deps.ConsoleHandler.Register(app, deps.ConsoleGuards...)
	}
}

// EvaluateGuards builds the middleware chain for the evaluation endpoint.
// JWT is only enforced when a secret is configured; failures use the {"detail"} body.
// Requests carrying consoleKey are limited by ConsoleGuards instead.
func EvaluateGuards(cfg config.Config, consoleKey string) []fiber.Handler {
	var guards []fiber.Handler
	if cfg.JWTSecret != "" {
		guards = append(guards, middleware.JWTProtected(cfg.JWTSecret, utils.SendDetail))
	}
	if cfg.RateLimitMax > 0 {
		guards = append(guards, middleware.RateLimit("evaluate", cfg.RateLimitMax, cfg.RateLimitWindow, utils.SendDetail, middleware.ConsoleCaller(consoleKey)))
	}
	return guards
}

// ConsoleGuards limits console submissions per client IP.
func ConsoleGuards(cfg config.Config, respond middleware.ErrorResponder) []fiber.Handler {
	if cfg.RateLimitMax <= 0 {
		return nil
	}
	return []fiber.Handler{
		middleware.RateLimit("console", cfg.RateLimitMax, cfg.RateLimitWindow, respond, nil),
	}
}

// HistoryGuards builds the middleware chain for the history routes.
func HistoryGuards(cfg config.Config) []fiber.Handler {
	if cfg.JWTSecret == "" {
		return nil
	}
	return []fiber.Handler{
		middleware.JWTProtected(cfg.JWTSecret, nil),
		middleware.RequireRole(cfg.JWTHistoryRoles...),
	}
}
