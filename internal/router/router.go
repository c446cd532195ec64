package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/campus-guidance-api/internal/config"
	"github.com/noah-isme/campus-guidance-api/internal/handler"
	"github.com/noah-isme/campus-guidance-api/internal/middleware"
	"github.com/noah-isme/campus-guidance-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GuidanceHandler      *handler.GuidanceHandler
	SeniorRequestHandler *handler.SeniorRequestHandler
	JWTMiddleware        fiber.Handler
	OptionalJWT          fiber.Handler
	HealthProbes         []handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}
	optionalJWT := deps.OptionalJWT
	if optionalJWT == nil {
		optionalJWT = middleware.OptionalJWT(cfg.JWTSecret)
	}

	// Guidance thread: authenticated reads and writes, public live stream.
	if deps.GuidanceHandler != nil {
		guidance := api.Group("/guidance")
		deps.GuidanceHandler.RegisterStream(guidance, optionalJWT)
		deps.GuidanceHandler.RegisterMessages(guidance,
			jwtMiddleware,
			middleware.RateLimit("guidance_post", cfg.MessageRateLimitPerMinute, time.Minute),
		)
	}

	// Senior applications
	if deps.SeniorRequestHandler != nil {
		senior := api.Group("/senior", jwtMiddleware)
		deps.SeniorRequestHandler.RegisterApplicant(senior, middleware.RequireAuth(middleware.AuthOptions{Role: middleware.AuthRoleStudent}))
		deps.SeniorRequestHandler.RegisterAdmin(senior, middleware.RequireRole(middleware.AuthRoleAdmin))
	}
}
