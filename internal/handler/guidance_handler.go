package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campus-guidance-api/internal/dto"
	"github.com/noah-isme/campus-guidance-api/internal/middleware"
	"github.com/noah-isme/campus-guidance-api/internal/realtime"
	"github.com/noah-isme/campus-guidance-api/internal/service"
	"github.com/noah-isme/campus-guidance-api/internal/utils"
)

const (
	defaultFeedPage  = 1
	defaultFeedLimit = 20
)

// GuidanceHandler exposes the guidance thread over HTTP and websocket.
type GuidanceHandler struct {
	service   service.GuidanceService
	hub       *realtime.Hub
	viewer    realtime.ViewerOptions
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGuidanceHandler constructs a guidance handler. viewer carries the per-connection tuning
// applied to every websocket client.
func NewGuidanceHandler(service service.GuidanceService, hub *realtime.Hub, viewer realtime.ViewerOptions, validator *validator.Validate, logger zerolog.Logger) *GuidanceHandler {
	return &GuidanceHandler{
		service:   service,
		hub:       hub,
		viewer:    viewer,
		validator: validator,
		logger:    logger.With().Str("component", "guidance_handler").Logger(),
	}
}

// Register binds every guidance route without authentication guards.
func (h *GuidanceHandler) Register(router fiber.Router) {
	h.RegisterMessages(router, nil, nil)
	h.RegisterStream(router, nil)
}

// RegisterMessages binds the post and feed endpoints. auth guards both routes; limiter only
// guards posting. Either may be nil.
func (h *GuidanceHandler) RegisterMessages(router fiber.Router, auth, limiter fiber.Handler) {
	router.Post("/msg", chain(h.create, auth, limiter)...)
	router.Get("/msgs", chain(h.feed, auth)...)
}

// RegisterStream binds the websocket upgrade. auth, when set, runs before the upgrade.
func (h *GuidanceHandler) RegisterStream(router fiber.Router, auth fiber.Handler) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", withRequestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", chain(websocket.New(h.handleConnection), auth)...)
}

func (h *GuidanceHandler) create(c *fiber.Ctx) error {
	senderID := userIDStringFromContext(c)
	if senderID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var payload dto.GuidanceMessageCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	if err := h.validator.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid guidance message", validationDetails(err))
	}

	message, err := h.service.Create(withRequestContext(c), senderID, payload)
	if err != nil {
		return h.writeError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message posted", message)
}

func (h *GuidanceHandler) feed(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	if page == 0 {
		page = defaultFeedPage
	}
	if limit == 0 {
		limit = defaultFeedLimit
	}

	query := dto.GuidanceFeedQuery{
		Page:   page,
		Limit:  limit,
		Before: strings.TrimSpace(c.Query("before")),
	}
	if err := h.validator.Struct(query); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid feed query", validationDetails(err))
	}

	messages, err := h.service.Feed(withRequestContext(c), query)
	if err != nil {
		return h.writeError(c, err)
	}

	meta := fiber.Map{"page": query.Page, "limit": query.Limit}
	if query.Before != "" {
		meta["before"] = query.Before
	}
	// nextBefore is a keyset cursor for the before parameter, offered only while a full page
	// suggests more history exists.
	if len(messages) == query.Limit {
		meta["nextBefore"] = messages[len(messages)-1].ID
	}

	return utils.OK(c, messages, "guidance feed", meta)
}

func (h *GuidanceHandler) handleConnection(conn *websocket.Conn) {
	ctx, _ := conn.Locals("request_ctx").(context.Context)
	if ctx == nil {
		ctx = context.Background()
	}

	opts := h.viewer
	opts.UserID, _ = conn.Locals("user_id").(string)
	opts.CorrelationID = middleware.CorrelationIDFromContext(ctx)

	viewer := realtime.NewViewer(conn, opts, h.logger)
	h.logger.Info().Str("user_id", opts.UserID).Int("viewers", h.hub.Count()+1).Msg("guidance viewer connected")
	viewer.Serve(ctx, h.hub)
	h.logger.Info().Str("user_id", opts.UserID).Msg("guidance viewer disconnected")
}

func (h *GuidanceHandler) writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrGuidanceValidation), isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		return utils.SendError(c, fiber.StatusNotFound, service.ErrUserNotFound.Error())
	case errors.Is(err, service.ErrReplyForbidden):
		return utils.SendError(c, fiber.StatusForbidden, service.ErrReplyForbidden.Error())
	case errors.Is(err, service.ErrParentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, service.ErrParentNotFound.Error())
	case errors.Is(err, service.ErrReplyDepthExceeded):
		return utils.SendError(c, fiber.StatusBadRequest, service.ErrReplyDepthExceeded.Error())
	case errors.Is(err, service.ErrContentRejected):
		return utils.SendError(c, fiber.StatusBadRequest, service.ErrContentRejected.Error())
	case errors.Is(err, service.ErrModerationUnavailable):
		requestLogger(h.logger, c).Warn().Err(err).Msg("moderation unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, service.ErrModerationUnavailable.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("guidance request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
