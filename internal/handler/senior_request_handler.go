package handler

import (
	"errors"
	"mime/multipart"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campus-guidance-api/internal/dto"
	"github.com/noah-isme/campus-guidance-api/internal/service"
	"github.com/noah-isme/campus-guidance-api/internal/utils"
)

// SeniorRequestHandler serves the senior application workflow.
type SeniorRequestHandler struct {
	service   service.SeniorRequestService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSeniorRequestHandler constructs the handler.
func NewSeniorRequestHandler(service service.SeniorRequestService, validator *validator.Validate, logger zerolog.Logger) *SeniorRequestHandler {
	return &SeniorRequestHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "senior_request_handler").Logger(),
	}
}

// RegisterApplicant binds the route students use to apply.
func (h *SeniorRequestHandler) RegisterApplicant(router fiber.Router, guards ...fiber.Handler) {
	router.Post("/create", chain(h.create, guards...)...)
}

// RegisterAdmin binds the review routes.
func (h *SeniorRequestHandler) RegisterAdmin(router fiber.Router, guards ...fiber.Handler) {
	router.Get("/pending", chain(h.pending, guards...)...)
	router.Post("/status", chain(h.review, guards...)...)
}

func (h *SeniorRequestHandler) create(c *fiber.Ctx) error {
	userID := userIDStringFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var payload dto.SeniorRequestCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid form payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid senior application", validationDetails(err))
	}

	var resume *multipart.FileHeader
	if file, err := c.FormFile("pdf"); err == nil {
		resume = file
	}

	response, err := h.service.Submit(withRequestContext(c), userID, payload, resume)
	if err != nil {
		return h.writeError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "senior application submitted", response)
}

func (h *SeniorRequestHandler) pending(c *fiber.Ctx) error {
	requests, err := h.service.ListPending(withRequestContext(c), userIDStringFromContext(c))
	if err != nil {
		return h.writeError(c, err)
	}
	return utils.SendSuccess(c, "pending senior applications", requests)
}

func (h *SeniorRequestHandler) review(c *fiber.Ctx) error {
	var payload dto.SeniorReviewRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	response, err := h.service.Review(withRequestContext(c), userIDStringFromContext(c), payload)
	if err != nil {
		return h.writeError(c, err)
	}

	return utils.SendSuccess(c, "senior application reviewed", response)
}

func (h *SeniorRequestHandler) writeError(c *fiber.Ctx, err error) error {
	switch {
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, "invalid request", validationDetails(err))
	case errors.Is(err, service.ErrResumeRequired), errors.Is(err, service.ErrResumeNotPDF):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrResumeTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrResumeStorageUnavailable):
		requestLogger(h.logger, c).Warn().Err(err).Msg("resume storage unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, service.ErrResumeStorageUnavailable.Error())
	case errors.Is(err, service.ErrSeniorApplicantRole), errors.Is(err, service.ErrSeniorReviewerForbidden):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrSeniorAlreadyApplied):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrSeniorRequestNotPending), errors.Is(err, service.ErrUserNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("senior request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
