package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/campus-guidance-api/internal/dto"
	"github.com/noah-isme/campus-guidance-api/internal/models"
	"github.com/noah-isme/campus-guidance-api/internal/repository"
)

var (
	// ErrResumeRequired indicates the application was submitted without a resume.
	ErrResumeRequired = errors.New("resume pdf is required")
	// ErrResumeTooLarge indicates the resume exceeded the configured limit.
	ErrResumeTooLarge = errors.New("resume exceeds maximum allowed size")
	// ErrResumeNotPDF indicates the uploaded content is not a PDF document.
	ErrResumeNotPDF = errors.New("resume must be a pdf document")
	// ErrResumeStorageUnavailable indicates no object storage is configured or it failed.
	ErrResumeStorageUnavailable = errors.New("resume storage unavailable")
	// ErrSeniorApplicantRole indicates only students may apply to become seniors.
	ErrSeniorApplicantRole = errors.New("only STUDENT users can apply to become SENIOR")
	// ErrSeniorAlreadyApplied indicates an application is already pending or approved.
	ErrSeniorAlreadyApplied = errors.New("senior application already submitted")
	// ErrSeniorRequestNotPending indicates there is no pending application to review.
	ErrSeniorRequestNotPending = errors.New("no pending senior application for user")
	// ErrSeniorReviewerForbidden indicates the reviewer's current stored role is not ADMIN.
	ErrSeniorReviewerForbidden = errors.New("only ADMIN users can review senior applications")
)

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// SeniorRequestService runs the application workflow that promotes students to seniors.
type SeniorRequestService interface {
	Submit(ctx context.Context, userID string, payload dto.SeniorRequestCreateRequest, resume *multipart.FileHeader) (dto.SeniorRequestResponse, error)
	ListPending(ctx context.Context, reviewerID string) ([]dto.SeniorRequestResponse, error)
	Review(ctx context.Context, reviewerID string, payload dto.SeniorReviewRequest) (dto.SeniorRequestResponse, error)
}

type seniorRequestService struct {
	repo      repository.SeniorRequestRepository
	users     UserResolver
	storage   FileStorage
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
	maxSize   int64
	now       func() time.Time
}

// NewSeniorRequestService constructs the senior application service. storage may be nil, in which
// case submissions fail with ErrResumeStorageUnavailable.
func NewSeniorRequestService(repo repository.SeniorRequestRepository, users UserResolver, storage FileStorage, validate *validator.Validate, maxSizeMB int, logger zerolog.Logger) SeniorRequestService {
	if maxSizeMB <= 0 {
		maxSizeMB = 5
	}
	return &seniorRequestService{
		repo:      repo,
		users:     users,
		storage:   storage,
		validator: validate,
		logger:    logger.With().Str("component", "senior_request_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/campus-guidance-api/internal/service/senior"),
		sanitizer: bluemonday.StrictPolicy(),
		maxSize:   int64(maxSizeMB) * 1024 * 1024,
		now:       time.Now,
	}
}

func (s *seniorRequestService) Submit(ctx context.Context, userID string, payload dto.SeniorRequestCreateRequest, resume *multipart.FileHeader) (dto.SeniorRequestResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SeniorRequestResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "senior.submit", trace.WithAttributes(attribute.String("senior.user_id", userID)))
	defer span.End()

	user, err := s.users.ResolveUser(ctx, userID)
	if err != nil {
		return dto.SeniorRequestResponse{}, err
	}
	if user.Role != models.RoleStudent {
		return dto.SeniorRequestResponse{}, ErrSeniorApplicantRole
	}
	if user.SeniorApplicationStatus == models.SeniorStatusPending || user.SeniorApplicationStatus == models.SeniorStatusApproved {
		return dto.SeniorRequestResponse{}, ErrSeniorAlreadyApplied
	}

	if resume == nil {
		return dto.SeniorRequestResponse{}, ErrResumeRequired
	}
	if resume.Size > s.maxSize {
		return dto.SeniorRequestResponse{}, ErrResumeTooLarge
	}

	content, err := s.readResume(resume)
	if err != nil {
		span.RecordError(err)
		return dto.SeniorRequestResponse{}, err
	}

	detected := mimetype.Detect(content)
	span.SetAttributes(attribute.String("senior.resume_mime", detected.String()))
	if !detected.Is("application/pdf") {
		return dto.SeniorRequestResponse{}, ErrResumeNotPDF
	}

	if s.storage == nil {
		return dto.SeniorRequestResponse{}, ErrResumeStorageUnavailable
	}

	name := resumeFileName(user.Username)
	url, err := s.storage.Upload(ctx, name, bytes.NewReader(content))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to upload resume")
		return dto.SeniorRequestResponse{}, fmt.Errorf("%w: %v", ErrResumeStorageUnavailable, err)
	}

	checksum := sha256.Sum256(content)
	request := models.SeniorRequest{
		UserID:     user.ID,
		Experience: strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(payload.Experience))),
		ResumeURL:  url,
		Metadata: datatypes.JSONMap{
			"mime":          detected.String(),
			"size_bytes":    len(content),
			"checksum":      hex.EncodeToString(checksum[:]),
			"original_name": strings.TrimSpace(resume.Filename),
		},
	}

	if err := s.repo.Submit(ctx, &request); err != nil {
		if errors.Is(err, repository.ErrSeniorRequestExists) {
			return dto.SeniorRequestResponse{}, ErrSeniorAlreadyApplied
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SeniorRequestResponse{}, ErrUserNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.SeniorRequestResponse{}, err
	}

	s.logger.Info().Str("user_id", userID).Uint("request_id", request.ID).Msg("senior application submitted")
	return dto.NewSeniorRequestResponse(request), nil
}

func (s *seniorRequestService) ListPending(ctx context.Context, reviewerID string) ([]dto.SeniorRequestResponse, error) {
	if err := s.authorizeReviewer(ctx, reviewerID); err != nil {
		return nil, err
	}

	requests, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	return dto.NewSeniorRequestResponseSlice(requests), nil
}

// Review approves or rejects the user's pending application. The reviewer's role is read from the
// store, not from the token. Approval takes effect on the user's next authorization check.
func (s *seniorRequestService) Review(ctx context.Context, reviewerID string, payload dto.SeniorReviewRequest) (dto.SeniorRequestResponse, error) {
	if err := s.authorizeReviewer(ctx, reviewerID); err != nil {
		return dto.SeniorRequestResponse{}, err
	}

	payload.Action = strings.ToUpper(strings.TrimSpace(payload.Action))
	if err := s.validator.Struct(payload); err != nil {
		return dto.SeniorRequestResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "senior.review", trace.WithAttributes(
		attribute.String("senior.user_id", payload.UserID),
		attribute.String("senior.action", payload.Action),
	))
	defer span.End()

	approve := payload.Action == dto.SeniorActionApprove
	request, err := s.repo.Review(ctx, payload.UserID, reviewerID, approve, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrSeniorRequestNotPending) {
			return dto.SeniorRequestResponse{}, ErrSeniorRequestNotPending
		}
		span.RecordError(err)
		return dto.SeniorRequestResponse{}, err
	}

	s.logger.Info().
		Str("user_id", payload.UserID).
		Str("reviewer_id", reviewerID).
		Str("status", string(request.Status)).
		Msg("senior application reviewed")

	return dto.NewSeniorRequestResponse(request), nil
}

func (s *seniorRequestService) authorizeReviewer(ctx context.Context, reviewerID string) error {
	if reviewerID == "" {
		return ErrSeniorReviewerForbidden
	}

	reviewer, err := s.users.ResolveUser(ctx, reviewerID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrSeniorReviewerForbidden
		}
		return err
	}
	if reviewer.Role != models.RoleAdmin {
		s.logger.Warn().Str("reviewer_id", reviewerID).Str("role", string(reviewer.Role)).Msg("senior review refused for non-admin account")
		return ErrSeniorReviewerForbidden
	}
	return nil
}

func (s *seniorRequestService) readResume(file *multipart.FileHeader) ([]byte, error) {
	handle, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		return nil, err
	}
	if int64(buf.Len()) > s.maxSize {
		return nil, ErrResumeTooLarge
	}
	return buf.Bytes(), nil
}

func resumeFileName(username string) string {
	base := strings.ToLower(strings.TrimSpace(username))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = "applicant"
	}
	return base + "-resume.pdf"
}
