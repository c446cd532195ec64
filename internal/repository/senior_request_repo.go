package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/campus-guidance-api/internal/models"
)

var (
	// ErrSeniorRequestExists indicates the user already has a pending or approved application.
	ErrSeniorRequestExists = errors.New("senior request already submitted")
	// ErrSeniorRequestNotPending indicates the application cannot be reviewed in its current state.
	ErrSeniorRequestNotPending = errors.New("senior request not found or not pending")
)

// SeniorRequestRepository persists senior applications and applies review decisions.
type SeniorRequestRepository interface {
	Submit(ctx context.Context, request *models.SeniorRequest) error
	ListPending(ctx context.Context) ([]models.SeniorRequest, error)
	Review(ctx context.Context, userID, reviewerID string, approve bool, at time.Time) (models.SeniorRequest, error)
}

type seniorRequestRepository struct {
	db *gorm.DB
}

// NewSeniorRequestRepository constructs a GORM-backed repository.
func NewSeniorRequestRepository(db *gorm.DB) SeniorRequestRepository {
	return &seniorRequestRepository{db: db}
}

func (r *seniorRequestRepository) Submit(ctx context.Context, request *models.SeniorRequest) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", request.UserID).Error; err != nil {
			return err
		}

		if user.SeniorApplicationStatus == models.SeniorStatusPending || user.SeniorApplicationStatus == models.SeniorStatusApproved {
			return ErrSeniorRequestExists
		}

		request.Status = models.SeniorStatusPending
		if err := tx.Omit("User").Create(request).Error; err != nil {
			return err
		}

		return tx.Model(&models.User{}).
			Where("id = ?", request.UserID).
			Update("senior_application_status", models.SeniorStatusPending).
			Error
	})
}

func (r *seniorRequestRepository) ListPending(ctx context.Context) ([]models.SeniorRequest, error) {
	var requests []models.SeniorRequest
	if err := r.db.WithContext(ctx).
		Preload("User").
		Where("status = ?", models.SeniorStatusPending).
		Order("created_at ASC").
		Find(&requests).Error; err != nil {
		return nil, err
	}

	return requests, nil
}

// Review records the decision and, on approval, promotes the user to SENIOR in the same transaction.
func (r *seniorRequestRepository) Review(ctx context.Context, userID, reviewerID string, approve bool, at time.Time) (models.SeniorRequest, error) {
	var request models.SeniorRequest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND status = ?", userID, models.SeniorStatusPending).
			Order("created_at DESC").
			First(&request).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSeniorRequestNotPending
			}
			return err
		}

		status := models.SeniorStatusRejected
		if approve {
			status = models.SeniorStatusApproved
		}

		reviewer := reviewerID
		request.Status = status
		request.ReviewedBy = &reviewer
		request.ReviewedAt = &at

		if err := tx.Model(&models.SeniorRequest{}).
			Where("id = ?", request.ID).
			Updates(map[string]interface{}{
				"status":      status,
				"reviewed_by": reviewerID,
				"reviewed_at": at,
			}).Error; err != nil {
			return err
		}

		userUpdates := map[string]interface{}{"senior_application_status": status}
		if approve {
			userUpdates["role"] = models.RoleSenior
		}

		return tx.Model(&models.User{}).Where("id = ?", userID).Updates(userUpdates).Error
	})
	if err != nil {
		return models.SeniorRequest{}, err
	}

	return request, nil
}
