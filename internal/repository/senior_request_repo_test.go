package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/campus-guidance-api/internal/models"
)

func TestSeniorRequestRepositorySubmitAndApprovePromotesUser(t *testing.T) {
	db := setupGuidanceTestDB(t)
	repo := NewSeniorRequestRepository(db)
	users := NewUserRepository(db)
	ctx := context.Background()

	student := seedUser(t, db, "applicant", models.RoleStudent)
	admin := seedUser(t, db, "admin", models.RoleAdmin)

	request := models.SeniorRequest{
		UserID:     student.ID,
		Experience: "Two years of tutoring data structures",
		ResumeURL:  "https://cdn.example.com/resume.pdf",
		Metadata:   datatypes.JSONMap{"mime": "application/pdf"},
	}
	require.NoError(t, repo.Submit(ctx, &request))
	require.Equal(t, models.SeniorStatusPending, request.Status)

	stored, err := users.GetByID(ctx, student.ID)
	require.NoError(t, err)
	require.Equal(t, models.SeniorStatusPending, stored.SeniorApplicationStatus)
	require.Equal(t, models.RoleStudent, stored.Role)

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "applicant", pending[0].User.Username)

	reviewed, err := repo.Review(ctx, student.ID, admin.ID, true, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, models.SeniorStatusApproved, reviewed.Status)

	promoted, err := users.GetByID(ctx, student.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleSenior, promoted.Role)
	require.Equal(t, models.SeniorStatusApproved, promoted.SeniorApplicationStatus)

	pending, err = repo.ListPending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestSeniorRequestRepositoryRejectsDuplicateSubmission(t *testing.T) {
	db := setupGuidanceTestDB(t)
	repo := NewSeniorRequestRepository(db)
	ctx := context.Background()

	student := seedUser(t, db, "eager", models.RoleStudent)

	first := models.SeniorRequest{UserID: student.ID, Experience: "Mentored first years", ResumeURL: "https://cdn.example.com/a.pdf"}
	require.NoError(t, repo.Submit(ctx, &first))

	second := models.SeniorRequest{UserID: student.ID, Experience: "Mentored first years", ResumeURL: "https://cdn.example.com/b.pdf"}
	require.ErrorIs(t, repo.Submit(ctx, &second), ErrSeniorRequestExists)
}

func TestSeniorRequestRepositoryRejectKeepsRole(t *testing.T) {
	db := setupGuidanceTestDB(t)
	repo := NewSeniorRequestRepository(db)
	users := NewUserRepository(db)
	ctx := context.Background()

	student := seedUser(t, db, "declined", models.RoleStudent)
	admin := seedUser(t, db, "reviewer", models.RoleAdmin)

	request := models.SeniorRequest{UserID: student.ID, Experience: "Lab assistant", ResumeURL: "https://cdn.example.com/c.pdf"}
	require.NoError(t, repo.Submit(ctx, &request))

	_, err := repo.Review(ctx, student.ID, admin.ID, false, time.Now().UTC())
	require.NoError(t, err)

	stored, err := users.GetByID(ctx, student.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, stored.Role)
	require.Equal(t, models.SeniorStatusRejected, stored.SeniorApplicationStatus)

	_, err = repo.Review(ctx, student.ID, admin.ID, true, time.Now().UTC())
	require.ErrorIs(t, err, ErrSeniorRequestNotPending)
}
