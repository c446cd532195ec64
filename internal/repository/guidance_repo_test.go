package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/campus-guidance-api/internal/models"
)

func TestGuidanceRepositoryCreateTopLevelAndReply(t *testing.T) {
	db := setupGuidanceTestDB(t)
	repo := NewGuidanceRepository(db)
	ctx := context.Background()

	student := seedUser(t, db, "s1", models.RoleStudent)
	senior := seedUser(t, db, "s2", models.RoleSenior)

	question, err := repo.Create(ctx, &models.GuidanceMessage{SenderID: student.ID, Body: "What courses are best?"})
	require.NoError(t, err)
	require.NotEmpty(t, question.ID)
	require.Nil(t, question.ParentID)
	require.Equal(t, "s1", question.Sender.Username)
	require.Nil(t, question.Parent)

	parentID := question.ID
	reply, err := repo.Create(ctx, &models.GuidanceMessage{SenderID: senior.ID, Body: "Take CST-501", ParentID: &parentID})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	require.Equal(t, question.ID, *reply.ParentID)
	require.NotNil(t, reply.Parent)
	require.Equal(t, "What courses are best?", reply.Parent.Body)
	require.Equal(t, "s1", reply.Parent.Sender.Username)
	require.True(t, reply.CreatedAt.After(question.CreatedAt))

	counts, err := repo.CountReplies(ctx, []string{question.ID, reply.ID})
	require.NoError(t, err)
	require.Equal(t, int64(1), counts[question.ID])
	require.Equal(t, int64(0), counts[reply.ID])
}

func TestGuidanceRepositoryCreateRejectsMissingParent(t *testing.T) {
	db := setupGuidanceTestDB(t)
	repo := NewGuidanceRepository(db)

	senior := seedUser(t, db, "senior", models.RoleSenior)
	missing := uuid.NewString()

	_, err := repo.Create(context.Background(), &models.GuidanceMessage{SenderID: senior.ID, Body: "hello", ParentID: &missing})
	require.ErrorIs(t, err, ErrParentNotFound)

	var total int64
	require.NoError(t, db.Model(&models.GuidanceMessage{}).Count(&total).Error)
	require.Zero(t, total)
}

func TestGuidanceRepositoryCreateRejectsEmptyBody(t *testing.T) {
	db := setupGuidanceTestDB(t)
	repo := NewGuidanceRepository(db)

	user := seedUser(t, db, "empty", models.RoleStudent)

	_, err := repo.Create(context.Background(), &models.GuidanceMessage{SenderID: user.ID, Body: "   "})
	require.ErrorIs(t, err, ErrEmptyBody)
}

func TestGuidanceRepositoryListTopLevelOrdersAndPaginates(t *testing.T) {
	db := setupGuidanceTestDB(t)
	repo := NewGuidanceRepository(db)
	ctx := context.Background()

	student := seedUser(t, db, "asker", models.RoleStudent)
	senior := seedUser(t, db, "mentor", models.RoleSenior)

	var topLevel []models.GuidanceMessage
	for i := 0; i < 5; i++ {
		msg, err := repo.Create(ctx, &models.GuidanceMessage{SenderID: student.ID, Body: fmt.Sprintf("question %d", i)})
		require.NoError(t, err)
		topLevel = append(topLevel, msg)
	}
	parentID := topLevel[0].ID
	_, err := repo.Create(ctx, &models.GuidanceMessage{SenderID: senior.ID, Body: "answer", ParentID: &parentID})
	require.NoError(t, err)

	first, err := repo.ListTopLevel(ctx, FeedQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, "question 4", first[0].Body)
	require.Equal(t, "question 3", first[1].Body)
	require.Equal(t, "asker", first[0].Sender.Username)

	last, err := repo.ListTopLevel(ctx, FeedQuery{Page: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, last, 1, "replies must not appear in the top-level feed")
	require.Equal(t, "question 0", last[0].Body)

	beyond, err := repo.ListTopLevel(ctx, FeedQuery{Page: 10, Limit: 2})
	require.NoError(t, err)
	require.Empty(t, beyond)

	again, err := repo.ListTopLevel(ctx, FeedQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, ids(first), ids(again))
}

func TestGuidanceRepositoryListTopLevelKeyset(t *testing.T) {
	db := setupGuidanceTestDB(t)
	repo := NewGuidanceRepository(db)
	ctx := context.Background()

	student := seedUser(t, db, "cursor", models.RoleStudent)
	for i := 0; i < 4; i++ {
		_, err := repo.Create(ctx, &models.GuidanceMessage{SenderID: student.ID, Body: fmt.Sprintf("q%d", i)})
		require.NoError(t, err)
	}

	first, err := repo.ListTopLevel(ctx, FeedQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)

	// A newer insert must not shift the cursor page.
	_, err = repo.Create(ctx, &models.GuidanceMessage{SenderID: student.ID, Body: "late arrival"})
	require.NoError(t, err)

	next, err := repo.ListTopLevel(ctx, FeedQuery{Limit: 2, Before: first[1].ID})
	require.NoError(t, err)
	require.Len(t, next, 2)
	require.Equal(t, "q1", next[0].Body)
	require.Equal(t, "q0", next[1].Body)

	_, err = repo.ListTopLevel(ctx, FeedQuery{Limit: 2, Before: uuid.NewString()})
	require.ErrorIs(t, err, ErrCursorNotFound)
}

func TestGuidanceRepositoryListRepliesOldestFirst(t *testing.T) {
	db := setupGuidanceTestDB(t)
	repo := NewGuidanceRepository(db)
	ctx := context.Background()

	student := seedUser(t, db, "threadstarter", models.RoleStudent)
	senior := seedUser(t, db, "helper", models.RoleSenior)

	root, err := repo.Create(ctx, &models.GuidanceMessage{SenderID: student.ID, Body: "root"})
	require.NoError(t, err)
	rootID := root.ID
	for _, body := range []string{"first", "second", "third"} {
		_, err := repo.Create(ctx, &models.GuidanceMessage{SenderID: senior.ID, Body: body, ParentID: &rootID})
		require.NoError(t, err)
	}

	replies, err := repo.ListReplies(ctx, []string{root.ID})
	require.NoError(t, err)
	require.Len(t, replies, 3)
	require.Equal(t, "first", replies[0].Body)
	require.Equal(t, "third", replies[2].Body)
	require.Equal(t, "helper", replies[1].Sender.Username)

	empty, err := repo.ListReplies(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestCommitClockIsStrictlyIncreasing(t *testing.T) {
	frozen := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := newCommitClock(func() time.Time { return frozen })

	first := clock.Next()
	second := clock.Next()
	third := clock.Next()

	require.Equal(t, frozen, first)
	require.True(t, second.After(first))
	require.True(t, third.After(second))
	require.Equal(t, time.Microsecond, third.Sub(second))
}

func TestFeedQueryNormalize(t *testing.T) {
	q := FeedQuery{}.Normalize()
	require.Equal(t, 1, q.Page)
	require.Equal(t, 20, q.Limit)

	q = FeedQuery{Page: 3, Limit: 500}.Normalize()
	require.Equal(t, 3, q.Page)
	require.Equal(t, 100, q.Limit)
}

func setupGuidanceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.GuidanceMessage{}, &models.SeniorRequest{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string, role models.Role) models.User {
	t.Helper()
	user := models.User{
		ID:                      uuid.NewString(),
		Username:                username,
		Email:                   username + "@campus.test",
		Role:                    role,
		SeniorApplicationStatus: models.SeniorStatusNotApplied,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func ids(messages []models.GuidanceMessage) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}
