package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/noah-isme/campus-guidance-api/internal/models"
)

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100
)

var (
	// ErrParentNotFound indicates a reply targets a message that does not exist.
	ErrParentNotFound = errors.New("parent message not found")
	// ErrEmptyBody indicates an attempt to store a message without content.
	ErrEmptyBody = errors.New("message body must not be empty")
	// ErrCursorNotFound indicates the keyset cursor references an unknown message.
	ErrCursorNotFound = errors.New("feed cursor not found")
)

// FeedQuery selects one page of top-level messages. When Before is set the page is
// resolved by keyset on (created_at, id) and Page is ignored.
type FeedQuery struct {
	Page   int
	Limit  int
	Before string
}

// Normalize applies defaults and bounds.
func (q FeedQuery) Normalize() FeedQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = defaultFeedLimit
	}
	if q.Limit > maxFeedLimit {
		q.Limit = maxFeedLimit
	}
	q.Before = strings.TrimSpace(q.Before)
	return q
}

// GuidanceRepository is the single source of truth for guidance messages.
type GuidanceRepository interface {
	Create(ctx context.Context, message *models.GuidanceMessage) (models.GuidanceMessage, error)
	FindByID(ctx context.Context, id string) (models.GuidanceMessage, error)
	ListTopLevel(ctx context.Context, query FeedQuery) ([]models.GuidanceMessage, error)
	ListReplies(ctx context.Context, parentIDs []string) ([]models.GuidanceMessage, error)
	CountReplies(ctx context.Context, ids []string) (map[string]int64, error)
}

type guidanceRepository struct {
	db    *gorm.DB
	clock *commitClock
}

// NewGuidanceRepository constructs a GORM-backed repository.
func NewGuidanceRepository(db *gorm.DB) GuidanceRepository {
	return &guidanceRepository{db: db, clock: newCommitClock(time.Now)}
}

func (r *guidanceRepository) Create(ctx context.Context, message *models.GuidanceMessage) (models.GuidanceMessage, error) {
	if strings.TrimSpace(message.Body) == "" {
		return models.GuidanceMessage{}, ErrEmptyBody
	}

	var created models.GuidanceMessage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if message.IsReply() {
			var parents int64
			if err := tx.Model(&models.GuidanceMessage{}).Where("id = ?", *message.ParentID).Count(&parents).Error; err != nil {
				return err
			}
			if parents == 0 {
				return ErrParentNotFound
			}
		} else {
			message.ParentID = nil
		}

		message.ID = uuid.NewString()
		message.CreatedAt = r.clock.Next()

		if err := tx.Omit("Sender", "Parent").Create(message).Error; err != nil {
			return err
		}

		return tx.Preload("Sender").Preload("Parent.Sender").First(&created, "id = ?", message.ID).Error
	})
	if err != nil {
		return models.GuidanceMessage{}, err
	}

	return created, nil
}

func (r *guidanceRepository) FindByID(ctx context.Context, id string) (models.GuidanceMessage, error) {
	var message models.GuidanceMessage
	if err := r.db.WithContext(ctx).First(&message, "id = ?", id).Error; err != nil {
		return models.GuidanceMessage{}, err
	}
	return message, nil
}

func (r *guidanceRepository) ListTopLevel(ctx context.Context, query FeedQuery) ([]models.GuidanceMessage, error) {
	query = query.Normalize()

	stmt := r.db.WithContext(ctx).
		Preload("Sender").
		Where("parent_id IS NULL")

	if query.Before != "" {
		var cursor models.GuidanceMessage
		if err := r.db.WithContext(ctx).Select("id", "created_at").First(&cursor, "id = ?", query.Before).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrCursorNotFound
			}
			return nil, err
		}
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	} else {
		stmt = stmt.Offset((query.Page - 1) * query.Limit)
	}

	var messages []models.GuidanceMessage
	if err := stmt.
		Order("created_at DESC").
		Order("id DESC").
		Limit(query.Limit).
		Find(&messages).Error; err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *guidanceRepository) ListReplies(ctx context.Context, parentIDs []string) ([]models.GuidanceMessage, error) {
	if len(parentIDs) == 0 {
		return []models.GuidanceMessage{}, nil
	}

	var replies []models.GuidanceMessage
	if err := r.db.WithContext(ctx).
		Preload("Sender").
		Where("parent_id IN ?", parentIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&replies).Error; err != nil {
		return nil, err
	}

	return replies, nil
}

func (r *guidanceRepository) CountReplies(ctx context.Context, ids []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	type row struct {
		ParentID string
		Total    int64
	}

	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&models.GuidanceMessage{}).
		Select("parent_id, COUNT(*) AS total").
		Where("parent_id IN ?", ids).
		Group("parent_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, item := range rows {
		counts[item.ParentID] = item.Total
	}

	return counts, nil
}

// commitClock hands out strictly increasing microsecond timestamps so that created_at
// reflects commit order within this process even when the wall clock stalls.
type commitClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newCommitClock(now func() time.Time) *commitClock {
	return &commitClock{now: now}
}

func (c *commitClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.now().UTC().Truncate(time.Microsecond)
	if !next.After(c.last) {
		next = c.last.Add(time.Microsecond)
	}
	c.last = next
	return next
}
