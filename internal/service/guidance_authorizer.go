package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/campus-guidance-api/internal/models"
	"github.com/noah-isme/campus-guidance-api/internal/repository"
)

// UserResolver returns the current account for an identity. Role is read fresh on every call.
type UserResolver interface {
	ResolveUser(ctx context.Context, id string) (models.User, error)
}

// MessageLookup finds a single stored message by id.
type MessageLookup interface {
	FindByID(ctx context.Context, id string) (models.GuidanceMessage, error)
}

// GuidanceAuthorizer decides whether a sender may post or reply.
type GuidanceAuthorizer interface {
	AuthorizePost(ctx context.Context, senderID string) (models.User, error)
	AuthorizeReply(ctx context.Context, sender models.User, parentID string) (models.GuidanceMessage, error)
}

type repositoryUserResolver struct {
	users repository.UserRepository
}

// NewUserResolver adapts the user repository into a UserResolver.
func NewUserResolver(users repository.UserRepository) UserResolver {
	return &repositoryUserResolver{users: users}
}

func (r *repositoryUserResolver) ResolveUser(ctx context.Context, id string) (models.User, error) {
	user, err := r.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("resolve user: %w", err)
	}
	return user, nil
}

type guidanceAuthorizer struct {
	users    UserResolver
	messages MessageLookup
}

// NewGuidanceAuthorizer constructs the authorization gate.
func NewGuidanceAuthorizer(users UserResolver, messages MessageLookup) GuidanceAuthorizer {
	return &guidanceAuthorizer{users: users, messages: messages}
}

func (a *guidanceAuthorizer) AuthorizePost(ctx context.Context, senderID string) (models.User, error) {
	if senderID == "" {
		return models.User{}, ErrUserNotFound
	}
	return a.users.ResolveUser(ctx, senderID)
}

// AuthorizeReply checks role first, then the existence and depth of the target.
func (a *guidanceAuthorizer) AuthorizeReply(ctx context.Context, sender models.User, parentID string) (models.GuidanceMessage, error) {
	if !sender.Role.CanReply() {
		return models.GuidanceMessage{}, ErrReplyForbidden
	}

	parent, err := a.messages.FindByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.GuidanceMessage{}, ErrParentNotFound
		}
		return models.GuidanceMessage{}, fmt.Errorf("%w: load reply target: %v", ErrStorageFailure, err)
	}

	if parent.IsReply() {
		return models.GuidanceMessage{}, ErrReplyDepthExceeded
	}

	return parent, nil
}
