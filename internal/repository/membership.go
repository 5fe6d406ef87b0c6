package repository

import (
	"context"

	"sketch-lobby/internal/domain"
)

// MembershipRepository stores room memberships.
type MembershipRepository interface {
	FindByIdentity(ctx context.Context, identityID uint64) (*domain.Membership, error)
	FindBySession(ctx context.Context, sessionID string) (*domain.Membership, error)
	ExistsByIdentity(ctx context.Context, identityID uint64) (bool, error)
	// ListByRoom returns the room's memberships in join order (ascending id).
	ListByRoom(ctx context.Context, roomID uint) ([]domain.Membership, error)
	CountByRoom(ctx context.Context, roomID uint) (int64, error)
	// Save inserts or updates; ErrDuplicateEntry when the identity already
	// holds another membership.
	Save(ctx context.Context, membership *domain.Membership) error
	Delete(ctx context.Context, id uint) error
}
