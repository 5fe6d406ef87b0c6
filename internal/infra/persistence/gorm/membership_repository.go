package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/repository"
)

// GormMembershipRepository is the GORM implementation of MembershipRepository.
type GormMembershipRepository struct {
	db *gorm.DB
}

// NewGormMembershipRepository creates a GormMembershipRepository.
func NewGormMembershipRepository(db *gorm.DB) *GormMembershipRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMembershipRepository")
	}
	return &GormMembershipRepository{db: db}
}

func (r *GormMembershipRepository) first(ctx context.Context, what string, query interface{}, args ...interface{}) (*domain.Membership, error) {
	var m domain.Membership
	err := r.db.WithContext(ctx).Where(query, args...).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("gorm: find membership by %s: %w", what, err)
	}
	return &m, nil
}

func (r *GormMembershipRepository) FindByIdentity(ctx context.Context, identityID uint64) (*domain.Membership, error) {
	return r.first(ctx, "identity", "identity_id = ?", identityID)
}

func (r *GormMembershipRepository) FindBySession(ctx context.Context, sessionID string) (*domain.Membership, error) {
	return r.first(ctx, "session", "session_id = ?", sessionID)
}

func (r *GormMembershipRepository) ExistsByIdentity(ctx context.Context, identityID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Membership{}).
		Where("identity_id = ?", identityID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: check membership for identity %d: %w", identityID, err)
	}
	return count > 0, nil
}

func (r *GormMembershipRepository) ListByRoom(ctx context.Context, roomID uint) ([]domain.Membership, error) {
	var list []domain.Membership
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list memberships of room %d: %w", roomID, err)
	}
	return list, nil
}

func (r *GormMembershipRepository) CountByRoom(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Membership{}).
		Where("room_id = ?", roomID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count memberships of room %d: %w", roomID, err)
	}
	return count, nil
}

func (r *GormMembershipRepository) Save(ctx context.Context, membership *domain.Membership) error {
	if err := r.db.WithContext(ctx).Save(membership).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save membership (id: %d, identity: %d): %w", membership.ID, membership.IdentityID, err)
	}
	return nil
}

func (r *GormMembershipRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&domain.Membership{}, id).Error; err != nil {
		return fmt.Errorf("gorm: delete membership %d: %w", id, err)
	}
	return nil
}
