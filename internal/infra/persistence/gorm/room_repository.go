package gormpersistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/repository"
)

// GormRoomRepository is the GORM implementation of RoomRepository.
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a GormRoomRepository.
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

func (r *GormRoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).First(&room, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %d: %w", id, err)
	}
	return &room, nil
}

// FindByIDForUpdate issues SELECT ... FOR UPDATE so concurrent enters and
// exits on the same room queue behind each other.
func (r *GormRoomRepository) FindByIDForUpdate(ctx context.Context, id uint) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&room, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("gorm: lock room %d: %w", id, err)
	}
	return &room, nil
}

func (r *GormRoomRepository) Save(ctx context.Context, room *domain.Room) error {
	if err := r.db.WithContext(ctx).Save(room).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save room (id: %d): %w", room.ID, err)
	}
	return nil
}

func (r *GormRoomRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&domain.Room{}, id).Error; err != nil {
		return fmt.Errorf("gorm: delete room %d: %w", id, err)
	}
	return nil
}

// ListWithOccupants reads the page and the total inside one read-only
// transaction so both come from the same snapshot.
func (r *GormRoomRepository) ListWithOccupants(ctx context.Context, offset, limit int) ([]domain.RoomSummary, int64, error) {
	var (
		page  []domain.RoomSummary
		total int64
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Room{}).Count(&total).Error; err != nil {
			return err
		}
		return tx.Table("rooms").
			Select("rooms.*, COUNT(memberships.id) AS occupants").
			Joins("LEFT JOIN memberships ON memberships.room_id = rooms.id").
			Group("rooms.id").
			Order("rooms.id ASC").
			Offset(offset).
			Limit(limit).
			Scan(&page).Error
	}, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, 0, fmt.Errorf("gorm: list rooms (offset %d, limit %d): %w", offset, limit, err)
	}
	return page, total, nil
}

func (r *GormRoomRepository) FindFlagged(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.WithContext(ctx).
		Where("needs_attention = ?", true).
		Order("id ASC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find flagged rooms: %w", err)
	}
	return rooms, nil
}
