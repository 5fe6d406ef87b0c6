package gormpersistence

import (
	"context"

	"gorm.io/gorm"

	"sketch-lobby/internal/repository"
)

// GormStore hands out repositories bound to one *gorm.DB, which is either the
// pool or an open transaction.
type GormStore struct {
	db *gorm.DB
}

var _ repository.TxStore = (*GormStore)(nil)

// NewGormStore creates a GormStore on top of the connection pool.
func NewGormStore(db *gorm.DB) *GormStore {
	if db == nil {
		panic("database connection cannot be nil for GormStore")
	}
	return &GormStore{db: db}
}

func (s *GormStore) Rooms() repository.RoomRepository { return NewGormRoomRepository(s.db) }

func (s *GormStore) Memberships() repository.MembershipRepository {
	return NewGormMembershipRepository(s.db)
}

// WithinTransaction opens a database transaction; fn's Store shares it.
func (s *GormStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &GormStore{db: tx})
	})
}
