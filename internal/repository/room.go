package repository

import (
	"context"

	"sketch-lobby/internal/domain"
)

// RoomRepository stores rooms.
type RoomRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.Room, error)
	// FindByIDForUpdate loads the room and holds it for the rest of the
	// surrounding transaction. Outside a transaction it behaves like FindByID.
	FindByIDForUpdate(ctx context.Context, id uint) (*domain.Room, error)
	// Save inserts a room with a zero ID, otherwise updates it.
	Save(ctx context.Context, room *domain.Room) error
	Delete(ctx context.Context, id uint) error
	// ListWithOccupants returns one page ordered by room id and the total
	// number of rooms.
	ListWithOccupants(ctx context.Context, offset, limit int) ([]domain.RoomSummary, int64, error)
	// FindFlagged returns rooms left host-less by a failed succession.
	FindFlagged(ctx context.Context) ([]domain.Room, error)
}
