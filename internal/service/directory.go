package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/repository"
)

// MaxPageSize caps RoomDirectory pages.
const MaxPageSize = 100

// ListRoomsQuery selects one zero-based page.
type ListRoomsQuery struct {
	Page int `validate:"gte=0"`
	Size int `validate:"gt=0,lte=100"`
}

// RoomPage is one page of the directory.
type RoomPage struct {
	Rooms      []domain.RoomSummary
	Page       int
	Size       int
	TotalRooms int64
	TotalPages int
}

// RoomDirectory lists rooms with their live occupant counts.
type RoomDirectory struct {
	rooms    repository.RoomRepository
	validate *validator.Validate
}

// NewRoomDirectory creates a RoomDirectory.
func NewRoomDirectory(rooms repository.RoomRepository) *RoomDirectory {
	if rooms == nil {
		panic("RoomRepository cannot be nil for RoomDirectory")
	}
	return &RoomDirectory{rooms: rooms, validate: validator.New()}
}

// List returns the requested page ordered by room id.
func (d *RoomDirectory) List(ctx context.Context, q ListRoomsQuery) (*RoomPage, error) {
	logCtx := logrus.WithFields(logrus.Fields{"page": q.Page, "size": q.Size})
	if err := d.validate.Struct(q); err != nil {
		return nil, fmt.Errorf("%w: page must be >= 0 and size within 1-%d", ErrInvalidRequest, MaxPageSize)
	}

	rooms, total, err := d.rooms.ListWithOccupants(ctx, q.Page*q.Size, q.Size)
	if err != nil {
		return nil, internalError(logCtx, "ListRooms", err)
	}
	if rooms == nil {
		rooms = []domain.RoomSummary{}
	}

	return &RoomPage{
		Rooms:      rooms,
		Page:       q.Page,
		Size:       q.Size,
		TotalRooms: total,
		TotalPages: int((total + int64(q.Size) - 1) / int64(q.Size)),
	}, nil
}
