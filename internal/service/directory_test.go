package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketch-lobby/internal/service"
)

func TestRoomDirectory_List(t *testing.T) {
	f := newCoordinatorFixture(t)
	directory := service.NewRoomDirectory(f.store.Rooms())
	for i := 1; i <= 5; i++ {
		f.createRoomWith(t, member(uint64(i), fmt.Sprintf("host%d", i)))
	}
	first, _, err := f.store.Rooms().ListWithOccupants(context.Background(), 0, 1)
	require.NoError(t, err)
	require.NoError(t, f.coordinator.EnterRoom(context.Background(), guest(1, "g"), first[0].ID))

	page0, err := directory.List(context.Background(), service.ListRoomsQuery{Page: 0, Size: 2})
	require.NoError(t, err)
	page2, err := directory.List(context.Background(), service.ListRoomsQuery{Page: 2, Size: 2})
	require.NoError(t, err)
	beyond, err := directory.List(context.Background(), service.ListRoomsQuery{Page: 9, Size: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, page0.TotalPages)
	assert.Equal(t, int64(5), page0.TotalRooms)
	require.Len(t, page0.Rooms, 2)
	assert.Less(t, page0.Rooms[0].ID, page0.Rooms[1].ID, "pages are ordered by id")
	assert.Equal(t, int64(2), page0.Rooms[0].Occupants)
	assert.Equal(t, int64(1), page0.Rooms[1].Occupants)
	assert.Len(t, page2.Rooms, 1)
	assert.NotNil(t, beyond.Rooms)
	assert.Empty(t, beyond.Rooms)
}

func TestRoomDirectory_List_Empty(t *testing.T) {
	f := newCoordinatorFixture(t)
	page, err := service.NewRoomDirectory(f.store.Rooms()).List(context.Background(), service.ListRoomsQuery{Page: 0, Size: 10})
	require.NoError(t, err)
	assert.Zero(t, page.TotalPages)
	assert.Empty(t, page.Rooms)
}

func TestRoomDirectory_List_InvalidQuery(t *testing.T) {
	f := newCoordinatorFixture(t)
	directory := service.NewRoomDirectory(f.store.Rooms())
	for _, q := range []service.ListRoomsQuery{{Page: -1, Size: 10}, {Page: 0, Size: 0}, {Page: 0, Size: -3}, {Page: 0, Size: service.MaxPageSize + 1}} {
		_, err := directory.List(context.Background(), q)
		assert.ErrorIs(t, err, service.ErrInvalidRequest, "%+v", q)
	}
}
