package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/repository"
)

func TestStore_TransactionRollback(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	room := &domain.Room{Title: "keep", HostID: 1}
	require.NoError(t, s.Rooms().Save(ctx, room))
	require.NoError(t, s.Memberships().Save(ctx, &domain.Membership{RoomID: room.ID, IdentityID: 1}))

	boom := errors.New("boom")
	err := s.WithinTransaction(ctx, func(ctx context.Context, tx repository.Store) error {
		m, err := tx.Memberships().FindByIdentity(ctx, 1)
		require.NoError(t, err)
		require.NoError(t, tx.Memberships().Delete(ctx, m.ID))
		require.NoError(t, tx.Rooms().Delete(ctx, room.ID))
		require.NoError(t, tx.Rooms().Save(ctx, &domain.Room{Title: "new"}))
		return boom
	})

	require.ErrorIs(t, err, boom)
	got, err := s.Rooms().FindByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep", got.Title)
	n, _ := s.Memberships().CountByRoom(ctx, room.ID)
	assert.Equal(t, int64(1), n)
	_, total, _ := s.Rooms().ListWithOccupants(ctx, 0, 10)
	assert.Equal(t, int64(1), total)
}

func TestStore_MembershipIdentityIsUnique(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Memberships().Save(ctx, &domain.Membership{RoomID: 1, IdentityID: 5}))

	err := s.Memberships().Save(ctx, &domain.Membership{RoomID: 2, IdentityID: 5})

	assert.ErrorIs(t, err, repository.ErrDuplicateEntry)
}

func TestStore_ReturnedRecordsAreCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	sid := "conn"
	m := &domain.Membership{RoomID: 1, IdentityID: 5, SessionID: &sid}
	require.NoError(t, s.Memberships().Save(ctx, m))

	sid = "mutated"
	found, err := s.Memberships().FindBySession(ctx, "conn")
	require.NoError(t, err)
	*found.SessionID = "changed"

	again, err := s.Memberships().FindByIdentity(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "conn", *again.SessionID)
}

func TestStore_ListByRoomInJoinOrder(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for _, id := range []uint64{30, 10, 20} {
		require.NoError(t, s.Memberships().Save(ctx, &domain.Membership{RoomID: 1, IdentityID: id}))
	}
	require.NoError(t, s.Memberships().Save(ctx, &domain.Membership{RoomID: 2, IdentityID: 40}))

	list, err := s.Memberships().ListByRoom(ctx, 1)

	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uint64{30, 10, 20}, []uint64{list[0].IdentityID, list[1].IdentityID, list[2].IdentityID})
}

func TestStore_FindFlagged(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Rooms().Save(ctx, &domain.Room{Title: "ok", HostID: 1}))
	bad := &domain.Room{Title: "bad"}
	bad.MarkHostless()
	require.NoError(t, s.Rooms().Save(ctx, bad))

	flagged, err := s.Rooms().FindFlagged(ctx)

	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, bad.ID, flagged[0].ID)
}

func TestStore_Users(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Users().Save(ctx, &domain.User{Email: "a@b.c", Nickname: "a"}))
	err := s.Users().Save(ctx, &domain.User{Email: "a@b.c", Nickname: "b"})
	assert.ErrorIs(t, err, repository.ErrDuplicateEntry)
	_, err = s.Users().FindByEmail(ctx, "x@y.z")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_UserLookupInsideTransaction(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	u := &domain.User{Email: "host@b.c", Nickname: "host"}
	require.NoError(t, s.Users().Save(ctx, u))

	done := make(chan error, 1)
	go func() {
		done <- s.WithinTransaction(ctx, func(ctx context.Context, tx repository.Store) error {
			found, err := s.Users().FindByID(ctx, u.ID)
			if err != nil {
				return err
			}
			if found.Nickname != "host" {
				return errors.New("unexpected nickname " + found.Nickname)
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("user lookup blocked on the transaction lock")
	}
}
