package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/infra/persistence/memory"
	"sketch-lobby/internal/lock"
	"sketch-lobby/internal/repository/mocks"
	"sketch-lobby/internal/service"
)

func member(id uint64, nick string) domain.Identity {
	return domain.Identity{ID: id, Nickname: nick, Kind: domain.KindMember}
}

func guest(seq uint64, nick string) domain.Identity {
	return domain.Identity{ID: domain.GuestIDBase + seq, Nickname: nick, Kind: domain.KindGuest}
}

type recordedExits struct {
	mu      sync.Mutex
	results []service.ExitResult
}

func (r *recordedExits) MemberLeft(_ context.Context, result service.ExitResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

type coordinatorFixture struct {
	store       *memory.Store
	lookup      *mocks.IdentityLookup
	coordinator *service.RoomCoordinator
	events      *recordedExits
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	store := memory.NewStore()
	lookup := new(mocks.IdentityLookup)
	events := &recordedExits{}
	policy := service.NewHostSuccessionPolicy(lookup)
	return &coordinatorFixture{
		store:       store,
		lookup:      lookup,
		coordinator: service.NewRoomCoordinator(store, policy, lock.NewKeyed(), events, time.Second),
		events:      events,
	}
}

// createRoomWith creates a room hosted by host and lets everyone else in.
func (f *coordinatorFixture) createRoomWith(t *testing.T, host domain.Identity, others ...domain.Identity) *domain.Room {
	t.Helper()
	ctx := context.Background()
	room, err := f.coordinator.CreateRoom(ctx, host, "doodle night")
	require.NoError(t, err)
	for _, o := range others {
		require.NoError(t, f.coordinator.EnterRoom(ctx, o, room.ID))
	}
	return room
}

func (f *coordinatorFixture) bindSession(t *testing.T, identityID uint64, sessionID string) {
	t.Helper()
	ctx := context.Background()
	m, err := f.store.Memberships().FindByIdentity(ctx, identityID)
	require.NoError(t, err)
	m.SessionID = &sessionID
	require.NoError(t, f.store.Memberships().Save(ctx, m))
}

func (f *coordinatorFixture) count(t *testing.T, roomID uint) int64 {
	t.Helper()
	n, err := f.store.Memberships().CountByRoom(context.Background(), roomID)
	require.NoError(t, err)
	return n
}

// newResolvingFixture wires the real IdentityResolver: members come from the
// memory store's accounts and guests from a mocked guest repository.
func newResolvingFixture(t *testing.T) (*coordinatorFixture, *mocks.GuestRepository) {
	t.Helper()
	store := memory.NewStore()
	guests := new(mocks.GuestRepository)
	auth, err := service.NewAuthService(store.Users(), "test-secret", time.Hour, time.Minute)
	require.NoError(t, err)
	resolver := service.NewIdentityResolver(auth, store.Users(), guests)
	events := &recordedExits{}
	policy := service.NewHostSuccessionPolicy(resolver)
	return &coordinatorFixture{
		store:       store,
		coordinator: service.NewRoomCoordinator(store, policy, lock.NewKeyed(), events, time.Second),
		events:      events,
	}, guests
}

func (f *coordinatorFixture) saveMember(t *testing.T, email, nick string) domain.Identity {
	t.Helper()
	user := &domain.User{Email: email, Nickname: nick, Password: "x"}
	require.NoError(t, f.store.Users().Save(context.Background(), user))
	return user.Identity()
}

// within fails the test when fn does not return in time, so a lock cycle
// shows up as a failure instead of a hung run.
func within(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("operation did not finish within %s", d)
	}
}
