package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/lock"
	"sketch-lobby/internal/service"
)

type sessionFixture struct {
	*coordinatorFixture
	auth       *service.AuthService
	correlator *service.SessionCorrelator
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := newCoordinatorFixture(t)
	auth, err := service.NewAuthService(f.store.Users(), "test-secret", time.Hour, time.Minute)
	require.NoError(t, err)
	return &sessionFixture{
		coordinatorFixture: f,
		auth:               auth,
		correlator:         service.NewSessionCorrelator(f.store, f.store.Users(), auth, lock.NewKeyed(), time.Second),
	}
}

func (f *sessionFixture) registerMember(t *testing.T, nick string) domain.Identity {
	t.Helper()
	user, err := f.auth.Register(context.Background(), nick+"@example.com", nick, "password123")
	require.NoError(t, err)
	return user.Identity()
}

func TestSessionCorrelator_BindAndListOthers(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	alice, bob, carol := f.registerMember(t, "alice"), f.registerMember(t, "bob"), f.registerMember(t, "carol")
	room := f.createRoomWith(t, alice, bob, carol, guest(1, "unbound"))

	for _, p := range []struct {
		who  domain.Identity
		conn string
	}{{alice, "c-alice"}, {bob, "c-bob"}} {
		token, err := f.correlator.IssueSocketToken(ctx, p.who, room.ID)
		require.NoError(t, err)
		bound, err := f.correlator.BindSession(ctx, room.ID, token, p.conn)
		require.NoError(t, err)
		assert.Equal(t, p.who.ID, bound.ID)
	}

	others, err := f.correlator.ListOthers(ctx, room.ID, "c-alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"c-bob"}, others, "unbound memberships and the caller are skipped")

	all, err := f.correlator.ListOthers(ctx, room.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"c-alice", "c-bob"}, all)
}

func TestSessionCorrelator_RebindOverwrites(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	alice := f.registerMember(t, "alice")
	room := f.createRoomWith(t, alice)
	token, err := f.correlator.IssueSocketToken(ctx, alice, room.ID)
	require.NoError(t, err)

	_, err = f.correlator.BindSession(ctx, room.ID, token, "first")
	require.NoError(t, err)
	_, err = f.correlator.BindSession(ctx, room.ID, token, "second")
	require.NoError(t, err)

	m, err := f.store.Memberships().FindByIdentity(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", *m.SessionID)

	// the stale connection closing must not evict the member
	_, err = f.coordinator.ExitBySession(ctx, "first")
	assert.ErrorIs(t, err, service.ErrMembershipNotFound)
	assert.Equal(t, int64(1), f.count(t, room.ID))
}

func TestSessionCorrelator_BindSession_Errors(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	alice, bob := f.registerMember(t, "alice"), f.registerMember(t, "bob")
	roomA := f.createRoomWith(t, alice)
	roomB := f.createRoomWith(t, member(99, "host-b"))

	_, err := f.correlator.BindSession(ctx, roomA.ID, "", "conn")
	assert.ErrorIs(t, err, service.ErrUnauthenticated)

	_, err = f.correlator.BindSession(ctx, roomA.ID, "garbage", "conn")
	assert.ErrorIs(t, err, service.ErrInvalidAuthToken)

	bobToken, err := f.auth.IssueSocketToken(uint(bob.ID))
	require.NoError(t, err)
	_, err = f.correlator.BindSession(ctx, roomA.ID, bobToken, "conn")
	assert.ErrorIs(t, err, service.ErrMembershipNotFound, "bob holds no membership")

	aliceToken, err := f.auth.IssueSocketToken(uint(alice.ID))
	require.NoError(t, err)
	_, err = f.correlator.BindSession(ctx, roomB.ID, aliceToken, "conn")
	assert.ErrorIs(t, err, service.ErrMembershipNotFound, "alice is in another room")

	ghostToken, err := f.auth.IssueSocketToken(4242)
	require.NoError(t, err)
	_, err = f.correlator.BindSession(ctx, roomA.ID, ghostToken, "conn")
	assert.ErrorIs(t, err, service.ErrUserNotFound)
}

func TestSessionCorrelator_IssueSocketToken_Errors(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	alice := f.registerMember(t, "alice")
	room := f.createRoomWith(t, alice, guest(1, "g"))

	_, err := f.correlator.IssueSocketToken(ctx, guest(1, "g"), room.ID)
	assert.ErrorIs(t, err, service.ErrUnauthenticated)

	_, err = f.correlator.IssueSocketToken(ctx, alice, room.ID+1)
	assert.ErrorIs(t, err, service.ErrMembershipNotFound)
}

func TestSessionCorrelator_ListOthers_EmptyRoom(t *testing.T) {
	f := newSessionFixture(t)
	others, err := f.correlator.ListOthers(context.Background(), 12345, "x")
	require.NoError(t, err)
	assert.Empty(t, others)
}
