package service_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/repository"
	"sketch-lobby/internal/repository/mocks"
	"sketch-lobby/internal/service"
)

type resolverFixture struct {
	users    *mocks.UserRepository
	guests   *mocks.GuestRepository
	auth     *service.AuthService
	resolver *service.IdentityResolver
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	users := mocks.NewUserRepository(t)
	guests := mocks.NewGuestRepository(t)
	auth, err := service.NewAuthService(users, "test-secret", time.Hour, time.Minute)
	require.NoError(t, err)
	return &resolverFixture{
		users:    users,
		guests:   guests,
		auth:     auth,
		resolver: service.NewIdentityResolver(auth, users, guests),
	}
}

func (f *resolverFixture) accessToken(t *testing.T, user *domain.User, password string) string {
	t.Helper()
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil).Once()
	token, err := f.auth.Login(context.Background(), user.Email, password)
	require.NoError(t, err)
	return token
}

func TestIdentityResolver_NoCredential(t *testing.T) {
	f := newResolverFixture(t)
	_, err := f.resolver.Resolve(context.Background(), service.Credentials{})
	assert.ErrorIs(t, err, service.ErrUnauthenticated)
}

func TestIdentityResolver_MemberTokenWinsOverGuest(t *testing.T) {
	f := newResolverFixture(t)
	user := &domain.User{ID: 7, Email: "a@b.c", Nickname: "alice", Password: mustHash(t, "pw123456")}
	token := f.accessToken(t, user, "pw123456")
	f.users.On("FindByID", mock.Anything, uint(7)).Return(user, nil).Once()

	identity, err := f.resolver.Resolve(context.Background(), service.Credentials{
		BearerToken: token,
		GuestMarker: "1000000000001,guesty",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.Identity{ID: 7, Nickname: "alice", Kind: domain.KindMember}, identity)
	f.guests.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestIdentityResolver_MemberDeleted(t *testing.T) {
	f := newResolverFixture(t)
	user := &domain.User{ID: 7, Email: "a@b.c", Nickname: "alice", Password: mustHash(t, "pw123456")}
	token := f.accessToken(t, user, "pw123456")
	f.users.On("FindByID", mock.Anything, uint(7)).Return(nil, repository.ErrNotFound).Once()

	_, err := f.resolver.Resolve(context.Background(), service.Credentials{BearerToken: token})

	assert.ErrorIs(t, err, service.ErrUserNotFound)
}

func TestIdentityResolver_BadMemberToken(t *testing.T) {
	f := newResolverFixture(t)
	socket, err := f.auth.IssueSocketToken(7)
	require.NoError(t, err)

	for _, token := range []string{"not-a-jwt", socket} {
		_, err := f.resolver.Resolve(context.Background(), service.Credentials{BearerToken: token})
		assert.ErrorIs(t, err, service.ErrInvalidAuthToken)
	}
}

func TestIdentityResolver_Guest(t *testing.T) {
	f := newResolverFixture(t)
	stored := &domain.Guest{ID: domain.GuestIDBase + 3, Nickname: "stored-nick"}
	f.guests.On("FindByID", mock.Anything, stored.ID).Return(stored, nil).Once()
	marker, err := service.EncodeGuestMarker(&domain.Guest{ID: stored.ID, Nickname: "header-nick"})
	require.NoError(t, err)

	identity, err := f.resolver.Resolve(context.Background(), service.Credentials{GuestMarker: marker})

	require.NoError(t, err)
	assert.Equal(t, stored.Identity(), identity)
}

func TestIdentityResolver_GuestExpired(t *testing.T) {
	f := newResolverFixture(t)
	id := domain.GuestIDBase + 3
	f.guests.On("FindByID", mock.Anything, id).Return(nil, repository.ErrNotFound).Once()

	_, err := f.resolver.Resolve(context.Background(), service.Credentials{GuestMarker: "1000000000003,bob"})

	assert.ErrorIs(t, err, service.ErrInvalidAuthToken)
}

func TestIdentityResolver_GuestStoreDown(t *testing.T) {
	f := newResolverFixture(t)
	id := domain.GuestIDBase + 3
	f.guests.On("FindByID", mock.Anything, id).Return(nil, errors.New("connection refused")).Once()

	_, err := f.resolver.Resolve(context.Background(), service.Credentials{GuestMarker: "1000000000003,bob"})

	assert.ErrorIs(t, err, service.ErrInternalServer)
}

func TestDecodeGuestMarker(t *testing.T) {
	jsonForm := url.QueryEscape(`{"guest":"1000000000042","nickname":"doodler"}`)
	numericForm := url.QueryEscape(`{"guest":1000000000042,"nickname":"doodler"}`)

	for _, raw := range []string{jsonForm, numericForm, "1000000000042,doodler", " 1000000000042 , doodler "} {
		id, nick, err := service.DecodeGuestMarker(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, domain.GuestIDBase+42, id)
		assert.Equal(t, "doodler", nick)
	}

	for _, raw := range []string{
		"garbage",
		"%zz",
		"1000000000042,",
		",doodler",
		"abc,doodler",
		"42,doodler", // member range
		url.QueryEscape(`{"guest":"1000000000042"}`),
		url.QueryEscape(`{"nickname":"x"}`),
		url.QueryEscape(`{"guest":`),
	} {
		_, _, err := service.DecodeGuestMarker(raw)
		assert.ErrorIs(t, err, service.ErrInvalidAuthToken, raw)
	}
}

func TestIdentityResolver_LookupUnknownKind(t *testing.T) {
	f := newResolverFixture(t)
	_, err := f.resolver.Lookup(context.Background(), 1, "robot")
	assert.ErrorIs(t, err, service.ErrInvalidRequest)
}
