package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/lock"
	"sketch-lobby/internal/repository"
)

// SocketTokens issues and checks realtime channel credentials.
type SocketTokens interface {
	IssueSocketToken(userID uint) (string, error)
	VerifySocketToken(token string) (uint, error)
}

// SessionCorrelator links realtime connections to memberships.
type SessionCorrelator struct {
	atomic atomicRunner
	store  repository.Store
	users  repository.UserRepository
	tokens SocketTokens
}

// NewSessionCorrelator creates a SessionCorrelator.
func NewSessionCorrelator(store repository.TxStore, users repository.UserRepository, tokens SocketTokens, locks *lock.Keyed, txTimeout time.Duration) *SessionCorrelator {
	if users == nil {
		panic("UserRepository cannot be nil for SessionCorrelator")
	}
	if tokens == nil {
		panic("SocketTokens cannot be nil for SessionCorrelator")
	}
	return &SessionCorrelator{
		atomic: newAtomicRunner(store, locks, txTimeout),
		store:  store,
		users:  users,
		tokens: tokens,
	}
}

// IssueSocketToken hands a member of roomID the credential for BindSession.
func (s *SessionCorrelator) IssueSocketToken(ctx context.Context, identity domain.Identity, roomID uint) (string, error) {
	logCtx := logrus.WithFields(logrus.Fields{"identity_id": identity.ID, "room_id": roomID})
	if identity.IsGuest() {
		return "", fmt.Errorf("%w: the realtime channel requires a member account", ErrUnauthenticated)
	}
	m, err := s.store.Memberships().FindByIdentity(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrMembershipNotFound
		}
		return "", internalError(logCtx, "IssueSocketToken", err)
	}
	if m.RoomID != roomID {
		return "", fmt.Errorf("%w: not a member of room %d", ErrMembershipNotFound, roomID)
	}
	token, err := s.tokens.IssueSocketToken(uint(identity.ID))
	if err != nil {
		return "", internalError(logCtx, "IssueSocketToken", err)
	}
	return token, nil
}

// BindSession records connectionID on the caller's membership in roomID.
// Binding again overwrites the previous connection.
func (s *SessionCorrelator) BindSession(ctx context.Context, roomID uint, credential, connectionID string) (domain.Identity, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "session_id": connectionID})
	if credential == "" {
		return domain.Identity{}, ErrUnauthenticated
	}
	if connectionID == "" {
		return domain.Identity{}, fmt.Errorf("%w: empty connection id", ErrInvalidRequest)
	}

	userID, err := s.tokens.VerifySocketToken(credential)
	if err != nil {
		logCtx.WithError(err).Warn("BindSession: socket token rejected")
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidAuthToken, err)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Identity{}, ErrUserNotFound
		}
		return domain.Identity{}, internalError(logCtx, "BindSession", err)
	}
	identity := user.Identity()
	logCtx = logCtx.WithField("identity_id", identity.ID)

	var bound domain.Identity
	keys := []string{lock.RoomKey(roomID), lock.IdentityKey(identity.ID)}
	err = s.atomic.run(ctx, keys, func(ctx context.Context, tx repository.Store) error {
		m, err := tx.Memberships().FindByIdentity(ctx, identity.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrMembershipNotFound
			}
			return err
		}
		if m.RoomID != roomID {
			return fmt.Errorf("%w: not a member of room %d", ErrMembershipNotFound, roomID)
		}
		m.SessionID = &connectionID
		bound = m.Identity()
		return tx.Memberships().Save(ctx, m)
	})
	if err != nil {
		return domain.Identity{}, internalError(logCtx, "BindSession", err)
	}

	logCtx.Info("Session bound to membership")
	return bound, nil
}

// ListOthers returns the bound session ids in roomID except the caller's,
// in join order.
func (s *SessionCorrelator) ListOthers(ctx context.Context, roomID uint, callerConnectionID string) ([]string, error) {
	members, err := s.store.Memberships().ListByRoom(ctx, roomID)
	if err != nil {
		return nil, internalError(logrus.WithField("room_id", roomID), "ListOthers", err)
	}
	return lo.FilterMap(members, func(m domain.Membership, _ int) (string, bool) {
		if !m.HasSession() || *m.SessionID == callerConnectionID {
			return "", false
		}
		return *m.SessionID, true
	}), nil
}
