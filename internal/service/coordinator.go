package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/lock"
	"sketch-lobby/internal/repository"
)

const maxTitleLength = 50

// ExitResult describes what a departure changed.
type ExitResult struct {
	RoomID      uint             `json:"roomId"`
	Departed    domain.Identity  `json:"departed"`
	SessionID   string           `json:"-"` // realtime connection of the departed member, if bound
	RoomDeleted bool             `json:"roomDeleted"`
	NewHost     *domain.Identity `json:"newHost,omitempty"`
	Hostless    bool             `json:"hostless"`
}

// RepairResult describes what RepairHost changed.
type RepairResult struct {
	Room        *domain.Room
	RoomDeleted bool
	Evicted     []domain.Membership
}

// RoomEvents is notified after a departure has been committed.
type RoomEvents interface {
	MemberLeft(ctx context.Context, result ExitResult)
}

type noopEvents struct{}

func (noopEvents) MemberLeft(context.Context, ExitResult) {}

// RoomCoordinator owns room membership: create, enter, exit and host
// handover. Writers on the same room or identity are serialized.
type RoomCoordinator struct {
	atomic     atomicRunner
	store      repository.Store
	succession *HostSuccessionPolicy
	events     RoomEvents
}

// NewRoomCoordinator creates a RoomCoordinator. events may be nil.
func NewRoomCoordinator(store repository.TxStore, succession *HostSuccessionPolicy, locks *lock.Keyed, events RoomEvents, txTimeout time.Duration) *RoomCoordinator {
	if succession == nil {
		panic("HostSuccessionPolicy cannot be nil for RoomCoordinator")
	}
	if events == nil {
		events = noopEvents{}
	}
	return &RoomCoordinator{
		atomic:     newAtomicRunner(store, locks, txTimeout),
		store:      store,
		succession: succession,
		events:     events,
	}
}

// CreateRoom opens a room hosted by identity, who becomes its first member.
func (c *RoomCoordinator) CreateRoom(ctx context.Context, identity domain.Identity, title string) (*domain.Room, error) {
	title = strings.TrimSpace(title)
	logCtx := logrus.WithFields(logrus.Fields{"identity_id": identity.ID, "title": title})
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		return nil, fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidRequest, maxTitleLength)
	}

	var room *domain.Room
	err := c.atomic.run(ctx, []string{lock.IdentityKey(identity.ID)}, func(ctx context.Context, tx repository.Store) error {
		exists, err := tx.Memberships().ExistsByIdentity(ctx, identity.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyInRoom
		}

		room = &domain.Room{Title: title, Status: domain.RoomWaiting}
		room.AssignHost(identity)
		if err := tx.Rooms().Save(ctx, room); err != nil {
			return err
		}
		return c.join(ctx, tx, room.ID, identity)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyInRoom) {
			logCtx.Warn("CreateRoom rejected: identity already in a room")
		}
		return nil, internalError(logCtx, "CreateRoom", err)
	}

	logCtx.WithField("room_id", room.ID).Info("Room created")
	return room, nil
}

// EnterRoom adds identity to the room. Checks run in order: room exists,
// not playing, below capacity, identity not in any room.
func (c *RoomCoordinator) EnterRoom(ctx context.Context, identity domain.Identity, roomID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"identity_id": identity.ID, "room_id": roomID})

	keys := []string{lock.RoomKey(roomID), lock.IdentityKey(identity.ID)}
	err := c.atomic.run(ctx, keys, func(ctx context.Context, tx repository.Store) error {
		room, err := c.lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if room.Status == domain.RoomPlaying {
			return ErrAlreadyPlaying
		}
		count, err := tx.Memberships().CountByRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if count >= domain.MaxOccupants {
			return ErrRoomFull
		}
		exists, err := tx.Memberships().ExistsByIdentity(ctx, identity.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyInRoom
		}
		return c.join(ctx, tx, roomID, identity)
	})
	if err != nil {
		if isKnown(err) {
			logCtx.WithError(err).Warn("EnterRoom rejected")
		}
		return internalError(logCtx, "EnterRoom", err)
	}

	logCtx.Info("Identity entered room")
	return nil
}

// ExitByIdentity removes identity from roomID.
func (c *RoomCoordinator) ExitByIdentity(ctx context.Context, identity domain.Identity, roomID uint) (*ExitResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"identity_id": identity.ID, "room_id": roomID})

	keys := []string{lock.RoomKey(roomID), lock.IdentityKey(identity.ID)}
	return c.exit(ctx, logCtx, keys, func(ctx context.Context, tx repository.Store) (*domain.Room, *domain.Membership, error) {
		room, err := c.lockRoom(ctx, tx, roomID)
		if err != nil {
			return nil, nil, err
		}
		m, err := tx.Memberships().FindByIdentity(ctx, identity.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil, ErrMembershipNotFound
			}
			return nil, nil, err
		}
		if m.RoomID != roomID {
			return nil, nil, fmt.Errorf("%w: identity is a member of room %d", ErrAlreadyInRoom, m.RoomID)
		}
		return room, m, nil
	})
}

// ExitBySession removes whoever is bound to the realtime connection
// sessionID. It is the connection-loss path and shares the exit logic with
// ExitByIdentity.
func (c *RoomCoordinator) ExitBySession(ctx context.Context, sessionID string) (*ExitResult, error) {
	logCtx := logrus.WithField("session_id", sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrInvalidRequest)
	}

	found, err := c.store.Memberships().FindBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, internalError(logCtx, "ExitBySession", err)
	}
	logCtx = logCtx.WithFields(logrus.Fields{"identity_id": found.IdentityID, "room_id": found.RoomID})

	keys := []string{lock.RoomKey(found.RoomID), lock.IdentityKey(found.IdentityID)}
	return c.exit(ctx, logCtx, keys, func(ctx context.Context, tx repository.Store) (*domain.Room, *domain.Membership, error) {
		// re-read under the lock: the member may have left meanwhile
		m, err := tx.Memberships().FindBySession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil, ErrMembershipNotFound
			}
			return nil, nil, err
		}
		if m.ID != found.ID {
			return nil, nil, ErrMembershipNotFound
		}
		room, err := c.lockRoom(ctx, tx, m.RoomID)
		if err != nil {
			return nil, nil, err
		}
		return room, m, nil
	})
}

type exitTarget func(ctx context.Context, tx repository.Store) (*domain.Room, *domain.Membership, error)

// exit deletes the membership, then deletes the emptied room or hands the
// host role over. A failed handover still commits: the room is saved
// host-less and flagged and the error is returned afterwards.
func (c *RoomCoordinator) exit(ctx context.Context, logCtx *logrus.Entry, keys []string, target exitTarget) (*ExitResult, error) {
	var (
		result        *ExitResult
		successionErr error
	)
	err := c.atomic.run(ctx, keys, func(ctx context.Context, tx repository.Store) error {
		result, successionErr = nil, nil

		room, m, err := target(ctx, tx)
		if err != nil {
			return err
		}
		if err := tx.Memberships().Delete(ctx, m.ID); err != nil {
			return err
		}
		result = &ExitResult{RoomID: room.ID, Departed: m.Identity()}
		if m.SessionID != nil {
			result.SessionID = *m.SessionID
		}

		remaining, err := tx.Memberships().ListByRoom(ctx, room.ID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			result.RoomDeleted = true
			return tx.Rooms().Delete(ctx, room.ID)
		}
		if !room.IsHost(m.IdentityID) {
			return nil
		}

		next, err := c.succession.Next(ctx, remaining)
		switch {
		case errors.Is(err, ErrHostResolutionInconsistent):
			successionErr = err
			room.MarkHostless()
			result.Hostless = true
		case err != nil:
			return err
		default:
			room.AssignHost(next)
			result.NewHost = &next
		}
		return tx.Rooms().Save(ctx, room)
	})
	if err != nil {
		if isKnown(err) {
			logCtx.WithError(err).Warn("Exit rejected")
		}
		return nil, internalError(logCtx, "Exit", err)
	}

	logCtx = logCtx.WithFields(logrus.Fields{"room_id": result.RoomID, "room_deleted": result.RoomDeleted})
	if result.NewHost != nil {
		logCtx = logCtx.WithField("new_host_id", result.NewHost.ID)
	}
	logCtx.Info("Identity left room")
	c.events.MemberLeft(ctx, *result)

	if successionErr != nil {
		logCtx.WithError(successionErr).Error("Room left without host and flagged for attention")
		return result, successionErr
	}
	return result, nil
}

// SetStatus moves the room between Waiting and Playing. Host only.
func (c *RoomCoordinator) SetStatus(ctx context.Context, identity domain.Identity, roomID uint, status domain.RoomStatus) error {
	logCtx := logrus.WithFields(logrus.Fields{"identity_id": identity.ID, "room_id": roomID, "status": status})
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}

	err := c.atomic.run(ctx, []string{lock.RoomKey(roomID)}, func(ctx context.Context, tx repository.Store) error {
		room, err := c.lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if !room.IsHost(identity.ID) {
			return ErrNotHost
		}
		if status == domain.RoomPlaying && room.Status == domain.RoomPlaying {
			return ErrAlreadyPlaying
		}
		room.Status = status
		return tx.Rooms().Save(ctx, room)
	})
	if err != nil {
		return internalError(logCtx, "SetStatus", err)
	}
	logCtx.Info("Room status changed")
	return nil
}

// RepairHost reassigns the host of a flagged room to the earliest member
// that still resolves, evicting the ones that do not. A room with nobody
// left is deleted.
func (c *RoomCoordinator) RepairHost(ctx context.Context, roomID uint) (*RepairResult, error) {
	logCtx := logrus.WithField("room_id", roomID)

	var result *RepairResult
	err := c.atomic.run(ctx, []string{lock.RoomKey(roomID)}, func(ctx context.Context, tx repository.Store) error {
		room, err := c.lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		result = &RepairResult{Room: room}
		if room.HasHost() && !room.NeedsAttention {
			return nil
		}

		remaining, err := tx.Memberships().ListByRoom(ctx, roomID)
		if err != nil {
			return err
		}
		host, unresolved, err := c.succession.FirstResolvable(ctx, remaining)
		if err != nil {
			return err
		}
		for _, m := range unresolved {
			if err := tx.Memberships().Delete(ctx, m.ID); err != nil {
				return err
			}
		}
		result.Evicted = unresolved

		if host == nil {
			result.RoomDeleted = true
			return tx.Rooms().Delete(ctx, roomID)
		}
		room.AssignHost(*host)
		return tx.Rooms().Save(ctx, room)
	})
	if err != nil {
		return nil, internalError(logCtx, "RepairHost", err)
	}

	logCtx.WithFields(logrus.Fields{
		"evicted":      len(result.Evicted),
		"room_deleted": result.RoomDeleted,
		"host_id":      result.Room.HostID,
	}).Info("Room host repaired")
	return result, nil
}

// EvictUnresolvable removes the room's memberships whose identity no longer
// resolves, such as guests whose record expired. When the host is among them
// the earliest live member takes over; a room left empty is deleted.
func (c *RoomCoordinator) EvictUnresolvable(ctx context.Context, roomID uint) (*RepairResult, error) {
	logCtx := logrus.WithField("room_id", roomID)

	var (
		result  *RepairResult
		newHost *domain.Identity
	)
	err := c.atomic.run(ctx, []string{lock.RoomKey(roomID)}, func(ctx context.Context, tx repository.Store) error {
		room, err := c.lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		result = &RepairResult{Room: room}

		memberships, err := tx.Memberships().ListByRoom(ctx, roomID)
		if err != nil {
			return err
		}
		live, unresolved, err := c.succession.Partition(ctx, memberships)
		if err != nil {
			return err
		}
		if len(unresolved) == 0 {
			return nil
		}
		for _, m := range unresolved {
			if err := tx.Memberships().Delete(ctx, m.ID); err != nil {
				return err
			}
		}
		result.Evicted = unresolved

		if len(live) == 0 {
			result.RoomDeleted = true
			return tx.Rooms().Delete(ctx, roomID)
		}
		hostGone := !room.HasHost()
		for _, m := range unresolved {
			if room.IsHost(m.IdentityID) {
				hostGone = true
			}
		}
		if !hostGone {
			return nil
		}
		room.AssignHost(live[0])
		newHost = &live[0]
		return tx.Rooms().Save(ctx, room)
	})
	if err != nil {
		return nil, internalError(logCtx, "EvictUnresolvable", err)
	}
	if len(result.Evicted) == 0 {
		return result, nil
	}

	for i, m := range result.Evicted {
		exit := ExitResult{RoomID: roomID, Departed: m.Identity(), RoomDeleted: result.RoomDeleted}
		if m.SessionID != nil {
			exit.SessionID = *m.SessionID
		}
		if i == len(result.Evicted)-1 {
			exit.NewHost = newHost
		}
		c.events.MemberLeft(ctx, exit)
	}
	logCtx.WithFields(logrus.Fields{
		"evicted":      len(result.Evicted),
		"room_deleted": result.RoomDeleted,
		"host_id":      result.Room.HostID,
	}).Warn("Evicted unresolvable memberships")
	return result, nil
}

// SweepUnresolvable runs EvictUnresolvable over every room and returns the
// rooms it changed.
func (c *RoomCoordinator) SweepUnresolvable(ctx context.Context) ([]RepairResult, error) {
	const pageSize = 100

	var roomIDs []uint
	for offset := 0; ; offset += pageSize {
		page, _, err := c.store.Rooms().ListWithOccupants(ctx, offset, pageSize)
		if err != nil {
			return nil, internalError(logrus.WithField("op", "SweepUnresolvable"), "SweepUnresolvable", err)
		}
		for _, summary := range page {
			roomIDs = append(roomIDs, summary.ID)
		}
		if len(page) < pageSize {
			break
		}
	}

	var changed []RepairResult
	for _, roomID := range roomIDs {
		result, err := c.EvictUnresolvable(ctx, roomID)
		if errors.Is(err, ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return changed, err
		}
		if len(result.Evicted) > 0 {
			changed = append(changed, *result)
		}
	}
	return changed, nil
}

// FlaggedRooms lists rooms left host-less by a failed handover.
func (c *RoomCoordinator) FlaggedRooms(ctx context.Context) ([]domain.Room, error) {
	rooms, err := c.store.Rooms().FindFlagged(ctx)
	if err != nil {
		return nil, internalError(logrus.WithField("op", "FlaggedRooms"), "FlaggedRooms", err)
	}
	return rooms, nil
}

func (c *RoomCoordinator) lockRoom(ctx context.Context, tx repository.Store, roomID uint) (*domain.Room, error) {
	room, err := tx.Rooms().FindByIDForUpdate(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

func (c *RoomCoordinator) join(ctx context.Context, tx repository.Store, roomID uint, identity domain.Identity) error {
	m := &domain.Membership{
		RoomID:       roomID,
		IdentityID:   identity.ID,
		IdentityKind: identity.Kind,
		Nickname:     identity.Nickname,
	}
	if err := tx.Memberships().Save(ctx, m); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return ErrAlreadyInRoom
		}
		return err
	}
	return nil
}
