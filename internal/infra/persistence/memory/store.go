// Package memory is an in-process room store used by tests and by
// STORE_DRIVER=memory. A transaction holds the store's write lock until it
// finishes, so readers always see committed state.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/repository"
)

// Store keeps rooms, memberships and member accounts in maps. Accounts are
// not part of room transactions.
type Store struct {
	mu          sync.RWMutex
	rooms       map[uint]domain.Room
	memberships map[uint]domain.Membership
	users       map[uint]domain.User

	nextRoomID       uint
	nextMembershipID uint
	nextUserID       uint

	// usersMu guards users and nextUserID. It is separate from mu so that
	// account lookups made while a transaction holds mu do not block.
	usersMu sync.RWMutex
}

var _ repository.TxStore = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		rooms:       make(map[uint]domain.Room),
		memberships: make(map[uint]domain.Membership),
		users:       make(map[uint]domain.User),
	}
}

func (s *Store) Rooms() repository.RoomRepository { return &roomRepo{v: &view{s: s}} }

func (s *Store) Memberships() repository.MembershipRepository {
	return &membershipRepo{v: &view{s: s}}
}

// Users exposes the member account repository.
func (s *Store) Users() repository.UserRepository { return &userRepo{s: s} }

// WithinTransaction runs fn under the write lock and undoes its writes when
// fn fails.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var undo []func()
	tx := &txStore{v: &view{s: s, inTx: true, undo: &undo}}
	if err := fn(ctx, tx); err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return err
	}
	return nil
}

type txStore struct{ v *view }

func (t *txStore) Rooms() repository.RoomRepository             { return &roomRepo{v: t.v} }
func (t *txStore) Memberships() repository.MembershipRepository { return &membershipRepo{v: t.v} }

// view runs repository calls either under the store lock or, inside a
// transaction, directly (the transaction already holds the lock).
type view struct {
	s    *Store
	inTx bool
	undo *[]func()
}

func (v *view) read(fn func()) {
	if !v.inTx {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	fn()
}

func (v *view) write(fn func()) {
	if !v.inTx {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	fn()
}

func (v *view) onRollback(fn func()) {
	if v.inTx {
		*v.undo = append(*v.undo, fn)
	}
}

// --- rooms ---

type roomRepo struct{ v *view }

func (r *roomRepo) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	var (
		room domain.Room
		ok   bool
	)
	r.v.read(func() { room, ok = r.v.s.rooms[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &room, nil
}

func (r *roomRepo) FindByIDForUpdate(ctx context.Context, id uint) (*domain.Room, error) {
	return r.FindByID(ctx, id)
}

func (r *roomRepo) Save(ctx context.Context, room *domain.Room) error {
	r.v.write(func() {
		s := r.v.s
		now := time.Now()
		if room.ID == 0 {
			s.nextRoomID++
			room.ID = s.nextRoomID
			room.CreatedAt = now
		}
		room.UpdatedAt = now
		prev, existed := s.rooms[room.ID]
		s.rooms[room.ID] = *room
		id := room.ID
		r.v.onRollback(func() {
			if existed {
				s.rooms[id] = prev
			} else {
				delete(s.rooms, id)
			}
		})
	})
	return nil
}

func (r *roomRepo) Delete(ctx context.Context, id uint) error {
	r.v.write(func() {
		s := r.v.s
		prev, existed := s.rooms[id]
		if !existed {
			return
		}
		delete(s.rooms, id)
		r.v.onRollback(func() { s.rooms[id] = prev })
	})
	return nil
}

func (r *roomRepo) ListWithOccupants(ctx context.Context, offset, limit int) ([]domain.RoomSummary, int64, error) {
	var (
		page  []domain.RoomSummary
		total int64
	)
	r.v.read(func() {
		s := r.v.s
		counts := make(map[uint]int64, len(s.rooms))
		for _, m := range s.memberships {
			counts[m.RoomID]++
		}
		ids := make([]uint, 0, len(s.rooms))
		for id := range s.rooms {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		total = int64(len(ids))

		if offset >= len(ids) {
			page = []domain.RoomSummary{}
			return
		}
		end := offset + limit
		if end > len(ids) {
			end = len(ids)
		}
		page = make([]domain.RoomSummary, 0, end-offset)
		for _, id := range ids[offset:end] {
			page = append(page, domain.RoomSummary{Room: s.rooms[id], Occupants: counts[id]})
		}
	})
	return page, total, nil
}

func (r *roomRepo) FindFlagged(ctx context.Context) ([]domain.Room, error) {
	var flagged []domain.Room
	r.v.read(func() {
		for _, room := range r.v.s.rooms {
			if room.NeedsAttention {
				flagged = append(flagged, room)
			}
		}
	})
	sort.Slice(flagged, func(i, j int) bool { return flagged[i].ID < flagged[j].ID })
	return flagged, nil
}

// --- memberships ---

type membershipRepo struct{ v *view }

func cloneMembership(m domain.Membership) domain.Membership {
	if m.SessionID != nil {
		sid := *m.SessionID
		m.SessionID = &sid
	}
	return m
}

func (r *membershipRepo) find(match func(domain.Membership) bool) (*domain.Membership, error) {
	var (
		found domain.Membership
		ok    bool
	)
	r.v.read(func() {
		for _, m := range r.v.s.memberships {
			if match(m) {
				found, ok = cloneMembership(m), true
				return
			}
		}
	})
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &found, nil
}

func (r *membershipRepo) FindByIdentity(ctx context.Context, identityID uint64) (*domain.Membership, error) {
	return r.find(func(m domain.Membership) bool { return m.IdentityID == identityID })
}

func (r *membershipRepo) FindBySession(ctx context.Context, sessionID string) (*domain.Membership, error) {
	return r.find(func(m domain.Membership) bool { return m.BoundTo(sessionID) })
}

func (r *membershipRepo) ExistsByIdentity(ctx context.Context, identityID uint64) (bool, error) {
	_, err := r.FindByIdentity(ctx, identityID)
	if err == repository.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r *membershipRepo) ListByRoom(ctx context.Context, roomID uint) ([]domain.Membership, error) {
	var list []domain.Membership
	r.v.read(func() {
		for _, m := range r.v.s.memberships {
			if m.RoomID == roomID {
				list = append(list, cloneMembership(m))
			}
		}
	})
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r *membershipRepo) CountByRoom(ctx context.Context, roomID uint) (int64, error) {
	var n int64
	r.v.read(func() {
		for _, m := range r.v.s.memberships {
			if m.RoomID == roomID {
				n++
			}
		}
	})
	return n, nil
}

func (r *membershipRepo) Save(ctx context.Context, membership *domain.Membership) error {
	var err error
	r.v.write(func() {
		s := r.v.s
		for _, m := range s.memberships {
			if m.IdentityID == membership.IdentityID && m.ID != membership.ID {
				err = repository.ErrDuplicateEntry
				return
			}
		}
		if membership.ID == 0 {
			s.nextMembershipID++
			membership.ID = s.nextMembershipID
			membership.CreatedAt = time.Now()
		}
		prev, existed := s.memberships[membership.ID]
		s.memberships[membership.ID] = cloneMembership(*membership)
		id := membership.ID
		r.v.onRollback(func() {
			if existed {
				s.memberships[id] = prev
			} else {
				delete(s.memberships, id)
			}
		})
	})
	return err
}

func (r *membershipRepo) Delete(ctx context.Context, id uint) error {
	r.v.write(func() {
		s := r.v.s
		prev, existed := s.memberships[id]
		if !existed {
			return
		}
		delete(s.memberships, id)
		r.v.onRollback(func() { s.memberships[id] = prev })
	})
	return nil
}

// --- users ---

type userRepo struct{ s *Store }

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.s.usersMu.RLock()
	defer r.s.usersMu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	r.s.usersMu.RLock()
	defer r.s.usersMu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *userRepo) Save(ctx context.Context, user *domain.User) error {
	r.s.usersMu.Lock()
	defer r.s.usersMu.Unlock()
	for _, u := range r.s.users {
		if u.Email == user.Email && u.ID != user.ID {
			return repository.ErrDuplicateEntry
		}
	}
	now := time.Now()
	if user.ID == 0 {
		r.s.nextUserID++
		user.ID = r.s.nextUserID
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.s.users[user.ID] = *user
	return nil
}
