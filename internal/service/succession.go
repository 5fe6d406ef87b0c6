package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/domain"
)

// IdentityLookup resolves a stored identity reference to a live identity.
type IdentityLookup interface {
	Lookup(ctx context.Context, id uint64, kind domain.IdentityKind) (domain.Identity, error)
}

// HostSuccessionPolicy picks who takes over when the host leaves.
type HostSuccessionPolicy struct {
	identities IdentityLookup
}

// NewHostSuccessionPolicy creates a HostSuccessionPolicy.
func NewHostSuccessionPolicy(identities IdentityLookup) *HostSuccessionPolicy {
	if identities == nil {
		panic("IdentityLookup cannot be nil for HostSuccessionPolicy")
	}
	return &HostSuccessionPolicy{identities: identities}
}

// EarliestJoiner returns the membership with the lowest id.
func EarliestJoiner(remaining []domain.Membership) (domain.Membership, bool) {
	if len(remaining) == 0 {
		return domain.Membership{}, false
	}
	return lo.MinBy(remaining, func(a, b domain.Membership) bool { return a.ID < b.ID }), true
}

// Next resolves the earliest remaining joiner. When that identity no longer
// exists it fails with ErrHostResolutionInconsistent rather than skipping to
// the next joiner.
func (p *HostSuccessionPolicy) Next(ctx context.Context, remaining []domain.Membership) (domain.Identity, error) {
	m, ok := EarliestJoiner(remaining)
	if !ok {
		return domain.Identity{}, fmt.Errorf("%w: no remaining memberships", ErrMembershipNotFound)
	}
	identity, err := p.identities.Lookup(ctx, m.IdentityID, m.IdentityKind)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			logrus.WithFields(logrus.Fields{
				"room_id":       m.RoomID,
				"membership_id": m.ID,
				"identity_id":   m.IdentityID,
			}).Error("HostSuccession: earliest joiner cannot be resolved")
			return domain.Identity{}, fmt.Errorf("%w: membership %d (identity %d)", ErrHostResolutionInconsistent, m.ID, m.IdentityID)
		}
		return domain.Identity{}, err
	}
	return identity, nil
}

// FirstResolvable walks the memberships in join order and returns the first
// identity that still resolves plus the memberships skipped on the way.
func (p *HostSuccessionPolicy) FirstResolvable(ctx context.Context, remaining []domain.Membership) (*domain.Identity, []domain.Membership, error) {
	ordered := append([]domain.Membership(nil), remaining...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var unresolved []domain.Membership
	for _, m := range ordered {
		identity, err := p.identities.Lookup(ctx, m.IdentityID, m.IdentityKind)
		if err == nil {
			return &identity, unresolved, nil
		}
		if !errors.Is(err, ErrUserNotFound) {
			return nil, nil, err
		}
		unresolved = append(unresolved, m)
	}
	return nil, unresolved, nil
}

// Partition resolves every membership. It returns the live identities in
// join order and the memberships that no longer resolve.
func (p *HostSuccessionPolicy) Partition(ctx context.Context, memberships []domain.Membership) ([]domain.Identity, []domain.Membership, error) {
	ordered := append([]domain.Membership(nil), memberships...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var (
		live       []domain.Identity
		unresolved []domain.Membership
	)
	for _, m := range ordered {
		identity, err := p.identities.Lookup(ctx, m.IdentityID, m.IdentityKind)
		switch {
		case err == nil:
			live = append(live, identity)
		case errors.Is(err, ErrUserNotFound):
			unresolved = append(unresolved, m)
		default:
			return nil, nil, err
		}
	}
	return live, unresolved, nil
}
