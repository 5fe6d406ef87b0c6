package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/repository"
)

// GuestHeader is the request header carrying the guest marker.
const GuestHeader = "guest"

// Credentials are the raw identity hints of one request.
type Credentials struct {
	BearerToken string // member access token, without the "Bearer " prefix
	GuestMarker string // value of the guest header
}

// TokenVerifier validates member tokens and returns the member id.
type TokenVerifier interface {
	VerifyAccessToken(token string) (uint, error)
	VerifySocketToken(token string) (uint, error)
}

// NicknameSource resolves one kind of identity.
type NicknameSource interface {
	Resolve(ctx context.Context, id uint64) (domain.Identity, error)
}

type memberSource struct{ users repository.UserRepository }

func (s memberSource) Resolve(ctx context.Context, id uint64) (domain.Identity, error) {
	user, err := s.users.FindByID(ctx, uint(id))
	if err != nil {
		return domain.Identity{}, err
	}
	return user.Identity(), nil
}

type guestSource struct{ guests repository.GuestRepository }

func (s guestSource) Resolve(ctx context.Context, id uint64) (domain.Identity, error) {
	guest, err := s.guests.FindByID(ctx, id)
	if err != nil {
		return domain.Identity{}, err
	}
	return guest.Identity(), nil
}

// IdentityResolver turns request credentials into an Identity and looks
// identities up by id for host succession.
type IdentityResolver struct {
	tokens  TokenVerifier
	sources map[domain.IdentityKind]NicknameSource
}

// NewIdentityResolver creates an IdentityResolver.
func NewIdentityResolver(tokens TokenVerifier, users repository.UserRepository, guests repository.GuestRepository) *IdentityResolver {
	if tokens == nil {
		panic("TokenVerifier cannot be nil for IdentityResolver")
	}
	if users == nil {
		panic("UserRepository cannot be nil for IdentityResolver")
	}
	if guests == nil {
		panic("GuestRepository cannot be nil for IdentityResolver")
	}
	return &IdentityResolver{
		tokens: tokens,
		sources: map[domain.IdentityKind]NicknameSource{
			domain.KindMember: memberSource{users: users},
			domain.KindGuest:  guestSource{guests: guests},
		},
	}
}

// Resolve prefers a member token over the guest marker.
func (r *IdentityResolver) Resolve(ctx context.Context, creds Credentials) (domain.Identity, error) {
	switch {
	case creds.BearerToken != "":
		return r.resolveMember(ctx, creds.BearerToken)
	case creds.GuestMarker != "":
		return r.resolveGuest(ctx, creds.GuestMarker)
	default:
		return domain.Identity{}, ErrUnauthenticated
	}
}

func (r *IdentityResolver) resolveMember(ctx context.Context, token string) (domain.Identity, error) {
	userID, err := r.tokens.VerifyAccessToken(token)
	if err != nil {
		logrus.WithError(err).Debug("IdentityResolver: member token rejected")
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidAuthToken, err)
	}
	identity, err := r.Lookup(ctx, uint64(userID), domain.KindMember)
	if err != nil {
		return domain.Identity{}, err
	}
	return identity, nil
}

func (r *IdentityResolver) resolveGuest(ctx context.Context, marker string) (domain.Identity, error) {
	guestID, _, err := DecodeGuestMarker(marker)
	if err != nil {
		return domain.Identity{}, err
	}
	identity, err := r.Lookup(ctx, guestID, domain.KindGuest)
	if errors.Is(err, ErrUserNotFound) {
		logrus.WithField("guest_id", guestID).Warn("IdentityResolver: guest marker refers to an expired guest")
		return domain.Identity{}, fmt.Errorf("%w: guest %d no longer exists", ErrInvalidAuthToken, guestID)
	}
	return identity, err
}

// Lookup resolves an identity by id and kind. A missing record yields
// ErrUserNotFound; storage failures yield ErrInternalServer.
func (r *IdentityResolver) Lookup(ctx context.Context, id uint64, kind domain.IdentityKind) (domain.Identity, error) {
	if kind == "" {
		kind = domain.KindOf(id)
	}
	source, ok := r.sources[kind]
	if !ok {
		return domain.Identity{}, fmt.Errorf("%w: unknown identity kind %q", ErrInvalidRequest, kind)
	}
	identity, err := source.Resolve(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Identity{}, fmt.Errorf("%w: %s %d", ErrUserNotFound, kind, id)
		}
		logrus.WithError(err).WithFields(logrus.Fields{"identity_id": id, "kind": kind}).Error("IdentityResolver: lookup failed")
		return domain.Identity{}, fmt.Errorf("%w: lookup %s %d", ErrInternalServer, kind, id)
	}
	return identity, nil
}

type guestMarker struct {
	Guest    json.Number `json:"guest"`
	Nickname string      `json:"nickname"`
}

// EncodeGuestMarker renders the guest header value: URL-encoded JSON.
func EncodeGuestMarker(guest *domain.Guest) (string, error) {
	data, err := json.Marshal(struct {
		Guest    string `json:"guest"`
		Nickname string `json:"nickname"`
	}{strconv.FormatUint(guest.ID, 10), guest.Nickname})
	if err != nil {
		return "", err
	}
	return url.QueryEscape(string(data)), nil
}

// DecodeGuestMarker accepts the URL-encoded JSON form
// {"guest":"<id>","nickname":"<nick>"} and the plain "id,nickname" form.
func DecodeGuestMarker(raw string) (uint64, string, error) {
	decoded, err := url.QueryUnescape(strings.TrimSpace(raw))
	if err != nil {
		return 0, "", fmt.Errorf("%w: guest marker is not url-encoded", ErrInvalidAuthToken)
	}
	decoded = strings.TrimSpace(decoded)

	var idText, nickname string
	if strings.HasPrefix(decoded, "{") {
		var m guestMarker
		if err := json.Unmarshal([]byte(decoded), &m); err != nil {
			return 0, "", fmt.Errorf("%w: malformed guest marker", ErrInvalidAuthToken)
		}
		idText, nickname = m.Guest.String(), m.Nickname
	} else {
		parts := strings.SplitN(decoded, ",", 2)
		if len(parts) != 2 {
			return 0, "", fmt.Errorf("%w: malformed guest marker", ErrInvalidAuthToken)
		}
		idText, nickname = parts[0], parts[1]
	}

	nickname = strings.TrimSpace(nickname)
	id, err := strconv.ParseUint(strings.TrimSpace(idText), 10, 64)
	if err != nil || nickname == "" {
		return 0, "", fmt.Errorf("%w: guest marker lacks id or nickname", ErrInvalidAuthToken)
	}
	if id <= domain.GuestIDBase {
		return 0, "", fmt.Errorf("%w: %d is not a guest id", ErrInvalidAuthToken, id)
	}
	return id, nickname, nil
}
