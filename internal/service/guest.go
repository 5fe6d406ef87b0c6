package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/repository"
)

const maxNicknameLength = 20

var (
	nickAdjectives = []string{"Sleepy", "Brave", "Fuzzy", "Quick", "Quiet", "Lucky", "Clever", "Sunny", "Gentle", "Wild"}
	nickNouns      = []string{"Panda", "Otter", "Crayon", "Easel", "Pencil", "Fox", "Comet", "Brush", "Falcon", "Koala"}
)

// GuestService issues anonymous identities.
type GuestService struct {
	guests repository.GuestRepository
}

// NewGuestService creates a GuestService.
func NewGuestService(guests repository.GuestRepository) *GuestService {
	if guests == nil {
		panic("GuestRepository cannot be nil for GuestService")
	}
	return &GuestService{guests: guests}
}

// Issue allocates a guest above domain.GuestIDBase and returns it with its
// encoded marker. An empty nickname gets a random one.
func (s *GuestService) Issue(ctx context.Context, nickname string) (*domain.Guest, string, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		nickname = RandomNickname()
	}
	if utf8.RuneCountInString(nickname) > maxNicknameLength || strings.ContainsAny(nickname, ",") {
		return nil, "", fmt.Errorf("%w: nickname must be at most %d characters without commas", ErrInvalidRequest, maxNicknameLength)
	}
	logCtx := logrus.WithField("nickname", nickname)

	seq, err := s.guests.NextSequence(ctx)
	if err != nil {
		logCtx.WithError(err).Error("GuestService: failed to allocate guest id")
		return nil, "", ErrInternalServer
	}
	guest := &domain.Guest{
		ID:        domain.GuestIDBase + seq,
		Nickname:  nickname,
		CreatedAt: time.Now(),
	}
	if err := s.guests.Save(ctx, guest); err != nil {
		logCtx.WithError(err).Error("GuestService: failed to store guest")
		return nil, "", ErrInternalServer
	}
	marker, err := EncodeGuestMarker(guest)
	if err != nil {
		logCtx.WithError(err).Error("GuestService: failed to encode guest marker")
		return nil, "", ErrInternalServer
	}

	logCtx.WithField("guest_id", guest.ID).Info("Guest issued")
	return guest, marker, nil
}

// RandomNickname returns an "AdjectiveNoun" pair.
func RandomNickname() string {
	return pick(nickAdjectives) + pick(nickNouns)
}

func pick(words []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return words[0]
	}
	return words[n.Int64()]
}
