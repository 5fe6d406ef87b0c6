package repository

import (
	"context"

	"sketch-lobby/internal/domain"
)

// GuestRepository stores anonymous guest identities.
type GuestRepository interface {
	// NextSequence returns a fresh, strictly increasing sequence number.
	NextSequence(ctx context.Context) (uint64, error)
	// Save stores the guest until it expires.
	Save(ctx context.Context, guest *domain.Guest) error
	// FindByID returns ErrNotFound once the guest expired or never existed.
	FindByID(ctx context.Context, id uint64) (*domain.Guest, error)
}
