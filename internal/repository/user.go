package repository

import (
	"context"

	"sketch-lobby/internal/domain"
)

// UserRepository stores member accounts.
type UserRepository interface {
	// FindByEmail returns ErrNotFound when no account uses the address.
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	// FindByID returns ErrNotFound when the account does not exist.
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	// Save creates or updates the account; ErrDuplicateEntry on a taken email.
	Save(ctx context.Context, user *domain.User) error
}
