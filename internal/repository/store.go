package repository

import "context"

// Store groups the repositories that take part in room transactions.
type Store interface {
	Rooms() RoomRepository
	Memberships() MembershipRepository
}

// Transactor runs fn atomically. Writes made through the Store handed to fn
// are committed together when fn returns nil and discarded otherwise.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// TxStore is a Store that can also open transactions.
type TxStore interface {
	Store
	Transactor
}
