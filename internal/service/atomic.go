package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/lock"
	"sketch-lobby/internal/repository"
)

const defaultTxTimeout = 3 * time.Second

// atomicRunner serializes writers on the keys they touch and runs their
// writes in one transaction, both bounded by a timeout.
type atomicRunner struct {
	store   repository.TxStore
	locks   *lock.Keyed
	timeout time.Duration
}

func newAtomicRunner(store repository.TxStore, locks *lock.Keyed, timeout time.Duration) atomicRunner {
	if store == nil {
		panic("TxStore cannot be nil")
	}
	if locks == nil {
		panic("keyed lock cannot be nil")
	}
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return atomicRunner{store: store, locks: locks, timeout: timeout}
}

func (a atomicRunner) run(ctx context.Context, keys []string, fn func(ctx context.Context, tx repository.Store) error) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	unlock, err := a.locks.Lock(ctx, keys...)
	if err != nil {
		return fmt.Errorf("%w: waiting for %v: %v", ErrInternalServer, keys, err)
	}
	defer unlock()

	return a.store.WithinTransaction(ctx, fn)
}

// isKnown reports whether err belongs to the caller-facing taxonomy.
func isKnown(err error) bool {
	return Code(err) != "INTERNAL" || errors.Is(err, ErrInternalServer)
}

// internalError logs an unexpected failure and hides it behind
// ErrInternalServer. Known errors pass through unchanged.
func internalError(logCtx *logrus.Entry, op string, err error) error {
	if isKnown(err) {
		return err
	}
	logCtx.WithError(err).Errorf("%s failed", op)
	return fmt.Errorf("%w: %s", ErrInternalServer, op)
}
