// Package lock provides per-key mutual exclusion.
package lock

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Keyed serializes callers that share a key while unrelated keys proceed in
// parallel. Entries are dropped once nobody holds or waits for them.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

// NewKeyed returns an empty Keyed lock.
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// RoomKey and IdentityKey name the two lock domains used by room operations.
func RoomKey(roomID uint) string { return fmt.Sprintf("room:%d", roomID) }

func IdentityKey(identityID uint64) string { return fmt.Sprintf("identity:%d", identityID) }

// Lock acquires every key in sorted order, so two callers asking for the
// same set never deadlock. It gives up with ctx.Err() when ctx ends first;
// in that case nothing stays held. The returned func releases all keys.
func (k *Keyed) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.release(held[i])
		}
	}

	for _, key := range keys {
		e := k.acquireRef(key)
		select {
		case e.sem <- struct{}{}:
			held = append(held, key)
		case <-ctx.Done():
			k.dropRef(key)
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (k *Keyed) acquireRef(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) dropRef(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e := k.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

func (k *Keyed) release(key string) {
	k.mu.Lock()
	e := k.entries[key]
	k.mu.Unlock()
	<-e.sem
	k.dropRef(key)
}

// size reports how many keys are tracked.
func (k *Keyed) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func normalize(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	j := 0
	for i, key := range out {
		if i > 0 && key == out[j-1] {
			continue
		}
		out[j] = key
		j++
	}
	return out[:j]
}
