package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/service"
)

// fakePresence answers ListOthers from a static room roster.
type fakePresence struct {
	mu    sync.Mutex
	rooms map[uint][]string
}

func (p *fakePresence) ListOthers(_ context.Context, roomID uint, caller string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo.Without(p.rooms[roomID], caller), nil
}

type lostSession struct {
	sessionID string
	roomID    uint
}

type fakeDepartures struct {
	lost chan lostSession
}

func (d *fakeDepartures) SessionLost(_ context.Context, sessionID string, roomID uint) error {
	d.lost <- lostSession{sessionID: sessionID, roomID: roomID}
	return nil
}

func newTestHub(rooms map[uint][]string) (*Hub, *fakeDepartures) {
	departures := &fakeDepartures{lost: make(chan lostSession, 8)}
	return NewHub(&fakePresence{rooms: rooms}, departures), departures
}

func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var ev Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected event: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegister_AnnouncesJoinToOthers(t *testing.T) {
	h, _ := newTestHub(map[uint][]string{1: {"a", "b"}})
	alice := NewClient(h, nil, "a", 1, domain.Identity{ID: 1, Nickname: "alice"})
	bob := NewClient(h, nil, "b", 1, domain.Identity{ID: 2, Nickname: "bob"})

	h.registerClient(alice)
	h.registerClient(bob)

	ev := nextEvent(t, alice)
	assert.Equal(t, EventJoined, ev.Type)
	require.NotNil(t, ev.Identity)
	assert.Equal(t, "bob", ev.Identity.Nickname)
}

func TestRelay_SkipsSender(t *testing.T) {
	h, _ := newTestHub(map[uint][]string{1: {"a", "b"}})
	alice := NewClient(h, nil, "a", 1, domain.Identity{ID: 1, Nickname: "alice"})
	bob := NewClient(h, nil, "b", 1, domain.Identity{ID: 2, Nickname: "bob"})
	h.clients["a"] = alice
	h.clients["b"] = bob

	h.relay(alice, []byte(`{"stroke":[1,2,3]}`))

	ev := nextEvent(t, bob)
	assert.Equal(t, EventMessage, ev.Type)
	assert.JSONEq(t, `{"stroke":[1,2,3]}`, string(ev.Payload))
	assert.Equal(t, uint64(1), ev.Identity.ID)
	assertSilent(t, alice)
}

func TestRelay_RejectsInvalidJSON(t *testing.T) {
	h, _ := newTestHub(map[uint][]string{1: {"a", "b"}})
	alice := NewClient(h, nil, "a", 1, domain.Identity{ID: 1})
	bob := NewClient(h, nil, "b", 1, domain.Identity{ID: 2})
	h.clients["a"] = alice
	h.clients["b"] = bob

	h.relay(alice, []byte("not json"))

	assert.Equal(t, EventError, nextEvent(t, alice).Type)
	assertSilent(t, bob)
}

func TestUnregister_SchedulesExit(t *testing.T) {
	h, departures := newTestHub(map[uint][]string{1: {"a"}})
	alice := NewClient(h, nil, "a", 1, domain.Identity{ID: 1})
	h.clients["a"] = alice

	h.unregisterClient(alice)

	select {
	case lost := <-departures.lost:
		assert.Equal(t, lostSession{sessionID: "a", roomID: 1}, lost)
	case <-time.After(time.Second):
		t.Fatal("departure not scheduled")
	}
	_, open := <-alice.send
	assert.False(t, open)
	assert.NotContains(t, h.clients, "a")
}

func TestUnregister_StaleClientIgnored(t *testing.T) {
	h, departures := newTestHub(nil)
	old := NewClient(h, nil, "a", 1, domain.Identity{ID: 1})
	fresh := NewClient(h, nil, "a", 1, domain.Identity{ID: 1})
	h.clients["a"] = fresh

	h.unregisterClient(old)

	assert.Same(t, fresh, h.clients["a"])
	select {
	case <-departures.lost:
		t.Fatal("stale unregister must not schedule an exit")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemberLeft_BroadcastsHostChange(t *testing.T) {
	h, _ := newTestHub(map[uint][]string{1: {"b", "c"}})
	bob := NewClient(h, nil, "b", 1, domain.Identity{ID: 2, Nickname: "bob"})
	carol := NewClient(h, nil, "c", 1, domain.Identity{ID: 3, Nickname: "carol"})
	h.clients["b"] = bob
	h.clients["c"] = carol
	newHost := bob.identity

	h.MemberLeft(context.Background(), service.ExitResult{
		RoomID:    1,
		Departed:  domain.Identity{ID: 1, Nickname: "alice"},
		SessionID: "a",
		NewHost:   &newHost,
	})

	for _, c := range []*Client{bob, carol} {
		left := nextEvent(t, c)
		assert.Equal(t, EventLeft, left.Type)
		assert.Equal(t, "alice", left.Identity.Nickname)
		changed := nextEvent(t, c)
		assert.Equal(t, EventHostChanged, changed.Type)
		assert.Equal(t, uint64(2), changed.NewHost.ID)
	}
}

func TestMemberLeft_DeletedRoomIsSilent(t *testing.T) {
	h, _ := newTestHub(map[uint][]string{1: {"b"}})
	bob := NewClient(h, nil, "b", 1, domain.Identity{ID: 2})
	h.clients["b"] = bob

	h.MemberLeft(context.Background(), service.ExitResult{RoomID: 1, RoomDeleted: true})

	assertSilent(t, bob)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h, _ := newTestHub(map[uint][]string{})
	alice := NewClient(h, nil, "a", 1, domain.Identity{ID: 1})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	require.True(t, h.QueueMessage(HubMessage{Type: "register", Client: alice}))
	require.Eventually(t, func() bool {
		h.clientsMu.RLock()
		defer h.clientsMu.RUnlock()
		return h.clients["a"] != nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	_, open := <-alice.send
	assert.False(t, open)
}
