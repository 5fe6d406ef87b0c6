package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sketch-lobby/internal/domain"
	wsHandler "sketch-lobby/internal/handler/websocket"
	"sketch-lobby/internal/hub"
	"sketch-lobby/internal/service"
)

type fakeBinder struct {
	mu    sync.Mutex
	bound map[string]uint
}

func (b *fakeBinder) BindSession(_ context.Context, roomID uint, credential, connectionID string) (domain.Identity, error) {
	if credential != "good" {
		return domain.Identity{}, service.ErrInvalidAuthToken
	}
	if roomID != 1 {
		return domain.Identity{}, service.ErrMembershipNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bound[connectionID] = roomID
	return domain.Identity{ID: 5, Nickname: "ann", Kind: domain.KindMember}, nil
}

type noPresence struct{}

func (noPresence) ListOthers(context.Context, uint, string) ([]string, error) { return nil, nil }

type recordedDepartures struct {
	lost chan string
}

func (d *recordedDepartures) SessionLost(_ context.Context, sessionID string, _ uint) error {
	d.lost <- sessionID
	return nil
}

func newServer(t *testing.T) (*httptest.Server, *fakeBinder, *recordedDepartures) {
	t.Helper()
	departures := &recordedDepartures{lost: make(chan string, 1)}
	h := hub.NewHub(noPresence{}, departures)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	srv, binder := serve(t, h)
	return srv, binder, departures
}

func serve(t *testing.T, h *hub.Hub) (*httptest.Server, *fakeBinder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	binder := &fakeBinder{bound: map[string]uint{}}
	router := gin.New()
	router.GET("/ws/rooms/:roomId", wsHandler.NewWebSocketHandler(h, binder, "").HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, binder
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestHandleConnection_RejectsBeforeUpgrade(t *testing.T) {
	srv, _, _ := newServer(t)

	cases := map[string]int{
		"/ws/rooms/1":            http.StatusUnauthorized,
		"/ws/rooms/1?token=bad":  http.StatusUnauthorized,
		"/ws/rooms/2?token=good": http.StatusNotFound,
		"/ws/rooms/x?token=good": http.StatusBadRequest,
	}
	for path, status := range cases {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, path), nil)
		require.Error(t, err, path)
		require.NotNil(t, resp, path)
		assert.Equal(t, status, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestHandleConnection_BindsAndSchedulesExitOnClose(t *testing.T) {
	srv, binder, departures := newServer(t)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/rooms/1?token=good"), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	binder.mu.Lock()
	require.Len(t, binder.bound, 1)
	var connectionID string
	for id := range binder.bound {
		connectionID = id
	}
	binder.mu.Unlock()

	require.NoError(t, conn.Close())

	select {
	case lost := <-departures.lost:
		assert.Equal(t, connectionID, lost)
	case <-time.After(3 * time.Second):
		t.Fatal("connection loss did not schedule an exit")
	}
}

func TestHandleConnection_HubBackloggedSchedulesExit(t *testing.T) {
	departures := &recordedDepartures{lost: make(chan string, 1)}
	// not running, so the queue only fills up
	h := hub.NewHub(noPresence{}, departures)
	for h.QueueMessage(hub.HubMessage{Type: "unregister"}) {
	}
	srv, binder := serve(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/rooms/1?token=good"), nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case lost := <-departures.lost:
		binder.mu.Lock()
		defer binder.mu.Unlock()
		_, bound := binder.bound[lost]
		assert.True(t, bound, "the exit targets the session that was bound")
	case <-time.After(3 * time.Second):
		t.Fatal("rejected connection left its session bound without an exit")
	}
}
