package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avorobev/peertalk/internal/core"
	"github.com/avorobev/peertalk/internal/domain"
	"github.com/avorobev/peertalk/internal/presence"
	"github.com/avorobev/peertalk/internal/proto"
)

// staticVerifier accepts any credential as a fixed identity.
type staticVerifier domain.UserID

func (v staticVerifier) Verify(context.Context, string) (domain.UserID, error) {
	return domain.UserID(v), nil
}

func signalServer(t *testing.T, gw *Gateway) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { gw.HandleSignal(context.Background(), c) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialSignal(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=any"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func TestRegisterFailureSurfacesOutageBeforeClose(t *testing.T) {
	gw := NewGateway("gw-1", failingStore{}, staticVerifier("alice"), newRecordBus(), Options{})
	srv := signalServer(t, gw)
	ws := dialSignal(t, srv)

	// The outage report must arrive before the socket drops, even though
	// the write pump never ran for this connection.
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err, "client must see the outage report, not just a dropped socket")
	env, err := proto.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, proto.EventPresenceUnavailable, env.Event)
	var n proto.Notice
	require.NoError(t, json.Unmarshal(env.Data, &n))
	assert.Equal(t, string(proto.EventPresenceUnavailable), n.Code)

	_, _, err = ws.ReadMessage()
	assert.Error(t, err, "the connection closes after the report")
}

func TestConnectRegistersAndBroadcastsOnline(t *testing.T) {
	store := presence.NewMemoryStore()
	gw := NewGateway("gw-1", store, staticVerifier("alice"), newRecordBus(), Options{})
	srv := signalServer(t, gw)
	ws := dialSignal(t, srv)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := proto.Decode(data)
	require.NoError(t, err)
	require.Equal(t, proto.EventOnlineUsers, env.Event)
	var ou proto.OnlineUsers
	require.NoError(t, json.Unmarshal(env.Data, &ou))
	assert.Equal(t, []domain.UserID{"alice"}, ou.Users)

	_, found, err := store.Lookup(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRejectedCredentialLeavesNoPresenceTrace(t *testing.T) {
	store := presence.NewMemoryStore()
	gw := NewGateway("gw-1", store, rejectVerifier{}, newRecordBus(), Options{})
	srv := signalServer(t, gw)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bad"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	users, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}

type rejectVerifier struct{}

func (rejectVerifier) Verify(context.Context, string) (domain.UserID, error) {
	return "", core.ErrAuthRejected
}

// canceledAwareStore refuses work once the caller's context is canceled,
// the way a real network client does.
type canceledAwareStore struct {
	core.PresenceStore
}

func (s canceledAwareStore) Unregister(ctx context.Context, uid domain.UserID, connID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.PresenceStore.Unregister(ctx, uid, connID)
}

func TestDisconnectCleansUpUnderCanceledContext(t *testing.T) {
	store := canceledAwareStore{presence.NewMemoryStore()}
	gw := NewGateway("gw-1", store, staticVerifier("alice"), newRecordBus(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	lc := &localConn{userID: "alice", connID: "conn-1", sig: &recordConn{}}
	require.NoError(t, store.Register(ctx, domain.ConnHandle{
		UserID: "alice", ConnID: lc.connID, GatewayID: "gw-1",
	}))
	gw.addLocal(lc)

	// Server shutdown cancels the connection context before cleanup runs.
	cancel()
	gw.disconnect(ctx, lc)

	_, found, err := store.Lookup(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, found, "shutdown must not strand the shared-store entry")
}
