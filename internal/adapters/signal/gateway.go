// Package signal implements the signaling gateway: it authenticates
// connections, keeps the presence directory current, and routes call
// envelopes between endpoints without ever inspecting their payloads.
package signal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avorobev/peertalk/internal/core"
	"github.com/avorobev/peertalk/internal/domain"
	"github.com/avorobev/peertalk/internal/proto"
)

var ErrBackpressure = errors.New("backpressure")

// Options carries transport tunables from config.
type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
}

// Gateway is a stateless router: it holds no call state, only the live
// connections of this process and a view into the shared presence store.
type Gateway struct {
	id       string
	presence core.PresenceStore
	verifier core.TokenVerifier
	bus      core.EnvelopeBus
	opts     Options

	mu     sync.RWMutex
	byConn map[string]*localConn
	byUser map[domain.UserID]*localConn
}

// localConn pairs an authenticated identity with its transport. The user
// identity stamped on routed envelopes always comes from here, never from
// client-supplied payload fields.
type localConn struct {
	userID domain.UserID
	connID string
	sig    core.SignalConnection
}

func NewGateway(id string, presence core.PresenceStore, verifier core.TokenVerifier, b core.EnvelopeBus, opts Options) *Gateway {
	if opts.ReadLimit == 0 {
		opts.ReadLimit = 32768
	}
	if opts.PingPeriod == 0 {
		opts.PingPeriod = 54 * time.Second
	}
	return &Gateway{
		id:       id,
		presence: presence,
		verifier: verifier,
		bus:      b,
		opts:     opts,
		byConn:   make(map[string]*localConn),
		byUser:   make(map[domain.UserID]*localConn),
	}
}

// Start subscribes the gateway to the envelope bus so frames routed by other
// instances reach connections owned by this one.
func (g *Gateway) Start(ctx context.Context) error {
	return g.bus.Subscribe(ctx, g.id, func(f core.Frame) {
		env, err := proto.Decode(f)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad frame from bus")
			return
		}
		if env.Event == proto.EventOnlineUsers {
			g.deliverAll(f)
			return
		}
		if lc, ok := g.localByUser(env.To); ok {
			g.send(lc, f)
		}
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal authenticates and upgrades one connection, then serves it
// until the transport drops. Rejection happens before the upgrade and leaves
// no presence trace.
func (g *Gateway) HandleSignal(ctx context.Context, c *gin.Context) {
	uid, err := g.verifier.Verify(c.Request.Context(), connectToken(c))
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("connection rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	connID := uuid.NewString()
	log.Info().Str("module", "signal").Str("user", string(uid)).Str("conn", connID).Msg("new WS connection")

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	lc := &localConn{userID: uid, connID: connID, sig: conn}

	if err := g.presence.Register(ctx, domain.ConnHandle{
		UserID:      uid,
		ConnID:      connID,
		GatewayID:   g.id,
		ConnectedAt: time.Now(),
	}); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(uid)).Msg("presence register")
		// The write pump is not running yet, so the outage report goes out
		// synchronously before the socket closes.
		if frame, ferr := noticeFrame(proto.EventPresenceUnavailable, "presence store unavailable", ""); ferr == nil {
			_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			_ = ws.WriteMessage(websocket.TextMessage, frame)
		}
		conn.Close()
		return
	}
	g.addLocal(lc)
	g.broadcastOnline(ctx)

	go g.writePump(ctx, conn)
	go g.readPump(ctx, lc, conn)
}

// connectToken extracts the credential: Authorization bearer header first,
// then the token query param used by browser WebSocket clients.
func connectToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

func (g *Gateway) addLocal(lc *localConn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byConn[lc.connID] = lc
	g.byUser[lc.userID] = lc
}

// dropLocal removes the connection from the local maps. The per-user slot is
// cleared only while this connection still owns it, mirroring the store's
// ownership rule.
func (g *Gateway) dropLocal(lc *localConn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.byConn, lc.connID)
	if cur, ok := g.byUser[lc.userID]; ok && cur.connID == lc.connID {
		delete(g.byUser, lc.userID)
	}
}

func (g *Gateway) localByConn(connID string) (*localConn, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	lc, ok := g.byConn[connID]
	return lc, ok
}

func (g *Gateway) localByUser(uid domain.UserID) (*localConn, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	lc, ok := g.byUser[uid]
	return lc, ok
}

func (g *Gateway) locals() []*localConn {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*localConn, 0, len(g.byConn))
	for _, lc := range g.byConn {
		out = append(out, lc)
	}
	return out
}

// disconnect runs on any transport loss, graceful or not. Unregister is
// ownership-checked, so a reconnect that already overwrote the entry is safe.
// The store cleanup must still land when the connection's context is already
// canceled (shutdown), so it runs under its own deadline.
func (g *Gateway) disconnect(ctx context.Context, lc *localConn) {
	g.dropLocal(lc)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := g.presence.Unregister(ctx, lc.userID, lc.connID); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(lc.userID)).Msg("presence unregister")
		return
	}
	g.broadcastOnline(ctx)
}
