package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Roomscribe/internal/adapters/rtc"
	"github.com/dkeye/Roomscribe/internal/app/orch"
	"github.com/dkeye/Roomscribe/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ReadLimit        int64
	SendQueue        int
	PingPeriod       time.Duration
	HeartbeatTimeout time.Duration
	WriteTimeout     time.Duration
	JoinLimit        int
	JoinInterval     time.Duration
	ICEServers       []string
}

func (c Config) withDefaults() Config {
	if c.ReadLimit <= 0 {
		c.ReadLimit = 4 << 20
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 64
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 30 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.HeartbeatTimeout {
		c.PingPeriod = c.HeartbeatTimeout * 9 / 10
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.JoinLimit <= 0 {
		c.JoinLimit = 10
	}
	if c.JoinInterval <= 0 {
		c.JoinInterval = time.Minute
	}
	return c
}

type SignalWSController struct {
	Orch  *orch.Orchestrator
	Cfg   Config
	joins *JoinRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, cfg Config) *SignalWSController {
	cfg = cfg.withDefaults()
	return &SignalWSController{
		Orch:  o,
		Cfg:   cfg,
		joins: NewJoinRateLimiter(cfg.JoinLimit, cfg.JoinInterval),
	}
}

// WsSignalConn is one client websocket. It implements core.SignalConnection.
type WsSignalConn struct {
	conn  *websocket.Conn
	send  chan core.Frame
	token string

	mu     sync.RWMutex
	closed bool
	peer   *rtc.Peer
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// setPeer swaps in a new media peer and returns the one it replaced.
func (c *WsSignalConn) setPeer(p *rtc.Peer) *rtc.Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.peer
	c.peer = p
	return old
}

func (c *WsSignalConn) currentPeer() *rtc.Peer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peer
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until it closes.
// The client token set by the session middleware identifies the caller when
// join omits userId.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("client", token).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn:  ws,
		send:  make(chan core.Frame, ctl.Cfg.SendQueue),
		token: token,
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, conn)
	}()
}
