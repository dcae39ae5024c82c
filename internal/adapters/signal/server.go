package signal

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/CodeSync/internal/app/relay"
	"github.com/dkeye/CodeSync/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type ServerConfig struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

// RelayWSController upgrades session connections and pumps them through the hub.
type RelayWSController struct {
	Hub *relay.Hub
	Cfg ServerConfig
}

func NewRelayWSController(hub *relay.Hub, cfg ServerConfig) *RelayWSController {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 54 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &RelayWSController{Hub: hub, Cfg: cfg}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleSession serves GET /ws?roomId=...&username=...
func (ctl *RelayWSController) HandleSession(ctx context.Context, c *gin.Context) {
	sid := domain.SessionID(c.Query("roomId"))
	if sid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing roomId"})
		return
	}
	username, err := domain.NormalizeUsername(c.Query("username"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("ws upgrade")
		return
	}
	if ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	conn := NewWsSignalConn(ws, ctl.Cfg.SendBuffer)
	member := &relay.Member{
		ID:       domain.ConnectionID(uuid.NewString()),
		Username: username,
		Conn:     conn,
	}
	log.Info().Str("module", "adapters.signal").Str("session", string(sid)).Str("sid", string(member.ID)).Str("username", username).Msg("new WS connection")

	go conn.writePump(ctl.Cfg.PingPeriod)
	ctl.Hub.Join(sid, member)
	go ctl.readPump(ctx, sid, member, conn)
}

func (ctl *RelayWSController) readPump(ctx context.Context, sid domain.SessionID, m *relay.Member, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "adapters.signal").Str("sid", string(m.ID)).Msg("readPump closing")
		ctl.Hub.Leave(sid, m.ID)
		c.Close()
	}()

	pongWait := ctl.Cfg.PingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("module", "adapters.signal").Str("sid", string(m.ID)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := ctl.Hub.Route(sid, m.ID, data); err != nil {
			lvl := log.Debug()
			if errors.Is(err, relay.ErrRateLimited) {
				lvl = log.Warn()
			}
			lvl.Err(err).Str("module", "adapters.signal").Str("sid", string(m.ID)).Msg("route")
		}
	}
}
