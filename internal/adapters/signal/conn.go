package signal

import (
	"sync"
	"time"

	"github.com/dkeye/CodeSync/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WsSignalConn is the relay's endpoint for one member. It implements
// core.SignalConnection; TrySend never blocks.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func NewWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// writePump drains the send queue and keeps the socket alive with pings.
func (c *WsSignalConn) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "adapters.signal").Msg("writePump ping error")
				c.Close()
				return
			}
		}
	}
}

func (c *WsSignalConn) write(mt int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(mt, data)
}
