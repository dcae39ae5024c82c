package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/CodeSync/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed       = errors.New("signal: connection closed")
	ErrBackpressure = errors.New("signal: backpressure")
)

const writeWait = 5 * time.Second

type DialConfig struct {
	URL        string
	Session    string
	Name       string
	SendBuffer int
	ReadLimit  int64
}

// Client is the participant side of the relay connection. Sends are queued
// and written by a single pump, so relay order equals Send order. The client
// never reconnects.
type Client struct {
	conn *websocket.Conn
	send chan core.Frame
	in   chan core.Message
	stop chan struct{}

	mu     sync.RWMutex
	closed bool
	err    error
	wdone  chan struct{}
	rdone  chan struct{}
	once   sync.Once
}

// Dial connects to the relay for the given session and display name.
func Dial(ctx context.Context, cfg DialConfig) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("roomId", cfg.Session)
	q.Set("username", cfg.Name)
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	if cfg.ReadLimit > 0 {
		ws.SetReadLimit(cfg.ReadLimit)
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	c := newClient(ws, cfg.SendBuffer)
	log.Info().Str("module", "adapters.signal").Str("relay", cfg.URL).Str("session", cfg.Session).Msg("connected")
	return c, nil
}

func newClient(ws *websocket.Conn, buffer int) *Client {
	c := &Client{
		conn:  ws,
		send:  make(chan core.Frame, buffer),
		in:    make(chan core.Message, buffer),
		stop:  make(chan struct{}),
		wdone: make(chan struct{}),
		rdone: make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	return c
}

// Send queues m for the relay.
func (c *Client) Send(m core.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Action, err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

// Messages yields inbound messages in relay order and is closed when the
// connection ends.
func (c *Client) Messages() <-chan core.Message { return c.in }

// Err reports the transport failure that ended the connection, or nil if it
// was closed locally.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Close flushes queued sends, then closes the socket.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		close(c.stop)
	})
	<-c.wdone
	<-c.rdone
	return nil
}

func (c *Client) writePump() {
	defer close(c.wdone)
	for data := range c.send {
		if err := c.write(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump write error")
			c.fail(err)
			_ = c.conn.Close()
			// Drain so Close never blocks on a dead writer.
			for range c.send {
			}
			return
		}
	}
	_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}

func (c *Client) readPump() {
	defer func() {
		close(c.in)
		close(c.rdone)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				log.Error().Err(err).Str("module", "adapters.signal").Msg("readPump read error")
				c.fail(err)
				_ = c.conn.Close()
			}
			return
		}
		msg, err := core.ParseMessage(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.signal").Msg("bad envelope")
			continue
		}
		select {
		case c.in <- msg:
		case <-c.stop:
			return
		}
	}
}

func (c *Client) write(mt int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(mt, data)
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil && !c.closed {
		c.err = fmt.Errorf("relay disconnected: %w", err)
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
