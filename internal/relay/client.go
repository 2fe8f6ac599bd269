package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrBackpressure = errors.New("client send buffer full")

// Client is one live WebSocket connection to the relay. Identity (UserID,
// UserName) is pinned by the first verified join and never rewritten.
// inVideo is touched only by the connection's own read pump.
//
// send is never closed: another room member may still hold a membership
// snapshot from before this client was removed and enqueue into it. The
// write pump exits through the write error that follows conn.Close instead.
type Client struct {
	ID       string
	UserID   string
	UserName string

	conn    *websocket.Conn
	send    chan []byte
	once    sync.Once
	inVideo bool
}

func newClient(id string, conn *websocket.Conn, sendBuffer int) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// enqueue hands a frame to the client's writer. Delivery is best-effort: a
// slow consumer with a full buffer loses the frame rather than stalling the
// sender's room.
func (c *Client) enqueue(frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) readPump(rl *Relay) {
	defer func() {
		rl.disconnect(c)
		c.close()
	}()

	c.conn.SetReadLimit(rl.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(rl.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(rl.cfg.PongWait))
		rl.touchPresence(c)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				rl.log.Warn().Err(err).Str("client", c.ID).Msg("websocket read error")
			}
			return
		}
		rl.HandleMessage(c, data)
	}
}

func (c *Client) writePump(rl *Relay) {
	ticker := time.NewTicker(rl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(rl.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				rl.log.Warn().Err(err).Str("client", c.ID).Msg("websocket write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(rl.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
