// Package client is the Go-side consumer of the event server: a websocket
// connection plus the reconciliation and signaling layers wired to it.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mrosstech/vttless-sub000/internal/events"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	joinTimeout    = 10 * time.Second
)

var ErrJoinRejected = errors.New("join rejected by relay")

// Conn is one live connection to the event server.
type Conn struct {
	ws       *websocket.Conn
	outgoing chan []byte
	done     chan struct{}
	once     sync.Once
	log      zerolog.Logger

	// Room frames that arrived during the join handshake, replayed to the
	// Listen handler before live reads.
	backlog []events.Envelope
}

// Dial connects to the event server's websocket endpoint.
func Dial(ctx context.Context, serverURL string, log zerolog.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	ws.SetReadLimit(maxMessageSize)

	c := &Conn{
		ws:       ws,
		outgoing: make(chan []byte, 64),
		done:     make(chan struct{}),
		log:      log,
	}
	go c.writePump()
	return c, nil
}

// Send marshals and queues an event frame.
func (c *Conn) Send(event string, data any) error {
	frame, err := events.Marshal(event, data)
	if err != nil {
		return err
	}
	select {
	case c.outgoing <- frame:
		return nil
	case <-c.done:
		return errors.New("connection closed")
	}
}

// JoinCampaign performs the join handshake synchronously. Call it before
// Listen; it reads frames directly until the relay confirms or rejects.
func (c *Conn) JoinCampaign(campaignID, token string) (*events.Joined, error) {
	if err := c.Send(events.EventJoinCampaign, events.JoinCampaign{
		CampaignID: campaignID,
		Token:      token,
	}); err != nil {
		return nil, err
	}

	_ = c.ws.SetReadDeadline(time.Now().Add(joinTimeout))
	defer c.ws.SetReadDeadline(time.Time{})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("join handshake failed: %w", err)
		}
		var env events.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Event {
		case events.EventJoined:
			var joined events.Joined
			if err := json.Unmarshal(env.Data, &joined); err != nil {
				return nil, err
			}
			return &joined, nil
		case events.EventError:
			var relayErr events.Error
			_ = json.Unmarshal(env.Data, &relayErr)
			return nil, fmt.Errorf("%w: %s", ErrJoinRejected, relayErr.Message)
		default:
			// Room traffic can arrive before the join ack; keep it for Listen.
			c.backlog = append(c.backlog, env)
		}
	}
}

// Listen reads frames and hands each envelope to the handler. It blocks
// until the connection drops or Close is called.
func (c *Conn) Listen(handler func(events.Envelope)) error {
	defer c.Close()
	for _, env := range c.backlog {
		handler(env)
	}
	c.backlog = nil
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return nil
			default:
				return fmt.Errorf("read failed: %w", err)
			}
		}
		var env events.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn().Err(err).Msg("malformed frame from relay")
			continue
		}
		handler(env)
	}
}

func (c *Conn) writePump() {
	for {
		select {
		case frame := <-c.outgoing:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Warn().Err(err).Msg("write failed")
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
	return nil
}
