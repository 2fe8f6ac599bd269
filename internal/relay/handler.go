package relay

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware.
		return true
	},
}

// ServeWS upgrades the HTTP request and starts the connection's pumps. Room
// membership happens later, when the client sends joinCampaign.
func (rl *Relay) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		rl.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(uuid.New().String(), conn, rl.cfg.SendBuffer)
	rl.log.Info().Str("client", client.ID).Msg("connection opened")

	go client.writePump(rl)
	go client.readPump(rl)
}
