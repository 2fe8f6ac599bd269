package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrosstech/vttless-sub000/config"
	"github.com/mrosstech/vttless-sub000/internal/presence"
	"github.com/mrosstech/vttless-sub000/internal/relay"
)

// NewRouter assembles the event server's HTTP surface: health probe, live
// presence lookup and the websocket endpoint.
func NewRouter(cfg *config.Config, rl *relay.Relay, store *presence.Store) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "eventserver"})
	})

	router.GET("/campaigns/:campaignId/presence", func(c *gin.Context) {
		campaignID := c.Param("campaignId")
		if store == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence tracking disabled"})
			return
		}
		count, err := store.Count(c.Request.Context(), campaignID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "presence lookup failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"campaignId": campaignID, "online": count})
	})

	router.GET("/ws", func(c *gin.Context) {
		rl.ServeWS(c)
	})

	return router
}
