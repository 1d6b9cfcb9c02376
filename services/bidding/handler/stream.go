package handler

import (
	"io"
	"time"

	"silent-auction/internal/repository"
	"silent-auction/utils"

	"github.com/gin-gonic/gin"
)

// KeepAliveInterval is how often an idle stream sends a ping event
var KeepAliveInterval = 15 * time.Second

// streamFeed forwards every snapshot of feed to the client as a server-sent
// event until the client goes away or the feed ends.
func streamFeed[T any](c *gin.Context, handlerName, event string, feed *repository.Feed[T]) {
	defer feed.Cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()

	sent := 0
	c.Stream(func(w io.Writer) bool {
		select {
		case v, ok := <-feed.Updates():
			if !ok {
				return false
			}
			c.SSEvent(event, v)
			sent++
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})

	utils.Debug(handlerName+": stream closed", map[string]any{"path": c.Request.URL.Path, "events": sent})
}
