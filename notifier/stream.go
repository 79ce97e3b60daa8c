package notifier

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	EventResync = "resync"
	EventChange = "change"
)

// StreamHandler serves change events as server-sent events. The first event
// is always resync: a client must re-fetch before trusting the deltas that
// follow. When the hub drops a slow client the stream ends and the client
// reconnects, which yields another resync.
func StreamHandler(hub *Hub, heartbeat time.Duration) gin.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return func(c *gin.Context) {
		events, cancel := hub.Subscribe()
		defer cancel()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		c.SSEvent(EventResync, gin.H{"at": time.Now().UTC()})
		c.Writer.Flush()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		ctx := c.Request.Context()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case ev, ok := <-events:
				if !ok {
					return false
				}
				c.SSEvent(EventChange, ev)
				return true
			case <-ticker.C:
				_, _ = io.WriteString(w, ": ping\n\n")
				return true
			}
		})
	}
}
