package realtime

import (
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"smmpanel/pkg/middleware"
	"smmpanel/services/user"
)

// pingInterval keeps proxies from closing idle streams.
const pingInterval = 30 * time.Second

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) Register(r *gin.Engine, authn gin.HandlerFunc, authorize gin.HandlerFunc) {
	r.GET("/api/admin/orders/realtime", authn, authorize, h.stream)
	r.GET("/api/user/orders/realtime", authn, authorize, h.stream)
}

func (h *Handler) stream(c *gin.Context) {
	role := middleware.UserRole(c)
	admin := role == user.RoleAdmin || role == user.RoleModerator

	sub := h.hub.Subscribe(middleware.UserID(c), admin)
	defer sub.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	writeEvent(c.Writer, Event{Type: "connected", Timestamp: time.Now()})
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			writeEvent(c.Writer, Event{Type: "ping", Timestamp: time.Now()})
			c.Writer.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			writeEvent(c.Writer, ev)
			c.Writer.Flush()
		}
	}
}

// Every frame carries the same envelope, control frames included, so
// clients parse one shape.
func writeEvent(w io.Writer, ev Event) {
	io.WriteString(w, "event: "+ev.Type+"\n")
	encoded, err := json.Marshal(ev)
	if err != nil {
		io.WriteString(w, "data: {}\n\n")
		return
	}
	io.WriteString(w, "data: "+string(encoded)+"\n\n")
}
