package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/qzr8/dealer_go_portal/internal/api/middleware"
	"github.com/qzr8/dealer_go_portal/internal/pkg/response"
	"github.com/qzr8/dealer_go_portal/internal/pkg/ws"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict Origin to cfg.CORS.AllowedOrigins
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type WebSocketHandler struct {
	hub *ws.Hub
}

func NewWebSocketHandler(hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// Handle upgrades the connection and subscribes it to the owner's job
// events. Browsers pass the session in the query string.
// GET /api/v1/ws?session=xxx
func (h *WebSocketHandler) Handle(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	client := &ws.Client{
		OwnerID: session.User.ID,
		Conn:    conn,
	}

	h.hub.Register(client)

	// keep reading to detect disconnects
	go func() {
		defer h.hub.Unregister(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
