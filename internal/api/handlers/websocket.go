package handlers

import (
	"net/http"

	"github.com/dom/slash-backend/internal/api/respond"
	"github.com/dom/slash-backend/internal/service"
	"github.com/dom/slash-backend/internal/websocket"
	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Extension origins are not known ahead of time; the access token
	// authenticates the connection.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	hub    *websocket.Hub
	tokens *service.TokenService
}

func NewWebSocketHandler(hub *websocket.Hub, tokens *service.TokenService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		tokens: tokens,
	}
}

// Handle upgrades to a websocket that receives the caller's snippet change
// events. Browsers cannot set headers on websocket requests, so the access
// token comes in the query string.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.VerifyAccessToken(r.URL.Query().Get("token"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	userID, _ := claims.UserID()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "handlers.WebSocket").Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn, userID)
	h.hub.Register(client)

	if msg, err := websocket.NewMessage(websocket.MessageTypeConnected, websocket.ConnectedPayload{UserID: userID.String()}); err == nil {
		client.Send(msg)
	}

	go client.WritePump()
	go client.ReadPump()
}
