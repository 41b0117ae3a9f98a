package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tt-club/tournament-system/realtime"
	"github.com/tt-club/tournament-system/services"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict Origin once the frontend domain is fixed.
		return true
	},
}

type WebSocketHandler struct {
	hub    *realtime.Hub
	logger *slog.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, logger: logger}
}

// ServeWs upgrades the connection and subscribes the client. An optional
// ?tournament=<id> query joins that tournament's room; without it the client
// receives only global broadcasts.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	room := ""
	if raw := r.URL.Query().Get("tournament"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			http.Error(w, "invalid tournament parameter", http.StatusBadRequest)
			return
		}
		room = services.TournamentRoom(id)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	client := h.hub.NewClient(conn, room)
	go client.WritePump()
	go client.ReadPump()

	h.logger.Debug("websocket client connected",
		slog.String("client_id", client.ID), slog.String("room", room))
}
