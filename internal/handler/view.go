package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"detectview/internal/logger"
	hub "detectview/internal/service/websocket"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewWebsocketHandler handles viewer connections over WebSocket and
// registers them in the HubService to receive every published frame.
// A {"type":"snapshot_request"} message resends the current frame.
func ViewWebsocketHandler(hubService *hub.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		connection.SetReadLimit(1 << 20)
		_ = connection.SetReadDeadline(time.Now().Add(hub.PongWait))
		connection.SetPongHandler(func(string) error {
			return connection.SetReadDeadline(time.Now().Add(hub.PongWait))
		})

		hubService.Register(connection)
		defer hubService.Unregister(connection)

		logger.Info("Viewer connected")

		for {
			messageType, payload, err := connection.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Viewer disconnected normally")
				} else {
					logger.Warning("Viewer disconnected with error: %v", err)
				}
				break
			}
			if messageType != websocket.TextMessage {
				continue
			}

			var request struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(payload, &request); err != nil {
				continue
			}
			if request.Type == "snapshot_request" {
				hubService.SendSnapshot(connection)
			}
		}
	}
}
