package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hpungsan/plate/internal/errors"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HandleEvents handles GET /ws?user_id=. It upgrades to a websocket and
// streams the user's job and entry events as JSON until either side closes.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		renderError(w, errors.NewInvalidRequest("user_id is required"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}
	defer conn.Close()

	subID, ch, cancel := h.hub.Subscribe(userID)
	defer cancel()

	h.logger.Debug().Str("subscriber_id", subID).Str("user_id", userID).Int("subscribers", h.hub.Count()).Msg("websocket client connected")

	// Reader: only control frames matter. A read error means the client left.
	done := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Warn().Err(err).Str("subscriber_id", subID).Msg("websocket error")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug().Err(err).Str("subscriber_id", subID).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
