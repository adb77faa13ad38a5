package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mexc-gateway/internal/events"
)

const (
	wsBuffer     = 256
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// pushMessage is what /ws clients receive.
type pushMessage struct {
	Type events.Event `json:"type"`
	Data any          `json:"data"`
}

var pushedEvents = []events.Event{events.EventTick, events.EventOrder, events.EventTrade, events.EventPosition, events.EventAccount, events.EventLog}

// websocket streams gateway events until the client goes away.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	out := make(chan pushMessage, wsBuffer)
	done := make(chan struct{})
	var unsubs []func()
	for _, e := range pushedEvents {
		ch, unsub := s.Bus.Subscribe(e, wsBuffer)
		unsubs = append(unsubs, unsub)
		go func() {
			for payload := range ch {
				select {
				case out <- pushMessage{Type: e, Data: payload}:
				case <-done:
				}
			}
		}()
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
		close(done)
	}()

	// Reads only detect the client leaving.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case msg := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				s.log.Debug("ws write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
