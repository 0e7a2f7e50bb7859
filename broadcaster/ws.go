package broadcaster

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsUpgrader mirrors the teacher's permissive origin policy for its
// outbound Stockbit client (Authorization/User-Agent headers, no
// origin allowlist) — this surface is internal/trusted the same way.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// ServeWS handles the /events/ws/live endpoint, upgrading the
// connection and relaying every broadcast message to it until the
// client disconnects or its backlog overflows.
func (b *Broker) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("broadcaster: ws upgrade: %v", err)
		return
	}
	defer conn.Close()

	sink := b.Subscribe()
	defer b.Unsubscribe(sink)

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	go drainReads(conn)

	for {
		select {
		case msg, ok := <-sink:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainReads discards inbound frames so the read side doesn't block
// close detection; this channel is publish-only from the server.
func drainReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
