package snapshot

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/forgefx/paperbot/internal/engine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Publisher periodically pushes the engine's current Snapshot to every
// connected client, independent of the engine's own cycle cadence — a
// dashboard open between candle closes still sees a steady heartbeat.
type Publisher struct {
	engine      *engine.Engine
	broadcaster *Broadcaster
	interval    time.Duration
	logger      *log.Logger
}

// NewPublisher creates a Publisher. Pass interval <= 0 for the 2s default.
func NewPublisher(eng *engine.Engine, b *Broadcaster, interval time.Duration, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Publisher{engine: eng, broadcaster: b, interval: interval, logger: logger}
}

// Run broadcasts the current snapshot every interval until ctx is canceled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := p.engine.Snapshot()
			p.broadcaster.Broadcast(Message{
				Type:      "snapshot",
				Data:      snap,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}

// Handler upgrades an HTTP request to a WebSocket connection and streams
// broadcaster messages to it until the client disconnects.
func Handler(b *Broadcaster, logger *log.Logger) http.HandlerFunc {
	if logger == nil {
		logger = log.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("snapshot: websocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		client := &Client{ID: r.RemoteAddr, Send: make(chan any, 256)}
		b.Register(client)
		defer b.Unregister(client)

		go writePump(conn, client, logger)
		readPump(conn, client, b, logger)
	}
}

func writePump(conn *websocket.Conn, client *Client, logger *log.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case message, ok := <-client.Send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(message); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Printf("snapshot: write error for %s: %v", client.ID, err)
				}
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readPump(conn *websocket.Conn, client *Client, b *Broadcaster, logger *log.Logger) {
	defer func() {
		b.Unregister(client)
		logger.Printf("snapshot: client %s disconnected", client.ID)
	}()
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Printf("snapshot: read error for %s: %v", client.ID, err)
			}
			return
		}
	}
}
