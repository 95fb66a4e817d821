// Package snapshot streams the engine's read-only Snapshot to connected
// WebSocket clients (a browser dashboard, an operator's terminal UI) so a
// slow or disconnected client can never slow down the trading loop itself.
package snapshot

import (
	"log"
	"sync"
)

// Client is one connected WebSocket consumer.
type Client struct {
	ID   string
	Send chan any
}

// Message is the envelope written to every client.
type Message struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Broadcaster fans a stream of messages out to every registered client,
// dropping a message for any client whose send buffer is full rather than
// blocking the whole broadcast on one slow reader.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*Client]bool

	broadcast  chan any
	register   chan *Client
	unregister chan *Client
	shutdown   chan struct{}
	shutOnce   sync.Once

	logger *log.Logger
}

// NewBroadcaster creates a Broadcaster. Call Run in its own goroutine.
func NewBroadcaster(logger *log.Logger) *Broadcaster {
	if logger == nil {
		logger = log.Default()
	}
	return &Broadcaster{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan any, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		shutdown:   make(chan struct{}),
		logger:     logger,
	}
}

// Register adds a client to the broadcast set.
func (b *Broadcaster) Register(c *Client) {
	select {
	case b.register <- c:
	case <-b.shutdown:
	}
}

// Unregister removes a client from the broadcast set and closes its Send
// channel. Safe to call more than once for the same client.
func (b *Broadcaster) Unregister(c *Client) {
	select {
	case b.unregister <- c:
	case <-b.shutdown:
	}
}

// Broadcast enqueues message for delivery to every registered client.
func (b *Broadcaster) Broadcast(message any) {
	select {
	case b.broadcast <- message:
	case <-b.shutdown:
	}
}

// ClientCount reports how many clients are currently registered.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Run drives the broadcaster's event loop until Shutdown is called. It
// must run in its own goroutine for the lifetime of the process.
func (b *Broadcaster) Run() {
	defer b.logger.Println("snapshot: broadcaster stopped")
	for {
		select {
		case c := <-b.register:
			b.mu.Lock()
			b.clients[c] = true
			n := len(b.clients)
			b.mu.Unlock()
			b.logger.Printf("snapshot: client %s registered (total: %d)", c.ID, n)

		case c := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[c]; ok {
				delete(b.clients, c)
				close(c.Send)
			}
			n := len(b.clients)
			b.mu.Unlock()
			b.logger.Printf("snapshot: client %s unregistered (total: %d)", c.ID, n)

		case msg := <-b.broadcast:
			b.mu.RLock()
			targets := make([]*Client, 0, len(b.clients))
			for c := range b.clients {
				targets = append(targets, c)
			}
			b.mu.RUnlock()
			for _, c := range targets {
				select {
				case c.Send <- msg:
				default:
					b.logger.Printf("snapshot: client %s send buffer full, dropping message", c.ID)
				}
			}

		case <-b.shutdown:
			return
		}
	}
}

// Shutdown closes every client's Send channel and stops Run. Safe to call
// more than once.
func (b *Broadcaster) Shutdown() {
	b.shutOnce.Do(func() {
		b.mu.Lock()
		for c := range b.clients {
			close(c.Send)
		}
		b.clients = make(map[*Client]bool)
		b.mu.Unlock()
		close(b.shutdown)
	})
}
