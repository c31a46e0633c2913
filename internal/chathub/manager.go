package chathub

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	jww "github.com/spf13/jwalterweatherman"
)

// Hub tracks every live stream client of this node so they can be counted
// and closed together on shutdown.
type Hub struct {
	Clients map[Client]struct{}

	RegisterCh   chan Client
	UnregisterCh chan Client

	count    atomic.Int64
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		Clients:      make(map[Client]struct{}),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Run owns the client set until Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case c := <-h.RegisterCh:
			h.Clients[c] = struct{}{}
			h.count.Store(int64(len(h.Clients)))
			jww.DEBUG.Printf("Stream client registered: user=%s topic=%s", c.GetUserID(), c.GetTopic())

		case c := <-h.UnregisterCh:
			if _, ok := h.Clients[c]; ok {
				delete(h.Clients, c)
				h.count.Store(int64(len(h.Clients)))
				c.Close(websocket.CloseNormalClosure, "")
				jww.DEBUG.Printf("Stream client unregistered: user=%s topic=%s", c.GetUserID(), c.GetTopic())
			}

		case <-h.quit:
			for c := range h.Clients {
				c.Close(websocket.CloseGoingAway, "server shutting down")
				delete(h.Clients, c)
			}
			h.count.Store(0)
			jww.INFO.Println("Stream hub stopped")
			return
		}
	}
}

// Register adds c to the hub. It reports false once the hub has stopped.
func (h *Hub) Register(c Client) bool {
	select {
	case h.RegisterCh <- c:
		return true
	case <-h.quit:
		return false
	}
}

// Unregister removes c and closes it. It never blocks after Shutdown.
func (h *Hub) Unregister(c Client) {
	select {
	case h.UnregisterCh <- c:
	case <-h.quit:
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	return int(h.count.Load())
}

// Shutdown closes every client with a going-away close frame and waits for
// Run to return. Run must have been started.
func (h *Hub) Shutdown() {
	h.quitOnce.Do(func() { close(h.quit) })
	<-h.done
}
