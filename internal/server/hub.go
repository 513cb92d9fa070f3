// Package server exposes the game session over websockets: the connection
// hub, the per-client pumps and the actor that owns authoritative state.
package server

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"rts-server/internal/auth"
	"rts-server/internal/netsync"
)

const (
	defaultMaxConnsPerIP = 5
	defaultMaxTotalConns = 1000
)

// HubOptions configures connection limits and collaborators. Auth may be nil
// to run without accounts.
type HubOptions struct {
	MaxConnsPerIP int
	MaxTotalConns int
	Auth          *auth.Auth
	Logger        *zap.Logger
}

// Hub manages all connected clients and hands them to the authority
type Hub struct {
	mu         sync.RWMutex
	clients    map[netsync.ConnID]*Client
	nextID     netsync.ConnID
	register   chan *Client
	unregister chan *Client
	authority  *Authority
	auth       *auth.Auth
	log        *zap.Logger
	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu        sync.Mutex
	ipConns       map[string]int
	totalConns    int
	maxConnsPerIP int
	maxTotalConns int
}

// NewHub creates a new Hub feeding authority
func NewHub(authority *Authority, opts HubOptions) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxConnsPerIP <= 0 {
		opts.MaxConnsPerIP = defaultMaxConnsPerIP
	}
	if opts.MaxTotalConns <= 0 {
		opts.MaxTotalConns = defaultMaxTotalConns
	}
	return &Hub{
		clients:       make(map[netsync.ConnID]*Client),
		register:      make(chan *Client, 64),
		unregister:    make(chan *Client, 64),
		authority:     authority,
		auth:          opts.Auth,
		log:           opts.Logger,
		ipConns:       make(map[string]int),
		maxConnsPerIP: opts.MaxConnsPerIP,
		maxTotalConns: opts.MaxTotalConns,
	}
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= h.maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= h.maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// allocID hands out connection ids starting at 1; 0 is the server.
func (h *Hub) allocID() netsync.ConnID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	return h.nextID
}

// Run processes register/unregister events until ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			h.authority.Disconnect(client.id)

		case <-ctx.Done():
			return
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
