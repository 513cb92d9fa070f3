package server

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"rts-server/internal/store"
)

const (
	inviteSize      = 256
	defaultMatches  = 20
	maxMatchesLimit = 100
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// MatchHistory is the read side of the match store.
type MatchHistory interface {
	RecentMatches(limit int) ([]store.MatchRow, error)
}

// RouteOptions holds what the HTTP handlers need besides the hub. History may
// be nil when persistence is disabled.
type RouteOptions struct {
	History   MatchHistory
	PublicURL string
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub, opts RouteOptions) *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("upgrade error", zap.Error(err))
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, hub.allocID(), ip)
		hub.register <- client
		// queued before the read pump can forward any command
		hub.authority.Connect(client)

		go client.WritePump()
		go client.ReadPump()
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		st, err := hub.authority.Status(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		st.Clients = hub.ClientCount()
		writeJSON(w, hub.log, st)
	})

	mux.HandleFunc("/matches", func(w http.ResponseWriter, r *http.Request) {
		limit := defaultMatches
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(n, maxMatchesLimit)
		}
		matches := []store.MatchRow{}
		if opts.History != nil {
			rows, err := opts.History.RecentMatches(limit)
			if err != nil {
				hub.log.Error("recent matches", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			matches = append(matches, rows...)
		}
		writeJSON(w, hub.log, matches)
	})

	mux.HandleFunc("/invite.png", func(w http.ResponseWriter, r *http.Request) {
		target := opts.PublicURL
		if target == "" {
			target = "http://" + r.Host
		}
		png, err := qrcode.Encode(target, qrcode.Medium, inviteSize)
		if err != nil {
			hub.log.Error("invite qr", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("write response", zap.Error(err))
	}
}
