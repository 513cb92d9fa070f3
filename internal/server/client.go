package server

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"rts-server/internal/netsync"
	"rts-server/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	idleTimeout    = 60 * time.Second
	keepAlive      = (idleTimeout * 9) / 10
	maxCommandSize = 4096
	sendBufSize    = 256

	// commands per second a client may sustain, and the burst on top
	commandRate  = 20
	commandBurst = 50
)

// frameMarker prefixes queued frames that go out as binary messages.
const frameMarker = 0xFF

// Client represents a WebSocket connection
type Client struct {
	id         netsync.ConnID
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	log        *zap.Logger
	commands   *rate.Limiter

	accountID int64  // 0 = guest
	username  string // "" = guest
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, id netsync.ConnID, remoteAddr string) *Client {
	return &Client{
		id:         id,
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
		log:        hub.log.With(zap.Int32("conn", int32(id)), zap.String("ip", remoteAddr)),
		commands:   rate.NewLimiter(commandRate, commandBurst),
	}
}

func (c *Client) ID() netsync.ConnID { return c.id }

// ReadPump forwards text commands until the socket fails, goes idle or the
// client floods.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxCommandSize)
	c.extendIdle()
	c.conn.SetPongHandler(func(string) error {
		c.extendIdle()
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("ws error", zap.Error(err))
			}
			return
		}
		if !c.commands.Allow() {
			c.log.Warn("command rate exceeded",
				zap.Float64("limit", float64(c.commands.Limit())),
				zap.Int("burst", c.commands.Burst()))
			c.Kick("too many commands")
			return
		}
		// clients never send binary
		if msgType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

func (c *Client) extendIdle() {
	c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
}

// WritePump drains the send queue onto the socket and keeps it alive with
// pings. An empty entry or a closed queue ends the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(keepAlive)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok || len(message) == 0 {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			if err := c.write(message); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// write sends one queued entry: a replication frame when marked, otherwise a
// JSON envelope.
func (c *Client) write(message []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if message[0] == frameMarker {
		return c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
	}
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// SendJSON sends an envelope of type t to the client
func (c *Client) SendJSON(t string, data interface{}) {
	raw, err := protocol.Encode(t, data)
	if err != nil {
		c.log.Error("marshal error", zap.Error(err))
		return
	}
	c.SendRaw(raw)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary queues an encoded replication frame.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = frameMarker
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// Kick tells the client why and closes the connection once the queue drains.
func (c *Client) Kick(reason string) {
	c.log.Info("kicking client", zap.String("reason", reason))
	c.SendJSON(protocol.MsgError, protocol.ErrorMsg{Msg: reason})
	defer func() { recover() }()
	select {
	case c.send <- []byte{}:
	default:
		c.conn.Close()
	}
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env protocol.InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Debug("unmarshal error", zap.Error(err))
		return
	}

	switch env.T {
	case protocol.MsgRegister:
		c.handleRegister(env.D)
	case protocol.MsgLogin:
		c.handleLogin(env.D)
	case protocol.MsgAuth:
		c.handleAuth(env.D)
	default:
		c.hub.authority.Command(c.id, env)
	}
}

func (c *Client) handleRegister(data json.RawMessage) {
	if !c.accountsEnabled() {
		return
	}
	var msg protocol.RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.SendJSON(protocol.MsgError, protocol.ErrorMsg{Msg: err.Error()})
		return
	}
	c.authenticated(id, msg.Username, token)
}

func (c *Client) handleLogin(data json.RawMessage) {
	if !c.accountsEnabled() {
		return
	}
	var msg protocol.LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.SendJSON(protocol.MsgError, protocol.ErrorMsg{Msg: err.Error()})
		return
	}
	c.authenticated(id, msg.Username, token)
}

func (c *Client) handleAuth(data json.RawMessage) {
	if !c.accountsEnabled() {
		return
	}
	var msg protocol.AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.SendJSON(protocol.MsgError, protocol.ErrorMsg{Msg: "invalid token"})
		return
	}
	c.authenticated(id, username, msg.Token)
}

func (c *Client) accountsEnabled() bool {
	if c.hub.auth == nil {
		c.SendJSON(protocol.MsgError, protocol.ErrorMsg{Msg: "accounts disabled"})
		return false
	}
	return true
}

func (c *Client) authenticated(id int64, username, token string) {
	c.accountID = id
	c.username = username
	c.hub.authority.LinkAccount(c.id, id)
	c.SendJSON(protocol.MsgAuthOK, protocol.AuthOKMsg{
		Token:    token,
		Username: username,
		PlayerID: id,
	})
}
