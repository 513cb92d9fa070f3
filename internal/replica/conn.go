package replica

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"rts-server/internal/game"
	"rts-server/internal/netsync"
	"rts-server/internal/protocol"
)

const writeWait = 10 * time.Second

// Conn is a websocket connection to a server feeding one Replica.
type Conn struct {
	ws  *websocket.Conn
	log *zap.Logger

	mu      sync.Mutex // guards replica
	replica *Replica
	wmu     sync.Mutex // serializes writes

	closeOnce sync.Once
}

// Dial connects to a server's /ws endpoint.
func Dial(ctx context.Context, url string, log *zap.Logger) (*Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Conn{ws: ws, log: log, replica: New()}, nil
}

// Do runs fn with exclusive access to the replica. Event handlers already run
// under that lock and must not call Do.
func (c *Conn) Do(fn func(r *Replica)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.replica)
}

// Run reads and applies messages until the connection closes or ctx is
// done. The replica's Disconnected event fires on the way out.
func (c *Conn) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.ws.Close() })
	defer stop()
	defer func() {
		c.Do(func(r *Replica) {
			r.Reset()
			r.Disconnected.Publish(struct{}{})
		})
	}()

	for {
		msgType, raw, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		c.mu.Lock()
		if msgType == websocket.BinaryMessage {
			err = c.replica.HandleBinary(raw)
		} else {
			err = c.replica.HandleText(raw)
		}
		c.mu.Unlock()
		if err != nil {
			c.log.Warn("bad message from server", zap.Error(err))
		}
	}
}

// Send writes a control message of type t.
func (c *Conn) Send(t string, data interface{}) error {
	raw, err := protocol.Encode(t, data)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

func (c *Conn) StartGame() error { return c.Send(protocol.MsgStartGame, nil) }

func (c *Conn) PlaceBuilding(templateID int32, at game.Vec3) error {
	return c.Send(protocol.MsgPlaceBuilding, protocol.PlaceBuildingMsg{ID: templateID, X: at.X, Y: at.Y, Z: at.Z})
}

func (c *Conn) SpawnUnit(templateID int32) error {
	return c.Send(protocol.MsgSpawnUnit, protocol.SpawnUnitMsg{ID: templateID})
}

func (c *Conn) SetTarget(unit, target netsync.NetID) error {
	return c.Send(protocol.MsgSetTarget, protocol.SetTargetMsg{Unit: uint32(unit), Target: uint32(target)})
}

func (c *Conn) Register(username, password string) error {
	return c.Send(protocol.MsgRegister, protocol.RegisterMsg{Username: username, Password: password})
}

func (c *Conn) Login(username, password string) error {
	return c.Send(protocol.MsgLogin, protocol.LoginMsg{Username: username, Password: password})
}

// Resume authenticates with a token from an earlier auth_ok.
func (c *Conn) Resume(token string) error {
	return c.Send(protocol.MsgAuth, protocol.AuthMsg{Token: token})
}

// Close says goodbye and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.wmu.Unlock()
		err = c.ws.Close()
	})
	return err
}
