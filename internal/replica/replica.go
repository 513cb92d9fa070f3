// Package replica is the client side of a session: it applies the server's
// control messages and replication frames to local mirrors and raises client
// events from their change hooks.
//
// A Replica is not safe for concurrent use. Conn applies everything on its
// read loop; use Conn.Do to look at state from elsewhere.
package replica

import (
	"encoding/json"
	"fmt"
	"sort"

	"rts-server/internal/events"
	"rts-server/internal/game"
	"rts-server/internal/netsync"
	"rts-server/internal/protocol"
)

// Replica is one client's view of the session.
type Replica struct {
	// Connected fires once the server has accepted and welcomed us.
	Connected events.Channel[protocol.WelcomeMsg]
	// Disconnected fires when the connection ends.
	Disconnected events.Channel[struct{}]
	// PartyOwnerChanged fires for the local player only.
	PartyOwnerChanged events.Channel[bool]
	// InfoUpdated fires when any player appears, leaves or changes name or
	// color.
	InfoUpdated      events.Channel[*Player]
	ResourcesUpdated events.Channel[*Player]
	GameOver         events.Channel[string]
	Rejected         events.Channel[protocol.RejectedMsg]
	SceneChanged     events.Channel[string]
	Errors           events.Channel[string]
	Authenticated    events.Channel[protocol.AuthOKMsg]
	// Bus is the authority scope: lifecycle events of entities we own.
	Bus Bus

	conn     netsync.ConnID
	playerID netsync.NetID
	scene    string
	tick     uint64
	entities map[netsync.NetID]entity
	players  []*Player
	observer *GameOver
}

func New() *Replica {
	return &Replica{entities: make(map[netsync.NetID]entity)}
}

// Conn is the local connection id, NoConn before the welcome.
func (r *Replica) Conn() netsync.ConnID { return r.conn }

func (r *Replica) Scene() string { return r.scene }

// Tick is the server tick of the last applied frame.
func (r *Replica) Tick() uint64 { return r.tick }

// LocalPlayer is nil until our player has been spawned.
func (r *Replica) LocalPlayer() *Player {
	if p, ok := r.entities[r.playerID].(*Player); ok {
		return p
	}
	return nil
}

// Players is the client-side player list in spawn order.
func (r *Replica) Players() []*Player { return append([]*Player(nil), r.players...) }

// Winner is empty while no match has been decided.
func (r *Replica) Winner() string {
	if r.observer == nil {
		return ""
	}
	return r.observer.Winner.Get()
}

// Unit returns a known unit by id.
func (r *Replica) Unit(id netsync.NetID) (*Unit, bool) {
	u, ok := r.entities[id].(*Unit)
	return u, ok
}

// Building returns a known building by id.
func (r *Replica) Building(id netsync.NetID) (*Building, bool) {
	b, ok := r.entities[id].(*Building)
	return b, ok
}

// Buildings lists every known building, owned or not, by id.
func (r *Replica) Buildings() []*Building {
	var out []*Building
	for _, e := range r.sortedEntities() {
		if b, ok := e.(*Building); ok {
			out = append(out, b)
		}
	}
	return out
}

// Len is the number of known entities.
func (r *Replica) Len() int { return len(r.entities) }

func (r *Replica) owns(owner netsync.ConnID) bool {
	return r.conn != netsync.NoConn && owner == r.conn
}

// HandleText applies one JSON control message.
func (r *Replica) HandleText(raw []byte) error {
	var env protocol.InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	switch env.T {
	case protocol.MsgWelcome:
		var m protocol.WelcomeMsg
		if err := json.Unmarshal(env.D, &m); err != nil {
			return fmt.Errorf("decode welcome: %w", err)
		}
		r.conn = netsync.ConnID(m.Conn)
		r.playerID = netsync.NetID(m.Player)
		r.scene = m.Scene
		r.Connected.Publish(m)
	case protocol.MsgScene:
		var m protocol.SceneMsg
		if err := json.Unmarshal(env.D, &m); err != nil {
			return fmt.Errorf("decode scene: %w", err)
		}
		r.scene = m.Name
		r.SceneChanged.Publish(m.Name)
	case protocol.MsgRejected:
		var m protocol.RejectedMsg
		if err := json.Unmarshal(env.D, &m); err != nil {
			return fmt.Errorf("decode rejected: %w", err)
		}
		r.Rejected.Publish(m)
	case protocol.MsgError:
		var m protocol.ErrorMsg
		if err := json.Unmarshal(env.D, &m); err != nil {
			return fmt.Errorf("decode error: %w", err)
		}
		r.Errors.Publish(m.Msg)
	case protocol.MsgAuthOK:
		var m protocol.AuthOKMsg
		if err := json.Unmarshal(env.D, &m); err != nil {
			return fmt.Errorf("decode auth_ok: %w", err)
		}
		r.Authenticated.Publish(m)
	}
	return nil
}

// HandleBinary decodes and applies one replication frame.
func (r *Replica) HandleBinary(raw []byte) error {
	f, err := netsync.DecodeFrame(raw)
	if err != nil {
		return err
	}
	return r.ApplyFrame(f)
}

// ApplyFrame applies spawns, then updates, then despawns. A spawn for an id
// we already know is an update; a forced frame replays every hook.
func (r *Replica) ApplyFrame(f *netsync.Frame) error {
	r.tick = f.Tick
	for _, s := range f.Spawns {
		if e, ok := r.entities[s.ID]; ok {
			if err := e.mirrors().Apply(s.Fields, f.Forced); err != nil {
				return fmt.Errorf("entity %d: %w", s.ID, err)
			}
			continue
		}
		e := r.create(Header{ID: s.ID, Owner: s.Owner, Kind: s.Kind, Template: s.Template})
		if e == nil {
			continue
		}
		if err := e.mirrors().Apply(s.Fields, f.Forced); err != nil {
			return fmt.Errorf("entity %d: %w", s.ID, err)
		}
		r.entities[s.ID] = e
		e.start(r)
	}
	for _, u := range f.Updates {
		e, ok := r.entities[u.ID]
		if !ok {
			continue
		}
		if err := e.mirrors().Apply(u.Fields, false); err != nil {
			return fmt.Errorf("entity %d: %w", u.ID, err)
		}
	}
	for _, id := range f.Despawns {
		e, ok := r.entities[id]
		if !ok {
			continue
		}
		delete(r.entities, id)
		e.stop(r)
	}
	return nil
}

// create returns nil for kinds this client does not know.
func (r *Replica) create(h Header) entity {
	switch h.Kind {
	case game.KindPlayer:
		return newPlayer(h, r)
	case game.KindUnit:
		return newUnit(h)
	case game.KindBuilding:
		return newBuilding(h)
	case game.KindGameOver:
		return newGameOver(h, r)
	}
	return nil
}

// Reset drops every entity, newest first, as on a lost connection.
func (r *Replica) Reset() {
	ents := r.sortedEntities()
	for i := len(ents) - 1; i >= 0; i-- {
		e := ents[i]
		delete(r.entities, e.header().ID)
		e.stop(r)
	}
	r.conn = netsync.NoConn
	r.playerID = 0
}

func (r *Replica) sortedEntities() []entity {
	out := make([]entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].header().ID < out[j].header().ID })
	return out
}
