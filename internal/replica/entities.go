package replica

import (
	"rts-server/internal/events"
	"rts-server/internal/game"
	"rts-server/internal/netsync"
)

// entity is anything the replica tracks by net id.
type entity interface {
	header() *Header
	mirrors() *netsync.Mirrors
	start(r *Replica)
	stop(r *Replica)
}

// Header is the identity part of a spawn.
type Header struct {
	ID       netsync.NetID
	Owner    netsync.ConnID
	Kind     netsync.Kind
	Template int32
}

func (h *Header) header() *Header { return h }

// Bus carries authority-scope lifecycle events: they fire only for entities
// the local connection owns.
type Bus struct {
	UnitSpawned       events.Channel[*Unit]
	UnitDespawned     events.Channel[*Unit]
	BuildingSpawned   events.Channel[*Building]
	BuildingDespawned events.Channel[*Building]
}

// Player mirrors a game.Player.
type Player struct {
	Header
	Resources   *netsync.Mirror[int]
	PartyOwner  *netsync.Mirror[bool]
	DisplayName *netsync.Mirror[string]
	TeamColor   *netsync.Mirror[game.Color]
	fields      *netsync.Mirrors

	local     bool
	units     []*Unit
	buildings []*Building
	handles   [4]events.Handle
}

func newPlayer(h Header, r *Replica) *Player {
	p := &Player{
		Header:      h,
		Resources:   netsync.NewMirror("resources", 0),
		PartyOwner:  netsync.NewMirror("partyOwner", false),
		DisplayName: netsync.NewMirror("displayName", ""),
		TeamColor:   netsync.NewMirror("teamColor", game.Color{}),
		local:       h.Owner == r.conn && r.conn != netsync.NoConn,
	}
	p.fields = netsync.NewMirrors(p.Resources, p.PartyOwner, p.DisplayName, p.TeamColor)

	p.Resources.OnChange(func(_, _ int) { r.ResourcesUpdated.Publish(p) })
	p.PartyOwner.OnChange(func(_, v bool) {
		if p.local {
			r.PartyOwnerChanged.Publish(v)
		}
	})
	p.DisplayName.OnChange(func(_, _ string) { r.InfoUpdated.Publish(p) })
	p.TeamColor.OnChange(func(_, _ game.Color) { r.InfoUpdated.Publish(p) })
	return p
}

func (p *Player) mirrors() *netsync.Mirrors { return p.fields }

// Local reports whether this is the player of the local connection.
func (p *Player) Local() bool { return p.local }

// Units is the client-side roster, kept only for the local player.
func (p *Player) Units() []*Unit { return append([]*Unit(nil), p.units...) }

func (p *Player) Buildings() []*Building { return append([]*Building(nil), p.buildings...) }

func (p *Player) start(r *Replica) {
	r.players = append(r.players, p)
	if p.local {
		for _, e := range r.sortedEntities() {
			switch v := e.(type) {
			case *Unit:
				if v.Owner == p.Owner {
					p.units = append(p.units, v)
				}
			case *Building:
				if v.Owner == p.Owner {
					p.buildings = append(p.buildings, v)
				}
			}
		}
		p.handles[0] = r.Bus.UnitSpawned.Subscribe(func(u *Unit) { p.units = append(p.units, u) })
		p.handles[1] = r.Bus.UnitDespawned.Subscribe(func(u *Unit) { p.units = remove(p.units, u) })
		p.handles[2] = r.Bus.BuildingSpawned.Subscribe(func(b *Building) { p.buildings = append(p.buildings, b) })
		p.handles[3] = r.Bus.BuildingDespawned.Subscribe(func(b *Building) { p.buildings = remove(p.buildings, b) })
	}
	r.InfoUpdated.Publish(p)
}

func (p *Player) stop(r *Replica) {
	r.players = remove(r.players, p)
	if p.local {
		r.Bus.UnitSpawned.Unsubscribe(p.handles[0])
		r.Bus.UnitDespawned.Unsubscribe(p.handles[1])
		r.Bus.BuildingSpawned.Unsubscribe(p.handles[2])
		r.Bus.BuildingDespawned.Unsubscribe(p.handles[3])
		p.units, p.buildings = nil, nil
	}
	r.InfoUpdated.Publish(p)
}

// Unit mirrors a game.Unit.
type Unit struct {
	Header
	Position  *netsync.Mirror[game.Vec3]
	TeamColor *netsync.Mirror[game.Color]
	Health    *netsync.Mirror[int]
	Target    *netsync.Mirror[netsync.NetID]
	fields    *netsync.Mirrors
}

func newUnit(h Header) *Unit {
	u := &Unit{
		Header:    h,
		Position:  netsync.NewMirror("position", game.Vec3{}),
		TeamColor: netsync.NewMirror("teamColor", game.Color{}),
		Health:    netsync.NewMirror("health", 0),
		Target:    netsync.NewMirror[netsync.NetID]("target", 0),
	}
	u.fields = netsync.NewMirrors(u.Position, u.TeamColor, u.Health, u.Target)
	return u
}

func (u *Unit) mirrors() *netsync.Mirrors { return u.fields }

func (u *Unit) start(r *Replica) {
	if r.owns(u.Owner) {
		r.Bus.UnitSpawned.Publish(u)
	}
}

func (u *Unit) stop(r *Replica) {
	if r.owns(u.Owner) {
		r.Bus.UnitDespawned.Publish(u)
	}
}

// Building mirrors a game.Building.
type Building struct {
	Header
	Position  *netsync.Mirror[game.Vec3]
	Yaw       *netsync.Mirror[float64]
	TeamColor *netsync.Mirror[game.Color]
	Health    *netsync.Mirror[int]
	fields    *netsync.Mirrors
}

func newBuilding(h Header) *Building {
	b := &Building{
		Header:    h,
		Position:  netsync.NewMirror("position", game.Vec3{}),
		Yaw:       netsync.NewMirror("yaw", 0.0),
		TeamColor: netsync.NewMirror("teamColor", game.Color{}),
		Health:    netsync.NewMirror("health", 0),
	}
	b.fields = netsync.NewMirrors(b.Position, b.Yaw, b.TeamColor, b.Health)
	return b
}

func (b *Building) mirrors() *netsync.Mirrors { return b.fields }

func (b *Building) start(r *Replica) {
	if r.owns(b.Owner) {
		r.Bus.BuildingSpawned.Publish(b)
	}
}

func (b *Building) stop(r *Replica) {
	if r.owns(b.Owner) {
		r.Bus.BuildingDespawned.Publish(b)
	}
}

// GameOver mirrors the match observer. Its winner is announced once set.
type GameOver struct {
	Header
	Winner *netsync.Mirror[string]
	fields *netsync.Mirrors
}

func newGameOver(h Header, r *Replica) *GameOver {
	g := &GameOver{Header: h, Winner: netsync.NewMirror("winner", "")}
	g.fields = netsync.NewMirrors(g.Winner)
	g.Winner.OnChange(func(_, winner string) {
		if winner != "" {
			r.GameOver.Publish(winner)
		}
	})
	return g
}

func (g *GameOver) mirrors() *netsync.Mirrors { return g.fields }

func (g *GameOver) start(r *Replica) { r.observer = g }

func (g *GameOver) stop(r *Replica) {
	if r.observer == g {
		r.observer = nil
	}
}

func remove[T comparable](list []T, v T) []T {
	for i, other := range list {
		if other == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
