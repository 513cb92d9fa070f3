package game

import (
	"rts-server/internal/events"
	"rts-server/internal/netsync"
)

// UnitSpawnOffset is where new units appear relative to their base.
var UnitSpawnOffset = Vec3{X: 3, Z: 3}

// Player is the authoritative controller of one connected participant.
type Player struct {
	netsync.Identity
	resources   *netsync.Var[int]
	partyOwner  *netsync.Var[bool]
	displayName *netsync.Var[string]
	teamColor   *netsync.Var[Color]
	fields      *netsync.Fields

	units     []*Unit
	buildings []*Building
	accountID int64

	session *Coordinator
	handles [4]events.Handle
}

func newPlayer(s *Coordinator, name string, color Color) *Player {
	p := &Player{
		Identity:    netsync.NewIdentity(KindPlayer, 0),
		resources:   netsync.NewVar("resources", s.rules.StartingResources),
		partyOwner:  netsync.NewVar("partyOwner", false),
		displayName: netsync.NewVar("displayName", name),
		teamColor:   netsync.NewVar("teamColor", color),
		session:     s,
	}
	p.fields = netsync.NewFields(p.resources, p.partyOwner, p.displayName, p.teamColor)
	return p
}

func (p *Player) SyncFields() *netsync.Fields { return p.fields }

func (p *Player) Resources() int { return p.resources.Get() }

func (p *Player) IsPartyOwner() bool { return p.partyOwner.Get() }

func (p *Player) DisplayName() string { return p.displayName.Get() }

func (p *Player) TeamColor() Color { return p.teamColor.Get() }

// Units returns a copy of the unit roster.
func (p *Player) Units() []*Unit { return append([]*Unit(nil), p.units...) }

// Buildings returns a copy of the building roster.
func (p *Player) Buildings() []*Building { return append([]*Building(nil), p.buildings...) }

func (p *Player) AccountID() int64 { return p.accountID }

// LinkAccount ties the player to a persisted account for match history.
func (p *Player) LinkAccount(id int64) { p.accountID = id }

func (p *Player) SetResources(n int) { p.resources.Set(n) }

func (p *Player) SetDisplayName(name string) { p.displayName.Set(name) }

func (p *Player) setPartyOwner(v bool) { p.partyOwner.Set(v) }

func (p *Player) OnStartServer() {
	bus := p.session.bus
	p.handles[0] = bus.UnitSpawned.Subscribe(func(u *Unit) {
		if u.Owner() == p.Owner() {
			p.units = append(p.units, u)
		}
	})
	p.handles[1] = bus.UnitDespawned.Subscribe(func(u *Unit) {
		if u.Owner() == p.Owner() {
			p.units = removeEntity(p.units, u)
		}
	})
	p.handles[2] = bus.BuildingSpawned.Subscribe(func(b *Building) {
		if b.Owner() == p.Owner() {
			p.buildings = append(p.buildings, b)
		}
	})
	p.handles[3] = bus.BuildingDespawned.Subscribe(func(b *Building) {
		if b.Owner() == p.Owner() {
			p.buildings = removeEntity(p.buildings, b)
		}
	})
}

func (p *Player) OnStopServer() {
	bus := p.session.bus
	bus.UnitSpawned.Unsubscribe(p.handles[0])
	bus.UnitDespawned.Unsubscribe(p.handles[1])
	bus.BuildingSpawned.Unsubscribe(p.handles[2])
	bus.BuildingDespawned.Unsubscribe(p.handles[3])
}

func removeEntity[T comparable](list []T, v T) []T {
	for i, other := range list {
		if other == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// CanPlaceBuilding reports whether a building with footprint may stand at
// point: clear of blocking geometry and within range of an owned building.
func (p *Player) CanPlaceBuilding(footprint Box, point Vec3) bool {
	if p.session.collision.Overlaps(footprint.At(point), LayerBuildBlocking) {
		return false
	}
	limit := p.session.rules.BuildingRangeLimit
	for _, b := range p.buildings {
		if point.Sub(b.Position()).SqrMagnitude() <= limit*limit {
			return true
		}
	}
	return false
}

// RequestStartGame starts the match on behalf of the party owner.
func (p *Player) RequestStartGame() error {
	if !p.IsPartyOwner() {
		return ErrNotPartyOwner
	}
	return p.session.StartGame()
}

// RequestPlaceBuilding places a building at point and charges its price.
func (p *Player) RequestPlaceBuilding(templateID int32, point Vec3) error {
	tpl, ok := p.session.catalog.Building(templateID)
	if !ok {
		return ErrUnknownTemplate
	}
	if p.Resources() < tpl.Price {
		return ErrInsufficientResources
	}
	if !p.CanPlaceBuilding(tpl.Footprint, point) {
		return ErrInvalidPlacement
	}
	b := NewBuilding(tpl, point, p.TeamColor(), p.session.bus, p.session.net)
	p.session.net.Spawn(b, p.Owner())
	p.SetResources(p.Resources() - tpl.Price)
	return nil
}

// RequestSpawnUnit produces a unit next to the player's base.
func (p *Player) RequestSpawnUnit(templateID int32) error {
	tpl, ok := p.session.catalog.Unit(templateID)
	if !ok {
		return ErrUnknownTemplate
	}
	base := p.base()
	if base == nil {
		return ErrNoBase
	}
	if p.Resources() < tpl.Cost {
		return ErrInsufficientResources
	}
	u := NewUnit(tpl, base.Position().Add(UnitSpawnOffset), p.TeamColor(), p.session.bus, p.session.net)
	p.session.net.Spawn(u, p.Owner())
	p.SetResources(p.Resources() - tpl.Cost)
	return nil
}

// RequestSetTarget points one of the player's units at a live entity.
func (p *Player) RequestSetTarget(unitID, targetID netsync.NetID) error {
	u, ok := p.session.units[unitID]
	if !ok {
		return ErrUnknownEntity
	}
	if !p.session.targetable(targetID) {
		return ErrUnknownEntity
	}
	if u.Owner() != p.Owner() {
		return ErrNotOwner
	}
	u.Targeter().SetTarget(targetID)
	return nil
}

func (p *Player) base() *Building {
	for _, b := range p.buildings {
		if b.IsBase() {
			return b
		}
	}
	return nil
}
