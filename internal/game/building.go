package game

import (
	"rts-server/internal/events"
	"rts-server/internal/netsync"
)

// Building is a static entity owned by one player. A base is a building whose
// death eliminates its owner.
type Building struct {
	netsync.Identity
	template  BuildingTemplate
	position  *netsync.Var[Vec3]
	yaw       *netsync.Var[float64]
	teamColor *netsync.Var[Color]
	health    *Health
	fields    *netsync.Fields

	bus  *Bus
	net  Network
	died events.Handle
}

func NewBuilding(tpl BuildingTemplate, pos Vec3, color Color, bus *Bus, net Network) *Building {
	b := &Building{
		Identity:  netsync.NewIdentity(KindBuilding, tpl.ID),
		template:  tpl,
		position:  netsync.NewVar("position", pos),
		yaw:       netsync.NewVar("yaw", tpl.Yaw),
		teamColor: netsync.NewVar("teamColor", color),
		health:    NewHealth(tpl.MaxHealth),
		bus:       bus,
		net:       net,
	}
	b.fields = netsync.NewFields(b.position, b.yaw, b.teamColor, b.health.field())
	return b
}

func (b *Building) SyncFields() *netsync.Fields { return b.fields }

func (b *Building) BuildingTemplate() BuildingTemplate { return b.template }

func (b *Building) Position() Vec3 { return b.position.Get() }

func (b *Building) TeamColor() Color { return b.teamColor.Get() }

func (b *Building) Health() *Health { return b.health }

func (b *Building) IsBase() bool { return b.template.Base }

// Volume is the world-space footprint.
func (b *Building) Volume() AABB { return b.template.Footprint.At(b.Position()) }

func (b *Building) OnStartServer() {
	b.died = b.health.Died().Subscribe(func(struct{}) { b.handleDeath() })
	b.bus.BuildingSpawned.Publish(b)
	if b.IsBase() {
		b.bus.BaseSpawned.Publish(b)
	}
}

func (b *Building) OnStopServer() {
	b.health.Died().Unsubscribe(b.died)
	if b.IsBase() {
		b.bus.BaseDespawned.Publish(b)
	}
	b.bus.BuildingDespawned.Publish(b)
}

func (b *Building) handleDeath() {
	if b.IsBase() {
		b.bus.PlayerDied.Publish(b.Owner())
	}
	b.net.Destroy(b)
}
