package game

import (
	"rts-server/internal/events"
	"rts-server/internal/netsync"
)

// Unit is a mobile entity owned by one player.
type Unit struct {
	netsync.Identity
	template  UnitTemplate
	position  *netsync.Var[Vec3]
	teamColor *netsync.Var[Color]
	health    *Health
	targeter  *Targeter
	fields    *netsync.Fields

	bus  *Bus
	net  Network
	died events.Handle
}

func NewUnit(tpl UnitTemplate, pos Vec3, color Color, bus *Bus, net Network) *Unit {
	u := &Unit{
		Identity:  netsync.NewIdentity(KindUnit, tpl.ID),
		template:  tpl,
		position:  netsync.NewVar("position", pos),
		teamColor: netsync.NewVar("teamColor", color),
		health:    NewHealth(tpl.MaxHealth),
		targeter:  NewTargeter(bus),
		bus:       bus,
		net:       net,
	}
	u.fields = netsync.NewFields(u.position, u.teamColor, u.health.field(), u.targeter.field())
	return u
}

func (u *Unit) SyncFields() *netsync.Fields { return u.fields }

func (u *Unit) UnitTemplate() UnitTemplate { return u.template }

func (u *Unit) Position() Vec3 { return u.position.Get() }

// SetPosition is called by the movement collaborator.
func (u *Unit) SetPosition(p Vec3) { u.position.Set(p) }

func (u *Unit) TeamColor() Color { return u.teamColor.Get() }

func (u *Unit) Health() *Health { return u.health }

func (u *Unit) Targeter() *Targeter { return u.targeter }

func (u *Unit) OnStartServer() {
	u.died = u.health.Died().Subscribe(func(struct{}) { u.net.Destroy(u) })
	u.targeter.start()
	u.bus.UnitSpawned.Publish(u)
}

func (u *Unit) OnStopServer() {
	u.targeter.stop()
	u.health.Died().Unsubscribe(u.died)
	u.bus.UnitDespawned.Publish(u)
}
