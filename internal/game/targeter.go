package game

import (
	"rts-server/internal/events"
	"rts-server/internal/netsync"
)

// Targeter holds the current attack target of a unit. Movement and firing
// read it; the session only sets and clears it.
type Targeter struct {
	bus      *Bus
	target   *netsync.Var[netsync.NetID]
	gameOver events.Handle
}

func NewTargeter(bus *Bus) *Targeter {
	return &Targeter{bus: bus, target: netsync.NewVar[netsync.NetID]("target", 0)}
}

// Target returns the current target id, 0 if none.
func (t *Targeter) Target() netsync.NetID { return t.target.Get() }

func (t *Targeter) SetTarget(id netsync.NetID) { t.target.Set(id) }

func (t *Targeter) ClearTarget() { t.target.Set(0) }

func (t *Targeter) start() {
	t.gameOver = t.bus.GameOver.Subscribe(func(string) { t.ClearTarget() })
}

func (t *Targeter) stop() {
	t.bus.GameOver.Unsubscribe(t.gameOver)
}

func (t *Targeter) field() netsync.Field { return t.target }
