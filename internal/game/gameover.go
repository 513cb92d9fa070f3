package game

import (
	"rts-server/internal/events"
	"rts-server/internal/netsync"
)

// GameOverHandler watches the live bases of a match and declares the winner
// when a single one is left.
type GameOverHandler struct {
	netsync.Identity
	winner *netsync.Var[string]
	fields *netsync.Fields

	bus   *Bus
	names func(ConnID) string
	bases []*Building
	over  bool

	spawned, despawned events.Handle
}

// NewGameOverHandler uses names to turn the last base's owner into the
// announced winner.
func NewGameOverHandler(bus *Bus, names func(ConnID) string) *GameOverHandler {
	h := &GameOverHandler{
		Identity: netsync.NewIdentity(KindGameOver, 0),
		winner:   netsync.NewVar("winner", ""),
		bus:      bus,
		names:    names,
	}
	h.fields = netsync.NewFields(h.winner)
	return h
}

func (h *GameOverHandler) SyncFields() *netsync.Fields { return h.fields }

// Winner is empty until the match is decided.
func (h *GameOverHandler) Winner() string { return h.winner.Get() }

func (h *GameOverHandler) Over() bool { return h.over }

// Bases returns the number of live bases.
func (h *GameOverHandler) Bases() int { return len(h.bases) }

func (h *GameOverHandler) OnStartServer() {
	h.spawned = h.bus.BaseSpawned.Subscribe(func(b *Building) {
		h.bases = append(h.bases, b)
	})
	h.despawned = h.bus.BaseDespawned.Subscribe(h.handleBaseDespawned)
}

func (h *GameOverHandler) OnStopServer() {
	h.bus.BaseSpawned.Unsubscribe(h.spawned)
	h.bus.BaseDespawned.Unsubscribe(h.despawned)
}

func (h *GameOverHandler) handleBaseDespawned(b *Building) {
	for i, other := range h.bases {
		if other == b {
			h.bases = append(h.bases[:i], h.bases[i+1:]...)
			break
		}
	}
	if len(h.bases) != 1 || h.over {
		return
	}
	h.over = true
	name := h.names(h.bases[0].Owner())
	h.winner.Set(name)
	h.bus.GameOver.Publish(name)
}
