package game

import "rts-server/internal/events"

// Bus carries server-side lifecycle events of one session. Every entity in the
// session publishes to it regardless of owner.
type Bus struct {
	UnitSpawned       events.Channel[*Unit]
	UnitDespawned     events.Channel[*Unit]
	BuildingSpawned   events.Channel[*Building]
	BuildingDespawned events.Channel[*Building]
	BaseSpawned       events.Channel[*Building]
	BaseDespawned     events.Channel[*Building]
	PlayerDied        events.Channel[ConnID]
	GameOver          events.Channel[string]
}

func NewBus() *Bus { return &Bus{} }

// BusCounts is a subscriber count snapshot, compared in tests to check that
// every subscription made on start was undone on stop.
type BusCounts [8]int

func (b *Bus) Counts() BusCounts {
	return BusCounts{
		b.UnitSpawned.Len(), b.UnitDespawned.Len(),
		b.BuildingSpawned.Len(), b.BuildingDespawned.Len(),
		b.BaseSpawned.Len(), b.BaseDespawned.Len(),
		b.PlayerDied.Len(), b.GameOver.Len(),
	}
}
