package game

import (
	"rts-server/internal/events"
	"rts-server/internal/netsync"
)

// Health is the combat surface of an entity. Damage sources live outside this
// package and only call DealDamage.
type Health struct {
	max     int
	current *netsync.Var[int]
	died    events.Channel[struct{}]
}

func NewHealth(max int) *Health {
	if max <= 0 {
		max = 1
	}
	return &Health{max: max, current: netsync.NewVar("health", max)}
}

func (h *Health) Current() int { return h.current.Get() }

func (h *Health) Max() int { return h.max }

func (h *Health) Dead() bool { return h.current.Get() == 0 }

// Died fires once, when health first reaches zero.
func (h *Health) Died() *events.Channel[struct{}] { return &h.died }

// DealDamage lowers health, clamped at zero. Non-positive amounts and damage
// to a dead entity are ignored.
func (h *Health) DealDamage(amount int) {
	if amount <= 0 || h.Dead() {
		return
	}
	next := h.current.Get() - amount
	if next < 0 {
		next = 0
	}
	h.current.Set(next)
	if next == 0 {
		h.died.Publish(struct{}{})
	}
}

func (h *Health) field() netsync.Field { return h.current }
