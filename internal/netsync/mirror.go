package netsync

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Receiver is one client-side replicated value.
type Receiver interface {
	Name() string
	Apply(raw []byte, forced bool) error
}

// Mirror is the client-side copy of a Var. It never changes on its own; it only
// moves when the server sends a value.
type Mirror[T comparable] struct {
	name  string
	value T
	hooks []func(old, new T)
}

// NewMirror creates a Mirror starting at initial, normally the same default
// the server-side Var starts with.
func NewMirror[T comparable](name string, initial T) *Mirror[T] {
	return &Mirror[T]{name: name, value: initial}
}

func (m *Mirror[T]) Name() string { return m.name }

// Get returns the last value received.
func (m *Mirror[T]) Get() T { return m.value }

// OnChange registers a hook run after the value changes.
func (m *Mirror[T]) OnChange(fn func(old, new T)) {
	if fn != nil {
		m.hooks = append(m.hooks, fn)
	}
}

// Apply decodes raw and stores it. Hooks run when the value differs from the
// previous one. A forced apply (full re-send) runs them even if it does not.
func (m *Mirror[T]) Apply(raw []byte, forced bool) error {
	var next T
	if err := msgpack.Unmarshal(raw, &next); err != nil {
		return fmt.Errorf("decode %s: %w", m.name, err)
	}
	old := m.value
	if old == next && !forced {
		return nil
	}
	m.value = next
	for _, h := range m.hooks {
		h(old, next)
	}
	return nil
}

// Mirrors is the client-side counterpart of Fields.
type Mirrors struct {
	list []Receiver
}

func NewMirrors(rs ...Receiver) *Mirrors {
	return &Mirrors{list: rs}
}

// Apply hands every known field in fs to its receiver, in registration order.
// Unknown names are skipped so older clients tolerate newer servers.
func (m *Mirrors) Apply(fs FieldSet, forced bool) error {
	for _, r := range m.list {
		raw, ok := fs[r.Name()]
		if !ok {
			continue
		}
		if err := r.Apply(raw, forced); err != nil {
			return err
		}
	}
	return nil
}
