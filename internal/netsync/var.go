// Package netsync replicates server-owned values to observing clients.
//
// The authoritative side holds Vars grouped in Fields and registered with a
// World. Every replication tick the World flushes a Frame of spawns, dirty
// field deltas and despawns. Clients decode frames and apply them to Mirrors,
// which run their change hooks with the old and new value.
package netsync

import "github.com/vmihailenco/msgpack/v5"

// Field is one replicated value on the authoritative side.
type Field interface {
	Name() string
	Dirty() bool
	ClearDirty()
	MarshalValue() ([]byte, error)
}

// Var is an authoritative replicated value.
type Var[T comparable] struct {
	name  string
	value T
	dirty bool
}

// NewVar creates a Var holding initial. The initial value reaches clients
// with the spawn snapshot, so it does not mark the Var dirty.
func NewVar[T comparable](name string, initial T) *Var[T] {
	return &Var[T]{name: name, value: initial}
}

func (v *Var[T]) Name() string { return v.name }

// Get returns the authoritative value.
func (v *Var[T]) Get() T { return v.value }

// Set updates the value and schedules it for the next tick. Setting the
// current value again is a no-op.
func (v *Var[T]) Set(x T) {
	if v.value == x {
		return
	}
	v.value = x
	v.dirty = true
}

func (v *Var[T]) Dirty() bool { return v.dirty }

func (v *Var[T]) ClearDirty() { v.dirty = false }

func (v *Var[T]) MarshalValue() ([]byte, error) {
	return msgpack.Marshal(v.value)
}

// FieldSet maps field names to msgpack-encoded values.
type FieldSet map[string]msgpack.RawMessage

// Fields is the ordered set of replicated values of one object.
type Fields struct {
	list []Field
}

// NewFields groups fs. Names must be unique within one object.
func NewFields(fs ...Field) *Fields {
	return &Fields{list: fs}
}

// Dirty reports whether any field changed since the last delta.
func (f *Fields) Dirty() bool {
	for _, fd := range f.list {
		if fd.Dirty() {
			return true
		}
	}
	return false
}

// Delta encodes the dirty fields and clears them. It returns nil when
// nothing changed.
func (f *Fields) Delta() (FieldSet, error) {
	var out FieldSet
	for _, fd := range f.list {
		if !fd.Dirty() {
			continue
		}
		raw, err := fd.MarshalValue()
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = make(FieldSet)
		}
		out[fd.Name()] = raw
		fd.ClearDirty()
	}
	return out, nil
}

// Snapshot encodes every field. Dirty flags are left alone so a snapshot for
// one connection does not swallow the delta owed to the others.
func (f *Fields) Snapshot() (FieldSet, error) {
	out := make(FieldSet, len(f.list))
	for _, fd := range f.list {
		raw, err := fd.MarshalValue()
		if err != nil {
			return nil, err
		}
		out[fd.Name()] = raw
	}
	return out, nil
}

// ClearDirty marks every field as sent.
func (f *Fields) ClearDirty() {
	for _, fd := range f.list {
		fd.ClearDirty()
	}
}
