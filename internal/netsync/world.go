package netsync

import (
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// ConnID identifies one client connection. NoConn marks server-owned objects.
type ConnID int32

const NoConn ConnID = 0

// NetID identifies one replicated object for its whole lifetime.
type NetID uint32

// Kind tells clients which mirror to build for a spawned object.
type Kind string

// Identity is embedded by every replicated object.
type Identity struct {
	id       NetID
	owner    ConnID
	kind     Kind
	template int32
}

// NewIdentity describes an object that has not been spawned yet.
func NewIdentity(kind Kind, template int32) Identity {
	return Identity{kind: kind, template: template}
}

func (i *Identity) NetIdentity() *Identity { return i }

func (i *Identity) ID() NetID { return i.id }

// Owner is the connection controlling the object, NoConn if none.
func (i *Identity) Owner() ConnID { return i.owner }

func (i *Identity) Kind() Kind { return i.kind }

func (i *Identity) Template() int32 { return i.template }

// Spawned reports whether the object is currently registered with a World.
func (i *Identity) Spawned() bool { return i.id != 0 }

// Object is anything a World can replicate.
type Object interface {
	NetIdentity() *Identity
	SyncFields() *Fields
}

// ServerLifecycle is implemented by objects that react to being spawned or
// destroyed on the authoritative side.
type ServerLifecycle interface {
	OnStartServer()
	OnStopServer()
}

// World is the authoritative registry of replicated objects. It is not safe
// for concurrent use; the authority loop owns it.
type World struct {
	nextID   NetID
	tick     uint64
	objects  map[NetID]Object
	spawned  []NetID
	despawns []NetID
}

func NewWorld() *World {
	return &World{objects: make(map[NetID]Object)}
}

// Spawn assigns obj a network id and owner, registers it and runs its
// OnStartServer. Spawning an already spawned object returns its id unchanged.
func (w *World) Spawn(obj Object, owner ConnID) NetID {
	id := obj.NetIdentity()
	if id.id != 0 {
		return id.id
	}
	w.nextID++
	id.id = w.nextID
	id.owner = owner
	w.objects[id.id] = obj
	w.spawned = append(w.spawned, id.id)
	if l, ok := obj.(ServerLifecycle); ok {
		l.OnStartServer()
	}
	return id.id
}

// Destroy unregisters obj and runs its OnStopServer. Objects spawned in the
// current tick vanish without ever being sent.
func (w *World) Destroy(obj Object) {
	id := obj.NetIdentity()
	if id.id == 0 {
		return
	}
	if _, ok := w.objects[id.id]; !ok {
		return
	}
	delete(w.objects, id.id)
	if i := indexOf(w.spawned, id.id); i >= 0 {
		w.spawned = append(w.spawned[:i], w.spawned[i+1:]...)
	} else {
		w.despawns = append(w.despawns, id.id)
	}
	if l, ok := obj.(ServerLifecycle); ok {
		l.OnStopServer()
	}
	id.id = 0
}

// Get looks up a live object.
func (w *World) Get(id NetID) (Object, bool) {
	obj, ok := w.objects[id]
	return obj, ok
}

// Len returns the number of live objects.
func (w *World) Len() int { return len(w.objects) }

// Tick returns the number of frames flushed so far.
func (w *World) Tick() uint64 { return w.tick }

// Objects returns the live objects in spawn order.
func (w *World) Objects() []Object {
	ids := w.sortedIDs()
	out := make([]Object, 0, len(ids))
	for _, id := range ids {
		out = append(out, w.objects[id])
	}
	return out
}

// OwnedBy returns the live objects owned by conn in spawn order.
func (w *World) OwnedBy(conn ConnID) []Object {
	var out []Object
	for _, obj := range w.Objects() {
		if obj.NetIdentity().owner == conn {
			out = append(out, obj)
		}
	}
	return out
}

// Reset destroys every object, newest first.
func (w *World) Reset() {
	objs := w.Objects()
	for i := len(objs) - 1; i >= 0; i-- {
		w.Destroy(objs[i])
	}
}

// Flush builds the frame for one replication tick: objects spawned since the
// last flush with their full state, deltas for the others, and despawns.
func (w *World) Flush() (*Frame, error) {
	w.tick++
	f := &Frame{Tick: w.tick}

	fresh := make(map[NetID]bool, len(w.spawned))
	for _, id := range w.spawned {
		fresh[id] = true
		obj := w.objects[id]
		entry, err := spawnEntry(obj)
		if err != nil {
			return nil, err
		}
		obj.SyncFields().ClearDirty()
		f.Spawns = append(f.Spawns, entry)
	}
	for _, id := range w.sortedIDs() {
		if fresh[id] {
			continue
		}
		delta, err := w.objects[id].SyncFields().Delta()
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", id, err)
		}
		if delta != nil {
			f.Updates = append(f.Updates, UpdateEntry{ID: id, Fields: delta})
		}
	}
	f.Despawns = w.despawns

	w.spawned = nil
	w.despawns = nil
	return f, nil
}

// Snapshot describes every live object for a newly accepted connection. It
// does not consume pending spawns or deltas.
func (w *World) Snapshot() (*Frame, error) {
	f := &Frame{Tick: w.tick, Forced: true}
	for _, id := range w.sortedIDs() {
		entry, err := spawnEntry(w.objects[id])
		if err != nil {
			return nil, err
		}
		f.Spawns = append(f.Spawns, entry)
	}
	return f, nil
}

func (w *World) sortedIDs() []NetID {
	ids := make([]NetID, 0, len(w.objects))
	for id := range w.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func spawnEntry(obj Object) (SpawnEntry, error) {
	id := obj.NetIdentity()
	fields, err := obj.SyncFields().Snapshot()
	if err != nil {
		return SpawnEntry{}, fmt.Errorf("object %d: %w", id.id, err)
	}
	return SpawnEntry{
		ID:       id.id,
		Kind:     id.kind,
		Owner:    id.owner,
		Template: id.template,
		Fields:   fields,
	}, nil
}

func indexOf(ids []NetID, id NetID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// SpawnEntry announces a new object with its complete state.
type SpawnEntry struct {
	ID       NetID    `msgpack:"id"`
	Kind     Kind     `msgpack:"k"`
	Owner    ConnID   `msgpack:"o"`
	Template int32    `msgpack:"tp"`
	Fields   FieldSet `msgpack:"f"`
}

// UpdateEntry carries the changed fields of one object.
type UpdateEntry struct {
	ID     NetID    `msgpack:"id"`
	Fields FieldSet `msgpack:"f"`
}

// Frame is one replication message.
type Frame struct {
	Tick     uint64        `msgpack:"t"`
	Forced   bool          `msgpack:"fr,omitempty"`
	Spawns   []SpawnEntry  `msgpack:"s,omitempty"`
	Updates  []UpdateEntry `msgpack:"u,omitempty"`
	Despawns []NetID       `msgpack:"d,omitempty"`
}

// Empty reports whether the frame carries nothing worth sending.
func (f *Frame) Empty() bool {
	return len(f.Spawns) == 0 && len(f.Updates) == 0 && len(f.Despawns) == 0
}

// EncodeFrame serializes f for a binary websocket message.
func EncodeFrame(f *Frame) ([]byte, error) {
	return msgpack.Marshal(f)
}

// DecodeFrame parses a binary websocket message.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &f, nil
}
