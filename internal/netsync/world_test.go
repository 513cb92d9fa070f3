package netsync

import "testing"

type testObject struct {
	Identity
	fields  *Fields
	hp      *Var[int]
	started int
	stopped int
	onStop  func()
}

func newTestObject() *testObject {
	o := &testObject{Identity: NewIdentity("test", 7)}
	o.hp = NewVar("hp", 100)
	o.fields = NewFields(o.hp)
	return o
}

func (o *testObject) SyncFields() *Fields { return o.fields }
func (o *testObject) OnStartServer()      { o.started++ }
func (o *testObject) OnStopServer() {
	o.stopped++
	if o.onStop != nil {
		o.onStop()
	}
}

func TestWorldSpawnAssignsIdentity(t *testing.T) {
	w := NewWorld()
	a, b := newTestObject(), newTestObject()

	idA := w.Spawn(a, 3)
	idB := w.Spawn(b, NoConn)

	if idA == 0 || idB == 0 || idA == idB {
		t.Fatalf("expected distinct non-zero ids, got %d and %d", idA, idB)
	}
	if a.Owner() != 3 || b.Owner() != NoConn {
		t.Errorf("owners not assigned: %d, %d", a.Owner(), b.Owner())
	}
	if a.started != 1 {
		t.Errorf("OnStartServer should run once, ran %d", a.started)
	}
	if again := w.Spawn(a, 5); again != idA || a.Owner() != 3 {
		t.Errorf("respawn should be a no-op, got id %d owner %d", again, a.Owner())
	}
	if got := w.OwnedBy(3); len(got) != 1 || got[0] != a {
		t.Errorf("OwnedBy(3) = %v", got)
	}
}

func TestWorldFlushSpawnThenDelta(t *testing.T) {
	w := NewWorld()
	o := newTestObject()
	o.hp.Set(90) // before spawn: part of the snapshot, not a delta
	w.Spawn(o, 1)

	f, err := w.Flush()
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Spawns) != 1 || len(f.Updates) != 0 {
		t.Fatalf("expected 1 spawn and no updates, got %d/%d", len(f.Spawns), len(f.Updates))
	}
	s := f.Spawns[0]
	if s.Kind != "test" || s.Owner != 1 || s.Template != 7 {
		t.Errorf("unexpected spawn entry %+v", s)
	}

	f, _ = w.Flush()
	if !f.Empty() {
		t.Errorf("expected empty frame, got %+v", f)
	}

	o.hp.Set(80)
	f, _ = w.Flush()
	if len(f.Updates) != 1 || f.Updates[0].ID != o.ID() {
		t.Fatalf("expected one update for %d, got %+v", o.ID(), f.Updates)
	}
	if _, ok := f.Updates[0].Fields["hp"]; !ok {
		t.Error("update should carry hp")
	}
}

func TestWorldIdenticalSetProducesNoDelta(t *testing.T) {
	w := NewWorld()
	o := newTestObject()
	w.Spawn(o, 1)
	w.Flush()

	o.hp.Set(100)
	f, _ := w.Flush()
	if !f.Empty() {
		t.Errorf("setting the same value should not replicate, got %+v", f.Updates)
	}
}

func TestWorldDestroyBeforeFlushIsNeverSent(t *testing.T) {
	w := NewWorld()
	o := newTestObject()
	w.Spawn(o, 1)
	w.Destroy(o)

	f, _ := w.Flush()
	if !f.Empty() {
		t.Errorf("spawn+destroy in one tick should send nothing, got %+v", f)
	}
	if o.stopped != 1 {
		t.Errorf("OnStopServer should run once, ran %d", o.stopped)
	}
	if o.Spawned() {
		t.Error("destroyed object should not report spawned")
	}
}

func TestWorldDestroySendsDespawn(t *testing.T) {
	w := NewWorld()
	o := newTestObject()
	id := w.Spawn(o, 1)
	w.Flush()

	w.Destroy(o)
	w.Destroy(o)
	f, _ := w.Flush()
	if len(f.Despawns) != 1 || f.Despawns[0] != id {
		t.Errorf("expected despawn of %d, got %v", id, f.Despawns)
	}
	if o.stopped != 1 {
		t.Errorf("double destroy should stop once, stopped %d", o.stopped)
	}
	if w.Len() != 0 {
		t.Errorf("expected empty world, got %d", w.Len())
	}
}

func TestWorldDestroyFromStopHook(t *testing.T) {
	w := NewWorld()
	parent, child := newTestObject(), newTestObject()
	parent.onStop = func() { w.Destroy(child) }
	w.Spawn(parent, 1)
	w.Spawn(child, 1)

	w.Reset()
	if w.Len() != 0 {
		t.Errorf("expected empty world after reset, got %d", w.Len())
	}
	if child.stopped != 1 || parent.stopped != 1 {
		t.Errorf("stop counts parent=%d child=%d", parent.stopped, child.stopped)
	}
}

func TestWorldSnapshotKeepsPendingDeltas(t *testing.T) {
	w := NewWorld()
	o := newTestObject()
	w.Spawn(o, 1)
	w.Flush()
	o.hp.Set(42)

	snap, err := w.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Forced || len(snap.Spawns) != 1 {
		t.Fatalf("expected forced snapshot with one spawn, got %+v", snap)
	}

	f, _ := w.Flush()
	if len(f.Updates) != 1 {
		t.Errorf("snapshot must not consume the delta, got %+v", f.Updates)
	}
}

func TestFrameRoundTripIntoMirrors(t *testing.T) {
	w := NewWorld()
	o := newTestObject()
	w.Spawn(o, 2)
	o.hp.Set(55)

	f, _ := w.Flush()
	data, err := EncodeFrame(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeFrame(data)
	if err != nil {
		t.Fatal(err)
	}

	hp := NewMirror("hp", 100)
	var calls [][2]int
	hp.OnChange(func(old, new int) { calls = append(calls, [2]int{old, new}) })
	if err := NewMirrors(hp).Apply(got.Spawns[0].Fields, got.Forced); err != nil {
		t.Fatal(err)
	}
	if hp.Get() != 55 {
		t.Errorf("expected 55, got %d", hp.Get())
	}
	if len(calls) != 1 || calls[0] != [2]int{100, 55} {
		t.Errorf("unexpected hook calls %v", calls)
	}
}

func TestDecodeFrameGarbage(t *testing.T) {
	if _, err := DecodeFrame([]byte{0xc1}); err == nil {
		t.Error("expected error for invalid msgpack")
	}
}
