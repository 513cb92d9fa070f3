package game

import "testing"

func unitBoxAt(x, z float64) AABB {
	return Box{Size: Vec3{X: 2, Y: 2, Z: 2}}.At(Vec3{X: x, Z: z})
}

func TestGeometryOverlap(t *testing.T) {
	g := NewGeometry()
	g.Add(unitBoxAt(0, 0), LayerBuildBlocking)

	if !g.Overlaps(unitBoxAt(1, 1), LayerBuildBlocking) {
		t.Error("expected overlap with intersecting box")
	}
	if g.Overlaps(unitBoxAt(10, 10), LayerBuildBlocking) {
		t.Error("far box should not overlap")
	}
	if g.Overlaps(unitBoxAt(1, 1), LayerDefault) {
		t.Error("different layer should not overlap")
	}
}

func TestGeometryTouchingFaces(t *testing.T) {
	g := NewGeometry()
	g.Add(unitBoxAt(0, 0), LayerBuildBlocking)

	if g.Overlaps(unitBoxAt(2, 0), LayerBuildBlocking) {
		t.Error("boxes sharing a face should not overlap")
	}
}

func TestGeometryAcrossCells(t *testing.T) {
	g := NewGeometry()
	// spans negative and positive cells
	big := AABB{Min: Vec3{X: -20, Y: 0, Z: -20}, Max: Vec3{X: 20, Y: 5, Z: 20}}
	id := g.Add(big, LayerBuildBlocking)

	if !g.Overlaps(unitBoxAt(-15, 17), LayerBuildBlocking) {
		t.Error("expected overlap in a far cell of a large volume")
	}

	g.Remove(id)
	if g.Overlaps(unitBoxAt(-15, 17), LayerBuildBlocking) {
		t.Error("removed volume should not overlap")
	}
	if g.Len() != 0 {
		t.Errorf("expected 0 volumes, got %d", g.Len())
	}
	g.Remove(id)
}

func TestGeometryClear(t *testing.T) {
	g := NewGeometry()
	g.Add(unitBoxAt(0, 0), LayerBuildBlocking)
	g.Add(unitBoxAt(30, 30), LayerBuildBlocking)
	g.Clear()

	if g.Overlaps(unitBoxAt(0, 0), LayerBuildBlocking) {
		t.Error("expected no overlap after clear")
	}
}
