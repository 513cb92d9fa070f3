package game

import "math"

// GeometryCellSize is the XZ edge of one broad-phase cell, about two
// footprints of the largest building.
const GeometryCellSize = 8.0

// CollisionQuery answers whether a volume intersects anything on the given
// layers.
type CollisionQuery interface {
	Overlaps(volume AABB, layers Layer) bool
}

// VolumeID identifies a volume registered with a Geometry.
type VolumeID int

type volume struct {
	box   AABB
	layer Layer
	cells []cellKey
}

type cellKey struct{ x, z int }

// Geometry is a uniform grid over the map plane holding static blocking
// volumes: map obstacles and placed buildings.
type Geometry struct {
	next    VolumeID
	volumes map[VolumeID]*volume
	cells   map[cellKey][]VolumeID
}

func NewGeometry() *Geometry {
	return &Geometry{
		volumes: make(map[VolumeID]*volume),
		cells:   make(map[cellKey][]VolumeID),
	}
}

func cellRange(box AABB) (minX, maxX, minZ, maxZ int) {
	minX = int(math.Floor(box.Min.X / GeometryCellSize))
	maxX = int(math.Floor(box.Max.X / GeometryCellSize))
	minZ = int(math.Floor(box.Min.Z / GeometryCellSize))
	maxZ = int(math.Floor(box.Max.Z / GeometryCellSize))
	return
}

// Add registers box on layer and returns its id.
func (g *Geometry) Add(box AABB, layer Layer) VolumeID {
	g.next++
	v := &volume{box: box, layer: layer}
	minX, maxX, minZ, maxZ := cellRange(box)
	for z := minZ; z <= maxZ; z++ {
		for x := minX; x <= maxX; x++ {
			k := cellKey{x, z}
			g.cells[k] = append(g.cells[k], g.next)
			v.cells = append(v.cells, k)
		}
	}
	g.volumes[g.next] = v
	return g.next
}

// Remove unregisters a volume. Unknown ids are ignored.
func (g *Geometry) Remove(id VolumeID) {
	v, ok := g.volumes[id]
	if !ok {
		return
	}
	delete(g.volumes, id)
	for _, k := range v.cells {
		ids := g.cells[k]
		for i, other := range ids {
			if other == id {
				ids = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(ids) == 0 {
			delete(g.cells, k)
		} else {
			g.cells[k] = ids
		}
	}
}

// Overlaps reports whether box intersects any registered volume on layers.
func (g *Geometry) Overlaps(box AABB, layers Layer) bool {
	minX, maxX, minZ, maxZ := cellRange(box)
	for z := minZ; z <= maxZ; z++ {
		for x := minX; x <= maxX; x++ {
			for _, id := range g.cells[cellKey{x, z}] {
				v := g.volumes[id]
				if v.layer&layers != 0 && v.box.Overlaps(box) {
					return true
				}
			}
		}
	}
	return false
}

// Len returns the number of registered volumes.
func (g *Geometry) Len() int { return len(g.volumes) }

// Clear drops every volume.
func (g *Geometry) Clear() {
	g.volumes = make(map[VolumeID]*volume)
	g.cells = make(map[cellKey][]VolumeID)
}
