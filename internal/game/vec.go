// Package game holds the authoritative session logic: players, their rosters
// and economy, building placement, match start and game over.
//
// Everything in this package runs on the authority's single processing loop
// and is not safe for concurrent use.
package game

import "rts-server/internal/netsync"

// ConnID is the connection that owns a player and its entities.
type ConnID = netsync.ConnID

// Entity kinds sent with every spawn.
const (
	KindPlayer   netsync.Kind = "player"
	KindUnit     netsync.Kind = "unit"
	KindBuilding netsync.Kind = "building"
	KindGameOver netsync.Kind = "gameover"
)

// Vec3 is a world position. Y is up; the map plane is XZ.
type Vec3 struct {
	X float64 `msgpack:"x" json:"x"`
	Y float64 `msgpack:"y" json:"y"`
	Z float64 `msgpack:"z" json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// SqrMagnitude is the squared length, used for range checks.
func (v Vec3) SqrMagnitude() float64 { return v.X*v.X + v.Y*v.Y + v.Z*v.Z }

// AABB is an axis-aligned volume.
type AABB struct {
	Min Vec3
	Max Vec3
}

// Overlaps reports whether the two volumes share interior space. Boxes that
// only touch along a face do not overlap.
func (a AABB) Overlaps(b AABB) bool {
	return a.Min.X < b.Max.X && b.Min.X < a.Max.X &&
		a.Min.Y < b.Max.Y && b.Min.Y < a.Max.Y &&
		a.Min.Z < b.Max.Z && b.Min.Z < a.Max.Z
}

// Box is a collider relative to its owner's origin.
type Box struct {
	Center Vec3
	Size   Vec3
}

// At translates the box to point.
func (b Box) At(point Vec3) AABB {
	c := point.Add(b.Center)
	half := b.Size.Scale(0.5)
	return AABB{Min: c.Sub(half), Max: c.Add(half)}
}

// Color is an RGB team color, each channel in [0, 1).
type Color struct {
	R float32 `msgpack:"r" json:"r"`
	G float32 `msgpack:"g" json:"g"`
	B float32 `msgpack:"b" json:"b"`
}

// Layer is a bitmask of collision layers.
type Layer uint32

const (
	LayerDefault Layer = 1 << iota
	LayerBuildBlocking
)
