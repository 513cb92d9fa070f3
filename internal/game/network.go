package game

import "rts-server/internal/netsync"

// Network is the replication surface the session drives. A *netsync.World
// plus a way to drop connections satisfies it.
type Network interface {
	Spawn(obj netsync.Object, owner ConnID) netsync.NetID
	Destroy(obj netsync.Object)
	Disconnect(conn ConnID)
}

// SceneManager owns the active map.
type SceneManager interface {
	ActiveScene() string
	// ChangeScene switches maps and calls ready with the new name once the map
	// is loaded.
	ChangeScene(name string, ready func(name string))
	// StartPosition hands out the next base position of the active map.
	StartPosition() Vec3
	// Obstacles are the static blocking volumes of the active map.
	Obstacles() []AABB
}
