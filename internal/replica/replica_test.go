package replica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rts-server/internal/game"
	"rts-server/internal/netsync"
	"rts-server/internal/protocol"
)

type worldNet struct{ *netsync.World }

func (worldNet) Disconnect(netsync.ConnID) {}

// harness drives a real coordinator and feeds its frames to one replica.
type harness struct {
	world *netsync.World
	coord *game.Coordinator
	r     *Replica
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	w := netsync.NewWorld()
	coord := game.NewCoordinator(game.Options{
		Net:    worldNet{w},
		Scenes: game.NewMapCatalog("Scene_Lobby", game.DefaultMaps()...),
	})
	t.Cleanup(coord.Close)
	return &harness{world: w, coord: coord, r: New()}
}

func (h *harness) welcome(t *testing.T, conn netsync.ConnID) {
	t.Helper()
	p := h.coord.Player(conn)
	require.NotNil(t, p)
	raw, err := protocol.Encode(protocol.MsgWelcome, protocol.WelcomeMsg{
		Conn: int32(conn), Player: uint32(p.ID()), Scene: "Scene_Lobby",
	})
	require.NoError(t, err)
	require.NoError(t, h.r.HandleText(raw))
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	f, err := h.world.Flush()
	require.NoError(t, err)
	data, err := netsync.EncodeFrame(f)
	require.NoError(t, err)
	require.NoError(t, h.r.HandleBinary(data))
}

func (h *harness) snapshot(t *testing.T) {
	t.Helper()
	f, err := h.world.Snapshot()
	require.NoError(t, err)
	require.NoError(t, h.r.ApplyFrame(f))
}

// lobby joins two players with the replica as conn 1.
func (h *harness) lobby(t *testing.T) {
	t.Helper()
	h.coord.OnPlayerJoin(1)
	h.welcome(t, 1)
	h.coord.OnPlayerJoin(2)
	h.flush(t)
}

func TestLocalPlayerAndPartyOwner(t *testing.T) {
	h := newHarness(t)
	var owner []bool
	h.r.PartyOwnerChanged.Subscribe(func(v bool) { owner = append(owner, v) })
	var connected int
	h.r.Connected.Subscribe(func(protocol.WelcomeMsg) { connected++ })

	h.coord.OnPlayerJoin(1)
	h.welcome(t, 1)
	h.flush(t)

	assert.Equal(t, 1, connected)
	assert.Equal(t, netsync.ConnID(1), h.r.Conn())
	me := h.r.LocalPlayer()
	require.NotNil(t, me)
	assert.True(t, me.Local())
	assert.Equal(t, "Player 1", me.DisplayName.Get())
	assert.True(t, me.PartyOwner.Get())
	assert.Equal(t, []bool{true}, owner)

	var info []*Player
	h.r.InfoUpdated.Subscribe(func(p *Player) { info = append(info, p) })
	h.coord.OnPlayerJoin(2)
	h.flush(t)

	require.Len(t, h.r.Players(), 2)
	other := h.r.Players()[1]
	assert.False(t, other.Local())
	assert.Equal(t, "Player 2", other.DisplayName.Get())
	assert.Contains(t, info, other)
	assert.Equal(t, []bool{true}, owner, "remote party-owner state is not reported")
}

func TestRosterAndResources(t *testing.T) {
	h := newHarness(t)
	h.lobby(t)

	var mine []*Building
	h.r.Bus.BuildingSpawned.Subscribe(func(b *Building) { mine = append(mine, b) })
	require.NoError(t, h.coord.StartGame())
	h.flush(t)

	assert.Len(t, h.r.Buildings(), 2, "every base is visible")
	require.Len(t, mine, 1, "authority scope only sees our own base")
	assert.Equal(t, netsync.ConnID(1), mine[0].Owner)
	me := h.r.LocalPlayer()
	assert.Equal(t, mine, me.Buildings())
	assert.Equal(t, game.Vec3{X: -40, Z: -40}, mine[0].Position.Get())

	var resources []int
	h.r.ResourcesUpdated.Subscribe(func(p *Player) {
		if p.Local() {
			resources = append(resources, p.Resources.Get())
		}
	})
	require.NoError(t, h.coord.Player(1).RequestSpawnUnit(1))
	h.flush(t)

	assert.Equal(t, []int{450}, resources)
	require.Len(t, me.Units(), 1)
	assert.Equal(t, mine[0].Position.Get().Add(game.UnitSpawnOffset), me.Units()[0].Position.Get())
	assert.Empty(t, h.r.Players()[1].Units(), "remote rosters are not tracked")
}

func TestGameOverAnnounced(t *testing.T) {
	h := newHarness(t)
	h.lobby(t)
	require.NoError(t, h.coord.StartGame())
	h.flush(t)

	var winners []string
	h.r.GameOver.Subscribe(func(w string) { winners = append(winners, w) })
	enemy := h.coord.Player(2).Buildings()[0]
	enemy.Health().DealDamage(enemy.Health().Max())
	h.flush(t)

	assert.Equal(t, []string{"Player 1"}, winners)
	assert.Equal(t, "Player 1", h.r.Winner())
	assert.Len(t, h.r.Buildings(), 1)
	assert.Len(t, h.r.LocalPlayer().Buildings(), 1)
}

func TestForcedSnapshotReplaysHooks(t *testing.T) {
	h := newHarness(t)
	h.coord.OnPlayerJoin(1)
	h.coord.OnPlayerJoin(2)
	h.world.Flush()

	h.r = New()
	h.welcome(t, 2)
	var owner []bool
	h.r.PartyOwnerChanged.Subscribe(func(v bool) { owner = append(owner, v) })

	h.snapshot(t)
	require.Equal(t, 2, h.r.Len())
	assert.Equal(t, []bool{false}, owner, "forced apply replays unchanged values")

	h.snapshot(t)
	assert.Equal(t, 2, h.r.Len(), "known ids are updated, not spawned twice")
	assert.Equal(t, []bool{false, false}, owner)
}

func TestDespawnAndPromotion(t *testing.T) {
	h := newHarness(t)
	h.coord.OnPlayerJoin(2)
	h.coord.OnPlayerJoin(1)
	h.welcome(t, 1)
	h.flush(t)

	var owner []bool
	h.r.PartyOwnerChanged.Subscribe(func(v bool) { owner = append(owner, v) })
	var left []*Player
	h.r.InfoUpdated.Subscribe(func(p *Player) { left = append(left, p) })
	gone := h.r.Players()[0]

	h.coord.OnDisconnect(2)
	h.flush(t)

	require.Len(t, h.r.Players(), 1)
	assert.Equal(t, []bool{true}, owner)
	assert.Contains(t, left, gone)
}

func TestControlMessages(t *testing.T) {
	r := New()
	var rejected []protocol.RejectedMsg
	r.Rejected.Subscribe(func(m protocol.RejectedMsg) { rejected = append(rejected, m) })
	var scenes []string
	r.SceneChanged.Subscribe(func(s string) { scenes = append(scenes, s) })

	raw, _ := protocol.Encode(protocol.MsgRejected, protocol.RejectedMsg{Op: "spawn_unit", Reason: "no base"})
	require.NoError(t, r.HandleText(raw))
	raw, _ = protocol.Encode(protocol.MsgScene, protocol.SceneMsg{Name: "Scene_Map01"})
	require.NoError(t, r.HandleText(raw))

	assert.Equal(t, []protocol.RejectedMsg{{Op: "spawn_unit", Reason: "no base"}}, rejected)
	assert.Equal(t, []string{"Scene_Map01"}, scenes)
	assert.Equal(t, "Scene_Map01", r.Scene())

	assert.Error(t, r.HandleText([]byte("{")))
	assert.Error(t, r.HandleBinary([]byte{0xc1}))
	raw, _ = protocol.Encode("something_new", nil)
	assert.NoError(t, r.HandleText(raw), "unknown types are ignored")
}

func TestResetUnsubscribesRoster(t *testing.T) {
	h := newHarness(t)
	h.lobby(t)
	require.NoError(t, h.coord.StartGame())
	h.flush(t)
	require.Equal(t, 1, h.r.Bus.BuildingSpawned.Len())
	require.Equal(t, 1, h.r.Bus.UnitSpawned.Len())

	h.r.Reset()
	assert.Zero(t, h.r.Len())
	assert.Empty(t, h.r.Players())
	assert.Zero(t, h.r.Bus.UnitSpawned.Len())
	assert.Zero(t, h.r.Bus.UnitDespawned.Len())
	assert.Zero(t, h.r.Bus.BuildingSpawned.Len())
	assert.Zero(t, h.r.Bus.BuildingDespawned.Len())
	assert.Equal(t, netsync.NoConn, h.r.Conn())
}
