package game

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rts-server/internal/events"
	"rts-server/internal/netsync"
)

// Options wires a Coordinator to its collaborators. Net and Scenes are
// required; the rest default.
type Options struct {
	Rules    Rules
	Catalog  Catalog
	Net      Network
	Scenes   SceneManager
	Geometry *Geometry
	Bus      *Bus
	Rand     *rand.Rand
	Logger   *zap.Logger
	Recorder MatchRecorder
	Now      func() time.Time
}

// Coordinator owns the roster of one session and drives the match lifecycle.
type Coordinator struct {
	rules     Rules
	catalog   Catalog
	net       Network
	scenes    SceneManager
	geometry  *Geometry
	collision CollisionQuery
	bus       *Bus
	rng       *rand.Rand
	log       *zap.Logger
	recorder  MatchRecorder
	now       func() time.Time

	players    []*Player
	joined     int
	inProgress bool
	observer   *GameOverHandler

	matchID      uuid.UUID
	startedAt    time.Time
	participants []*Player
	eliminated   map[ConnID]bool
	obstacles  []VolumeID

	units     map[netsync.NetID]*Unit
	buildings map[netsync.NetID]*Building
	volumes   map[*Building]VolumeID
	handles   []func()
}

func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		rules:      opts.Rules,
		catalog:    opts.Catalog,
		net:        opts.Net,
		scenes:     opts.Scenes,
		geometry:   opts.Geometry,
		bus:        opts.Bus,
		rng:        opts.Rand,
		log:        opts.Logger,
		recorder:   opts.Recorder,
		now:        opts.Now,
		eliminated: make(map[ConnID]bool),
		units:      make(map[netsync.NetID]*Unit),
		buildings:  make(map[netsync.NetID]*Building),
		volumes:    make(map[*Building]VolumeID),
	}
	if c.rules == (Rules{}) {
		c.rules = DefaultRules()
	}
	if len(c.catalog.Buildings) == 0 && len(c.catalog.Units) == 0 {
		c.catalog = DefaultCatalog()
	}
	if c.geometry == nil {
		c.geometry = NewGeometry()
	}
	c.collision = c.geometry
	if c.bus == nil {
		c.bus = NewBus()
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.subscribe()
	return c
}

func (c *Coordinator) subscribe() {
	b := c.bus
	track(&c.handles, &b.UnitSpawned, func(u *Unit) { c.units[u.ID()] = u })
	track(&c.handles, &b.UnitDespawned, func(u *Unit) { delete(c.units, u.ID()) })
	track(&c.handles, &b.BuildingSpawned, func(bd *Building) {
		c.buildings[bd.ID()] = bd
		c.volumes[bd] = c.geometry.Add(bd.Volume(), LayerBuildBlocking)
	})
	track(&c.handles, &b.BuildingDespawned, func(bd *Building) {
		delete(c.buildings, bd.ID())
		if id, ok := c.volumes[bd]; ok {
			c.geometry.Remove(id)
			delete(c.volumes, bd)
		}
	})
	track(&c.handles, &b.PlayerDied, c.handlePlayerDied)
	track(&c.handles, &b.GameOver, c.handleGameOver)
}

func track[T any](undo *[]func(), ch *events.Channel[T], fn func(T)) {
	h := ch.Subscribe(fn)
	*undo = append(*undo, func() { ch.Unsubscribe(h) })
}

// Close drops the coordinator's own bus subscriptions.
func (c *Coordinator) Close() {
	for _, undo := range c.handles {
		undo()
	}
	c.handles = nil
}

func (c *Coordinator) Bus() *Bus { return c.bus }

func (c *Coordinator) Rules() Rules { return c.rules }

func (c *Coordinator) Catalog() Catalog { return c.catalog }

func (c *Coordinator) Geometry() *Geometry { return c.geometry }

func (c *Coordinator) InProgress() bool { return c.inProgress }

// Observer is the live GameOverHandler, nil outside a battle map.
func (c *Coordinator) Observer() *GameOverHandler { return c.observer }

// Players returns the roster in join order.
func (c *Coordinator) Players() []*Player { return append([]*Player(nil), c.players...) }

// Player finds the player of conn.
func (c *Coordinator) Player(conn ConnID) *Player {
	for _, p := range c.players {
		if p.Owner() == conn {
			return p
		}
	}
	return nil
}

// OnConnect gates a new connection. It drops the connection and returns false
// while a match runs or the lobby is full.
func (c *Coordinator) OnConnect(conn ConnID) bool {
	reason := ""
	switch {
	case c.inProgress:
		reason = "match in progress"
	case c.rules.MaxPlayers > 0 && len(c.players) >= c.rules.MaxPlayers:
		reason = "lobby full"
	}
	if reason == "" {
		return true
	}
	c.log.Info("connection refused", zap.Int32("conn", int32(conn)), zap.String("reason", reason))
	c.net.Disconnect(conn)
	return false
}

// OnPlayerJoin creates the player entity for an accepted connection.
func (c *Coordinator) OnPlayerJoin(conn ConnID) *Player {
	if p := c.Player(conn); p != nil {
		return p
	}
	c.joined++
	color := Color{R: c.rng.Float32(), G: c.rng.Float32(), B: c.rng.Float32()}
	p := newPlayer(c, fmt.Sprintf("Player %d", c.joined), color)
	p.setPartyOwner(len(c.players) == 0)
	c.net.Spawn(p, conn)
	c.players = append(c.players, p)
	c.log.Info("player joined",
		zap.Int32("conn", int32(conn)),
		zap.String("name", p.DisplayName()),
		zap.Int("players", len(c.players)))
	return p
}

// OnDisconnect removes conn's player and everything it owns.
func (c *Coordinator) OnDisconnect(conn ConnID) {
	idx := -1
	for i, p := range c.players {
		if p.Owner() == conn {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	p := c.players[idx]
	c.players = append(c.players[:idx], c.players[idx+1:]...)
	if c.inProgress {
		c.eliminated[conn] = true
	}

	for _, u := range p.Units() {
		c.net.Destroy(u)
	}
	for _, b := range p.Buildings() {
		c.net.Destroy(b)
	}
	wasOwner := p.IsPartyOwner()
	c.net.Destroy(p)

	c.log.Info("player left",
		zap.Int32("conn", int32(conn)),
		zap.String("name", p.DisplayName()),
		zap.Int("players", len(c.players)))

	if len(c.players) == 0 {
		c.reset()
		return
	}
	if wasOwner {
		c.players[0].setPartyOwner(true)
		c.log.Info("party owner changed", zap.String("name", c.players[0].DisplayName()))
	}
}

// reset returns an empty session to the lobby.
func (c *Coordinator) reset() {
	c.inProgress = false
	c.joined = 0
	c.participants = nil
	if c.observer != nil {
		c.net.Destroy(c.observer)
		c.observer = nil
	}
	c.geometry.Clear()
	c.volumes = make(map[*Building]VolumeID)
	c.obstacles = nil
	c.eliminated = make(map[ConnID]bool)
	if c.scenes.ActiveScene() != c.rules.LobbyScene {
		c.scenes.ChangeScene(c.rules.LobbyScene, c.OnMapReady)
	}
}

// OnStop forgets the roster and the match flag on host shutdown. Entities are
// torn down by the network layer.
func (c *Coordinator) OnStop() {
	c.players = nil
	c.participants = nil
	c.inProgress = false
	c.observer = nil
}

// StartGame begins the match and moves everyone to the battle map.
func (c *Coordinator) StartGame() error {
	if len(c.players) < c.rules.MinPlayers {
		return ErrNotEnoughPlayers
	}
	if c.inProgress {
		return ErrMatchInProgress
	}
	c.inProgress = true
	c.matchID = uuid.New()
	c.startedAt = c.now()
	c.participants = append([]*Player(nil), c.players...)
	c.log.Info("match starting",
		zap.String("match", c.matchID.String()),
		zap.String("map", c.rules.BattleMap),
		zap.Int("players", len(c.players)))
	c.scenes.ChangeScene(c.rules.BattleMap, c.OnMapReady)
	return nil
}

// OnMapReady sets up a battle map once loaded: obstacles, the game over
// observer and one base per player. Any other scene is ignored.
func (c *Coordinator) OnMapReady(name string) {
	active := c.scenes.ActiveScene()
	if name != active || !strings.HasPrefix(active, c.rules.BattleMapPrefix) {
		return
	}
	if c.observer != nil {
		return
	}
	for _, o := range c.scenes.Obstacles() {
		c.obstacles = append(c.obstacles, c.geometry.Add(o, LayerBuildBlocking))
	}

	c.observer = NewGameOverHandler(c.bus, c.nameOf)
	c.net.Spawn(c.observer, netsync.NoConn)

	for _, p := range c.players {
		base := NewBuilding(c.catalog.Base, c.scenes.StartPosition(), p.TeamColor(), c.bus, c.net)
		c.net.Spawn(base, p.Owner())
	}
	c.log.Info("map ready", zap.String("map", active), zap.Int("bases", len(c.players)))
}

func (c *Coordinator) nameOf(conn ConnID) string {
	if p := c.Player(conn); p != nil {
		return p.DisplayName()
	}
	for _, p := range c.participants {
		if p.Owner() == conn {
			return p.DisplayName()
		}
	}
	return fmt.Sprintf("Player %d", conn)
}

func (c *Coordinator) targetable(id netsync.NetID) bool {
	if _, ok := c.units[id]; ok {
		return true
	}
	_, ok := c.buildings[id]
	return ok
}

// Unit looks up a live unit by id.
func (c *Coordinator) Unit(id netsync.NetID) (*Unit, bool) {
	u, ok := c.units[id]
	return u, ok
}

// Building looks up a live building by id.
func (c *Coordinator) Building(id netsync.NetID) (*Building, bool) {
	b, ok := c.buildings[id]
	return b, ok
}

func (c *Coordinator) handlePlayerDied(conn ConnID) {
	c.eliminated[conn] = true
	c.log.Info("player eliminated", zap.Int32("conn", int32(conn)), zap.String("name", c.nameOf(conn)))
}

func (c *Coordinator) handleGameOver(winner string) {
	if !c.inProgress {
		// torn down by OnStop
		return
	}
	c.log.Info("game over", zap.String("winner", winner), zap.String("match", c.matchID.String()))
	if c.recorder == nil {
		return
	}
	res := MatchResult{
		ID:        c.matchID,
		Map:       c.scenes.ActiveScene(),
		Winner:    winner,
		StartedAt: c.startedAt,
		EndedAt:   c.now(),
	}
	// leavers stay in the record as eliminated
	for _, p := range c.participants {
		res.Players = append(res.Players, MatchParticipant{
			AccountID:  p.AccountID(),
			Name:       p.DisplayName(),
			Winner:     p.DisplayName() == winner,
			Eliminated: c.eliminated[p.Owner()],
		})
	}
	c.recorder.RecordMatch(res)
}
