package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	protoactor "github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"

	"rts-server/internal/game"
	"rts-server/internal/netsync"
	"rts-server/internal/protocol"
)

const (
	defaultSyncRate   = 20
	defaultAskTimeout = 3 * time.Second
)

var ErrAuthorityStopped = errors.New("authority stopped")

// Peer is one connected client as seen by the authority.
type Peer interface {
	ID() netsync.ConnID
	SendRaw(data []byte)
	SendBinary(data []byte)
	Kick(reason string)
}

// AuthorityOptions configures the session actor.
type AuthorityOptions struct {
	Rules    game.Rules
	Catalog  game.Catalog
	Maps     []game.MapInfo
	SyncRate int // replication ticks per second
	Logger   *zap.Logger
	Recorder game.MatchRecorder
}

// Authority runs the single game session inside a protoactor actor. Every
// connect, disconnect, command and replication tick goes through its mailbox.
type Authority struct {
	system  *protoactor.ActorSystem
	root    *protoactor.RootContext
	pid     *protoactor.PID
	timeout time.Duration
	log     *zap.Logger

	stopOnce sync.Once
}

func NewAuthority(opts AuthorityOptions) *Authority {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SyncRate <= 0 {
		opts.SyncRate = defaultSyncRate
	}
	if len(opts.Maps) == 0 {
		opts.Maps = game.DefaultMaps()
	}

	system := protoactor.NewActorSystem()
	root := system.Root
	props := protoactor.PropsFromProducer(func() protoactor.Actor {
		return newSessionActor(opts)
	})
	pid := root.Spawn(props)

	return &Authority{
		system:  system,
		root:    root,
		pid:     pid,
		timeout: defaultAskTimeout,
		log:     opts.Logger,
	}
}

// Connect hands a freshly upgraded connection to the session.
func (a *Authority) Connect(p Peer) {
	a.root.Send(a.pid, &connectMsg{peer: p})
}

// Disconnect removes conn and everything its player owns.
func (a *Authority) Disconnect(conn netsync.ConnID) {
	a.root.Send(a.pid, &disconnectMsg{conn: conn})
}

// Command queues a control message received from conn.
func (a *Authority) Command(conn netsync.ConnID, env protocol.InEnvelope) {
	a.root.Send(a.pid, &commandMsg{conn: conn, env: env})
}

// LinkAccount attaches an authenticated account to conn's player.
func (a *Authority) LinkAccount(conn netsync.ConnID, account int64) {
	a.root.Send(a.pid, &accountMsg{conn: conn, account: account})
}

// Status asks the actor for a roster summary.
func (a *Authority) Status(ctx context.Context) (Status, error) {
	res, err := a.root.RequestFuture(a.pid, &statusQuery{}, a.timeoutFromContext(ctx)).Result()
	if err != nil {
		return Status{}, fmt.Errorf("query status: %w", err)
	}
	st, ok := res.(Status)
	if !ok {
		return Status{}, ErrAuthorityStopped
	}
	return st, nil
}

// Shutdown stops the session actor, tearing down every entity, then the
// actor system.
func (a *Authority) Shutdown() {
	a.stopOnce.Do(func() {
		if err := a.root.StopFuture(a.pid).Wait(); err != nil {
			a.log.Warn("session actor did not stop cleanly", zap.Error(err))
		}
		a.system.Shutdown()
	})
}

func (a *Authority) timeoutFromContext(ctx context.Context) time.Duration {
	if ctx == nil {
		return a.timeout
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return a.timeout
	}
	remain := time.Until(deadline)
	if remain <= 0 {
		return time.Millisecond
	}
	if remain < a.timeout {
		return remain
	}
	return a.timeout
}

// Status is the /status payload.
type Status struct {
	InProgress bool           `json:"in_progress"`
	Scene      string         `json:"scene"`
	Tick       uint64         `json:"tick"`
	Winner     string         `json:"winner,omitempty"`
	Players    []PlayerStatus `json:"players"`
	Clients    int            `json:"clients"` // open sockets, filled in by /status
}

type PlayerStatus struct {
	Conn       int32  `json:"conn"`
	Name       string `json:"name"`
	PartyOwner bool   `json:"party_owner"`
	Resources  int    `json:"resources"`
	Units      int    `json:"units"`
	Buildings  int    `json:"buildings"`
}

type (
	connectMsg    struct{ peer Peer }
	disconnectMsg struct{ conn netsync.ConnID }
	commandMsg    struct {
		conn netsync.ConnID
		env  protocol.InEnvelope
	}
	accountMsg struct {
		conn    netsync.ConnID
		account int64
	}
	statusQuery struct{}
	syncTick    struct{}
)

// sessionActor owns the world and the coordinator. Nothing here is touched
// outside Receive.
type sessionActor struct {
	opts     AuthorityOptions
	log      *zap.Logger
	world    *netsync.World
	scenes   *sceneBroadcaster
	coord    *game.Coordinator
	peers    map[netsync.ConnID]Peer
	tickStop chan struct{}
}

func newSessionActor(opts AuthorityOptions) *sessionActor {
	s := &sessionActor{
		opts:  opts,
		log:   opts.Logger,
		world: netsync.NewWorld(),
		peers: make(map[netsync.ConnID]Peer),
	}
	rules := opts.Rules
	if rules == (game.Rules{}) {
		rules = game.DefaultRules()
	}
	s.scenes = &sceneBroadcaster{MapCatalog: game.NewMapCatalog(rules.LobbyScene, opts.Maps...), s: s}
	s.coord = game.NewCoordinator(game.Options{
		Rules:    rules,
		Catalog:  opts.Catalog,
		Net:      &actorNet{World: s.world, s: s},
		Scenes:   s.scenes,
		Logger:   opts.Logger,
		Recorder: opts.Recorder,
	})
	return s
}

func (s *sessionActor) Receive(ctx protoactor.Context) {
	switch msg := ctx.Message().(type) {
	case *protoactor.Started:
		s.startTicker(ctx)
		s.log.Info("session started", zap.String("scene", s.scenes.ActiveScene()))
	case *protoactor.Stopping:
		s.stopTicker()
		s.coord.OnStop()
		s.world.Reset()
		s.coord.Close()
		s.log.Info("session stopped")
	case *protoactor.Stopped:
		s.stopTicker()
	case *connectMsg:
		s.connect(msg.peer)
	case *disconnectMsg:
		delete(s.peers, msg.conn)
		s.coord.OnDisconnect(msg.conn)
	case *commandMsg:
		s.command(msg.conn, msg.env)
	case *accountMsg:
		if p := s.coord.Player(msg.conn); p != nil {
			p.LinkAccount(msg.account)
		}
	case *statusQuery:
		ctx.Respond(s.status())
	case syncTick:
		s.flush()
	}
}

func (s *sessionActor) startTicker(ctx protoactor.Context) {
	if s.tickStop != nil {
		return
	}
	s.tickStop = make(chan struct{})
	self := ctx.Self()
	root := ctx.ActorSystem().Root
	every := time.Second / time.Duration(s.opts.SyncRate)

	go func(stop <-chan struct{}) {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				root.Send(self, syncTick{})
			case <-stop:
				return
			}
		}
	}(s.tickStop)
}

func (s *sessionActor) stopTicker() {
	if s.tickStop == nil {
		return
	}
	close(s.tickStop)
	s.tickStop = nil
}

func (s *sessionActor) connect(peer Peer) {
	id := peer.ID()
	s.peers[id] = peer
	if !s.coord.OnConnect(id) {
		return
	}
	p := s.coord.OnPlayerJoin(id)

	s.send(peer, protocol.MsgWelcome, protocol.WelcomeMsg{
		Conn:   int32(id),
		Player: uint32(p.ID()),
		Scene:  s.scenes.ActiveScene(),
	})
	snap, err := s.world.Snapshot()
	if err != nil {
		s.log.Error("snapshot", zap.Int32("conn", int32(id)), zap.Error(err))
		return
	}
	data, err := netsync.EncodeFrame(snap)
	if err != nil {
		s.log.Error("encode snapshot", zap.Error(err))
		return
	}
	peer.SendBinary(data)
}

func (s *sessionActor) command(conn netsync.ConnID, env protocol.InEnvelope) {
	p := s.coord.Player(conn)
	if p == nil {
		return
	}
	var err error
	switch env.T {
	case protocol.MsgStartGame:
		err = p.RequestStartGame()
	case protocol.MsgPlaceBuilding:
		var m protocol.PlaceBuildingMsg
		if err = decode(env.D, &m); err == nil {
			err = p.RequestPlaceBuilding(m.ID, game.Vec3{X: m.X, Y: m.Y, Z: m.Z})
		}
	case protocol.MsgSpawnUnit:
		var m protocol.SpawnUnitMsg
		if err = decode(env.D, &m); err == nil {
			err = p.RequestSpawnUnit(m.ID)
		}
	case protocol.MsgSetTarget:
		var m protocol.SetTargetMsg
		if err = decode(env.D, &m); err == nil {
			err = p.RequestSetTarget(netsync.NetID(m.Unit), netsync.NetID(m.Target))
		}
	default:
		s.send(s.peers[conn], protocol.MsgError, protocol.ErrorMsg{Msg: "unknown message type " + env.T})
		return
	}
	if err != nil {
		s.log.Debug("operation rejected",
			zap.Int32("conn", int32(conn)),
			zap.String("op", env.T),
			zap.Error(err))
		s.send(s.peers[conn], protocol.MsgRejected, protocol.RejectedMsg{Op: env.T, Reason: err.Error()})
	}
}

var errMalformed = errors.New("malformed payload")

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return errMalformed
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errMalformed
	}
	return nil
}

func (s *sessionActor) flush() {
	f, err := s.world.Flush()
	if err != nil {
		s.log.Error("flush", zap.Error(err))
		return
	}
	if f.Empty() {
		return
	}
	data, err := netsync.EncodeFrame(f)
	if err != nil {
		s.log.Error("encode frame", zap.Error(err))
		return
	}
	for _, peer := range s.peers {
		peer.SendBinary(data)
	}
}

func (s *sessionActor) send(peer Peer, t string, data interface{}) {
	if peer == nil {
		return
	}
	raw, err := protocol.Encode(t, data)
	if err != nil {
		s.log.Error("marshal", zap.String("type", t), zap.Error(err))
		return
	}
	peer.SendRaw(raw)
}

func (s *sessionActor) broadcast(t string, data interface{}) {
	raw, err := protocol.Encode(t, data)
	if err != nil {
		s.log.Error("marshal", zap.String("type", t), zap.Error(err))
		return
	}
	for _, peer := range s.peers {
		peer.SendRaw(raw)
	}
}

func (s *sessionActor) status() Status {
	st := Status{
		InProgress: s.coord.InProgress(),
		Scene:      s.scenes.ActiveScene(),
		Tick:       s.world.Tick(),
		Players:    []PlayerStatus{},
	}
	if obs := s.coord.Observer(); obs != nil {
		st.Winner = obs.Winner()
	}
	for _, p := range s.coord.Players() {
		st.Players = append(st.Players, PlayerStatus{
			Conn:       int32(p.Owner()),
			Name:       p.DisplayName(),
			PartyOwner: p.IsPartyOwner(),
			Resources:  p.Resources(),
			Units:      len(p.Units()),
			Buildings:  len(p.Buildings()),
		})
	}
	return st
}

// actorNet is the coordinator's Network: the world plus the peer table.
type actorNet struct {
	*netsync.World
	s *sessionActor
}

func (n *actorNet) Disconnect(conn netsync.ConnID) {
	peer, ok := n.s.peers[conn]
	if !ok {
		return
	}
	delete(n.s.peers, conn)
	peer.Kick("connection refused")
}

// sceneBroadcaster tells every client about a map change before the
// coordinator sets the new map up.
type sceneBroadcaster struct {
	*game.MapCatalog
	s *sessionActor
}

func (b *sceneBroadcaster) ChangeScene(name string, ready func(string)) {
	b.MapCatalog.ChangeScene(name, func(loaded string) {
		b.s.log.Info("scene changed", zap.String("scene", loaded))
		b.s.broadcast(protocol.MsgScene, protocol.SceneMsg{Name: loaded})
		if ready != nil {
			ready(loaded)
		}
	})
}
