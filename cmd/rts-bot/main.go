// Command rts-bot is a headless client: it joins a session, optionally starts
// the match once enough players are in, and opens with a unit and a building.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"rts-server/internal/config"
	"rts-server/internal/game"
	"rts-server/internal/logs"
	"rts-server/internal/protocol"
	"rts-server/internal/replica"
)

// generatorOffset keeps the first building clear of the base footprint but
// inside the building range.
var generatorOffset = game.Vec3{X: 3, Z: -3}

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "Server websocket URL")
	autostart := flag.Bool("autostart", false, "Start the match when party owner and enough players joined")
	minPlayers := flag.Int("players", 2, "Players required before autostart")
	build := flag.Bool("build", true, "Spawn a unit and place a generator once the base exists")
	token := flag.String("token", "", "Resume an account session with this token")
	level := flag.String("log", "info", "Log level")
	flag.Parse()

	log, _ := logs.New("rts-bot", config.LogConfig{Level: *level})
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := replica.Dial(ctx, *url, log)
	if err != nil {
		log.Fatal("connect", zap.Error(err))
	}
	defer c.Close()

	started, built := false, false
	c.Do(func(r *replica.Replica) {
		r.Connected.Subscribe(func(w protocol.WelcomeMsg) {
			log.Info("connected", zap.Int32("conn", w.Conn), zap.String("scene", w.Scene))
			if *token != "" {
				if err := c.Resume(*token); err != nil {
					log.Warn("resume", zap.Error(err))
				}
			}
		})
		r.PartyOwnerChanged.Subscribe(func(owner bool) {
			log.Info("party owner changed", zap.Bool("owner", owner))
		})
		r.InfoUpdated.Subscribe(func(*replica.Player) {
			me := r.LocalPlayer()
			if !*autostart || started || me == nil || !me.PartyOwner.Get() || len(r.Players()) < *minPlayers {
				return
			}
			started = true
			log.Info("starting match", zap.Int("players", len(r.Players())))
			if err := c.StartGame(); err != nil {
				log.Warn("start game", zap.Error(err))
			}
		})
		r.SceneChanged.Subscribe(func(scene string) {
			log.Info("scene changed", zap.String("scene", scene))
		})
		r.Bus.BuildingSpawned.Subscribe(func(b *replica.Building) {
			log.Info("building spawned", zap.Uint32("id", uint32(b.ID)), zap.Int32("template", b.Template))
			if !*build || built || b.Template != game.DefaultCatalog().Base.ID {
				return
			}
			built = true
			if err := c.SpawnUnit(1); err != nil {
				log.Warn("spawn unit", zap.Error(err))
			}
			if err := c.PlaceBuilding(1, b.Position.Get().Add(generatorOffset)); err != nil {
				log.Warn("place building", zap.Error(err))
			}
		})
		r.ResourcesUpdated.Subscribe(func(p *replica.Player) {
			if p.Local() {
				log.Debug("resources", zap.Int("resources", p.Resources.Get()))
			}
		})
		r.Rejected.Subscribe(func(m protocol.RejectedMsg) {
			log.Warn("operation rejected", zap.String("op", m.Op), zap.String("reason", m.Reason))
		})
		r.Errors.Subscribe(func(msg string) {
			log.Warn("server error", zap.String("msg", msg))
		})
		r.GameOver.Subscribe(func(winner string) {
			log.Info("game over", zap.String("winner", winner))
			stop()
		})
	})

	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("connection lost", zap.Error(err))
	}
}
