package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"rts-server/internal/auth"
	"rts-server/internal/config"
	"rts-server/internal/game"
	"rts-server/internal/logs"
	"rts-server/internal/server"
	"rts-server/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (yaml, toml or json)")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	flag.Parse()

	loader, err := config.NewLoader(*configPath)
	if err != nil {
		fallback("load config", err)
	}
	cfg, err := loader.Config()
	if err != nil {
		fallback("load config", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	log, level := logs.New("rts-server", cfg.Log)
	defer log.Sync()

	loader.Watch(func(next config.Config, err error) {
		if err != nil {
			log.Warn("config reload failed", zap.Error(err))
			return
		}
		level.SetLevel(logs.ParseLevel(next.Log.Level))
		log.Info("config reloaded", zap.String("level", next.Log.Level))
	})

	var (
		db       *store.DB
		accounts *auth.Auth
		recorder *store.Recorder
		history  server.MatchHistory
		matches  game.MatchRecorder
	)
	if cfg.DB.Path != "" {
		db, err = store.Open(cfg.DB.Path)
		if err != nil {
			log.Fatal("open database", zap.String("path", cfg.DB.Path), zap.Error(err))
		}
		defer db.Close()

		accounts, err = auth.New(db, auth.DefaultCost, log.Named("auth"))
		if err != nil {
			log.Fatal("init auth", zap.Error(err))
		}
		recorder = store.NewRecorder(db, log.Named("store"))
		history, matches = db, recorder
	} else {
		log.Warn("db.path is empty, accounts and match history disabled")
	}

	authority := server.NewAuthority(server.AuthorityOptions{
		Rules:    cfg.Game.Rules(),
		SyncRate: cfg.Server.SyncRate,
		Logger:   log.Named("session"),
		Recorder: matches,
	})

	hub := server.NewHub(authority, server.HubOptions{
		MaxConnsPerIP: cfg.Server.MaxConnsPerIP,
		MaxTotalConns: cfg.Server.MaxTotalConns,
		Auth:          accounts,
		Logger:        log.Named("hub"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go hub.Run(ctx)

	mux := server.SetupRoutes(hub, server.RouteOptions{
		History:   history,
		PublicURL: cfg.Server.PublicURL,
	})
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	go func() {
		log.Info("server starting",
			zap.String("addr", cfg.Server.Addr),
			zap.Int("syncRate", cfg.Server.SyncRate),
			zap.Bool("persistence", db != nil))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("ListenAndServe", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
		srv.Close()
	}
	authority.Shutdown()
	if recorder != nil {
		recorder.Stop()
	}
}

// fallback reports errors that happen before the logger exists.
func fallback(what string, err error) {
	log, _ := zap.NewProduction()
	log.Fatal(what, zap.Error(err))
}
