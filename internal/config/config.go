// Package config loads server settings from defaults, an optional config
// file and RTS_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"rts-server/internal/game"
)

const EnvPrefix = "RTS"

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Game   GameConfig   `mapstructure:"game"`
}

type ServerConfig struct {
	Addr          string `mapstructure:"addr"`
	MaxConnsPerIP int    `mapstructure:"maxConnsPerIP"`
	MaxTotalConns int    `mapstructure:"maxTotalConns"`
	SyncRate      int    `mapstructure:"syncRate"` // replication ticks per second
	PublicURL     string `mapstructure:"publicURL"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"` // empty: console only
	MaxSize    int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAge     int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
	Dev        bool   `mapstructure:"dev"`
}

type DBConfig struct {
	Path string `mapstructure:"path"` // empty disables persistence
}

type GameConfig struct {
	StartingResources  int     `mapstructure:"startingResources"`
	BuildingRangeLimit float64 `mapstructure:"buildingRangeLimit"`
	MinPlayers         int     `mapstructure:"minPlayers"`
	MaxPlayers         int     `mapstructure:"maxPlayers"`
	LobbyScene         string  `mapstructure:"lobbyScene"`
	BattleMap          string  `mapstructure:"battleMap"`
	BattleMapPrefix    string  `mapstructure:"battleMapPrefix"`
}

// Rules converts the game section for the coordinator.
func (g GameConfig) Rules() game.Rules {
	return game.Rules{
		StartingResources:  g.StartingResources,
		BuildingRangeLimit: g.BuildingRangeLimit,
		MinPlayers:         g.MinPlayers,
		MaxPlayers:         g.MaxPlayers,
		LobbyScene:         g.LobbyScene,
		BattleMap:          g.BattleMap,
		BattleMapPrefix:    g.BattleMapPrefix,
	}
}

func (g GameConfig) validate() error {
	if g.MinPlayers < 2 {
		return fmt.Errorf("game.minPlayers must be at least 2, got %d", g.MinPlayers)
	}
	if g.MaxPlayers > 0 && g.MaxPlayers < g.MinPlayers {
		return fmt.Errorf("game.maxPlayers %d is below game.minPlayers %d", g.MaxPlayers, g.MinPlayers)
	}
	if g.BattleMapPrefix == "" {
		return fmt.Errorf("game.battleMapPrefix must not be empty")
	}
	if !strings.HasPrefix(g.BattleMap, g.BattleMapPrefix) {
		return fmt.Errorf("game.battleMap %q does not start with game.battleMapPrefix %q", g.BattleMap, g.BattleMapPrefix)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.maxConnsPerIP", 5)
	v.SetDefault("server.maxTotalConns", 1000)
	v.SetDefault("server.syncRate", 20)
	v.SetDefault("server.publicURL", "http://localhost:8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxSize", 100)
	v.SetDefault("log.maxBackups", 3)
	v.SetDefault("log.maxAge", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.dev", false)

	v.SetDefault("db.path", "rts.db")

	rules := game.DefaultRules()
	v.SetDefault("game.startingResources", rules.StartingResources)
	v.SetDefault("game.buildingRangeLimit", rules.BuildingRangeLimit)
	v.SetDefault("game.minPlayers", rules.MinPlayers)
	v.SetDefault("game.maxPlayers", rules.MaxPlayers)
	v.SetDefault("game.lobbyScene", rules.LobbyScene)
	v.SetDefault("game.battleMap", rules.BattleMap)
	v.SetDefault("game.battleMapPrefix", rules.BattleMapPrefix)
}

// Loader owns one viper instance.
type Loader struct {
	v *viper.Viper
}

// NewLoader reads path if given. The file type follows its extension.
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return &Loader{v: v}, nil
}

func (l *Loader) Config() (Config, error) {
	var c Config
	if err := l.v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if c.Server.SyncRate <= 0 {
		return Config{}, fmt.Errorf("server.syncRate must be positive, got %d", c.Server.SyncRate)
	}
	if err := c.Game.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Watch calls fn with the reloaded config whenever the config file changes.
// It does nothing when no file was loaded.
func (l *Loader) Watch(fn func(Config, error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(fsnotify.Event) {
		fn(l.Config())
	})
	l.v.WatchConfig()
}

// Load is NewLoader followed by Config.
func Load(path string) (Config, error) {
	l, err := NewLoader(path)
	if err != nil {
		return Config{}, err
	}
	return l.Config()
}
