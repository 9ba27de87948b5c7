package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/u1974754/p-final-multi/internal/game"
)

const (
	defaultConfigName = "config"
	envPrefix         = "ARENA"
)

type ServerConfig struct {
	Name string
	Host string
	Port int
}

type ClientConfig struct {
	// Addr is host:port for TCP or a ws:// URL.
	Addr           string
	Character      int
	Lives          int32
	ReportInterval time.Duration
}

type Config struct {
	Server ServerConfig
	Tick   time.Duration

	Slots    int
	Bounds   game.Bounds
	Spawn    game.SpawnArea
	MaxLives int32

	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	SweepEvery       time.Duration

	// StatusPort serves /, /healthz, /metrics and /ws. Zero disables it.
	StatusPort int

	// PacketLogPath enables NDJSON telemetry when set.
	PacketLogPath  string
	PacketLogMaxMB int

	LogLevel slog.Level
	LogFile  string

	Client ClientConfig
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"name":            "server.name",
	"host":            "server.host",
	"port":            "server.port",
	"tick":            "engine.tick",
	"slots":           "slots.count",
	"max-lives":       "lives.max",
	"status-port":     "status.port",
	"packet-log":      "telemetry.ndjson_path",
	"log-level":       "log.level",
	"log-file":        "log.file",
	"addr":            "client.addr",
	"character":       "client.character",
	"lives":           "client.lives",
	"report-interval": "client.report_interval",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "MyServer")
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 7777)
	v.SetDefault("engine.tick", "20ms")

	v.SetDefault("slots.count", 3)
	b := game.DefaultBounds()
	v.SetDefault("bounds.x_min", b.XMin)
	v.SetDefault("bounds.x_max", b.XMax)
	v.SetDefault("bounds.y_floor", b.YFloor)
	s := game.DefaultSpawnArea()
	v.SetDefault("spawn.x_min", s.XMin)
	v.SetDefault("spawn.x_max", s.XMax)
	v.SetDefault("spawn.y", s.Y)
	v.SetDefault("spawn.z", s.Z)
	v.SetDefault("lives.max", 3)

	v.SetDefault("timeouts.handshake", "2m")
	v.SetDefault("timeouts.idle", "0s")
	v.SetDefault("timeouts.sweep_every", "1s")

	v.SetDefault("status.port", 7778)

	v.SetDefault("telemetry.ndjson_path", "")
	v.SetDefault("telemetry.max_size_mb", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("client.addr", "127.0.0.1:7777")
	v.SetDefault("client.character", -1)
	v.SetDefault("client.lives", 3)
	v.SetDefault("client.report_interval", "100ms")
}

// Load reads defaults, then config/config.yaml (or the file named by a
// "config" flag), then ARENA_* environment variables, then any changed flags
// in fs. fs may be nil.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetConfigName(defaultConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("config")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
		}
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	// Config file is optional; env-only is fine.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Name: strings.TrimSpace(v.GetString("server.name")),
			Host: strings.TrimSpace(v.GetString("server.host")),
			Port: v.GetInt("server.port"),
		},
		Tick:  v.GetDuration("engine.tick"),
		Slots: v.GetInt("slots.count"),
		Bounds: game.Bounds{
			XMin:   float32(v.GetFloat64("bounds.x_min")),
			XMax:   float32(v.GetFloat64("bounds.x_max")),
			YFloor: float32(v.GetFloat64("bounds.y_floor")),
		},
		Spawn: game.SpawnArea{
			XMin: float32(v.GetFloat64("spawn.x_min")),
			XMax: float32(v.GetFloat64("spawn.x_max")),
			Y:    float32(v.GetFloat64("spawn.y")),
			Z:    float32(v.GetFloat64("spawn.z")),
		},
		MaxLives:         v.GetInt32("lives.max"),
		HandshakeTimeout: v.GetDuration("timeouts.handshake"),
		IdleTimeout:      v.GetDuration("timeouts.idle"),
		SweepEvery:       v.GetDuration("timeouts.sweep_every"),
		StatusPort:       v.GetInt("status.port"),
		PacketLogPath:    strings.TrimSpace(v.GetString("telemetry.ndjson_path")),
		PacketLogMaxMB:   v.GetInt("telemetry.max_size_mb"),
		LogFile:          strings.TrimSpace(v.GetString("log.file")),
		Client: ClientConfig{
			Addr:           strings.TrimSpace(v.GetString("client.addr")),
			Character:      v.GetInt("client.character"),
			Lives:          v.GetInt32("client.lives"),
			ReportInterval: v.GetDuration("client.report_interval"),
		},
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log.level"))); err != nil {
		return Config{}, fmt.Errorf("invalid log.level %q: %w", v.GetString("log.level"), err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	if cfg.PacketLogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.PacketLogPath), 0o755); err != nil {
			return Config{}, fmt.Errorf("create telemetry dir: %w", err)
		}
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Name == "" {
		return fmt.Errorf("server.name must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Tick <= 0 {
		return fmt.Errorf("invalid engine.tick %s", c.Tick)
	}
	if c.Slots < 1 || c.Slots > 255 {
		return fmt.Errorf("invalid slots.count %d (1..255)", c.Slots)
	}
	if c.Bounds.XMin > c.Bounds.XMax {
		return fmt.Errorf("bounds.x_min %v exceeds bounds.x_max %v", c.Bounds.XMin, c.Bounds.XMax)
	}
	if c.Spawn.XMin > c.Spawn.XMax {
		return fmt.Errorf("spawn.x_min %v exceeds spawn.x_max %v", c.Spawn.XMin, c.Spawn.XMax)
	}
	if c.MaxLives < 0 {
		return fmt.Errorf("invalid lives.max %d", c.MaxLives)
	}
	if c.HandshakeTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.SweepEvery <= 0 {
		return fmt.Errorf("invalid timeouts.sweep_every %s", c.SweepEvery)
	}
	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return fmt.Errorf("invalid status.port %d", c.StatusPort)
	}
	if c.PacketLogMaxMB <= 0 {
		return fmt.Errorf("invalid telemetry.max_size_mb %d", c.PacketLogMaxMB)
	}
	if c.Client.Addr == "" {
		return fmt.Errorf("client.addr must not be empty")
	}
	if c.Client.Character < -1 || c.Client.Character > 255 {
		return fmt.Errorf("invalid client.character %d (-1..255)", c.Client.Character)
	}
	if c.Client.Lives < 0 {
		return fmt.Errorf("invalid client.lives %d", c.Client.Lives)
	}
	if c.Client.ReportInterval < 0 {
		return fmt.Errorf("invalid client.report_interval %s", c.Client.ReportInterval)
	}
	return nil
}

// ListenAddr is the game listener address.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// StatusAddr is empty when the status server is disabled.
func (c Config) StatusAddr() string {
	if c.StatusPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.StatusPort))
}

func (c Config) GameConfig() game.Config {
	return game.Config{
		ServerName:    c.Server.Name,
		Spawn:         c.Spawn,
		MaxLives:      c.MaxLives,
		SelectTimeout: c.HandshakeTimeout,
		IdleTimeout:   c.IdleTimeout,
	}
}

// AddServerFlags registers the flags `arena serve` understands.
func AddServerFlags(fs *pflag.FlagSet) {
	addCommonFlags(fs)
	fs.String("name", "MyServer", "server name sent in the handshake")
	fs.String("host", "", "bind host")
	fs.Int("port", 7777, "game TCP port")
	fs.Duration("tick", 20*time.Millisecond, "game loop interval")
	fs.Int("slots", 3, "number of selectable characters")
	fs.Int32("max-lives", 3, "upper bound for reported lives")
	fs.Int("status-port", 7778, "status/metrics/websocket HTTP port (0 disables)")
	fs.String("packet-log", "", "NDJSON packet log path (empty disables)")
}

// AddClientFlags registers the flags `arena join` understands.
func AddClientFlags(fs *pflag.FlagSet) {
	addCommonFlags(fs)
	fs.String("addr", "127.0.0.1:7777", "server address (host:port or ws:// URL)")
	fs.Int("character", -1, "character to select on connect (-1: none)")
	fs.Int32("lives", 3, "lives reported by the headless avatar")
	fs.Duration("report-interval", 100*time.Millisecond, "position report pacing")
	fs.String("packet-log", "", "NDJSON packet log path (empty disables)")
}

func addCommonFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default: ./config.yaml or ./config/config.yaml)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-file", "", "also write logs to this rotating file")
}
