// Package config loads server settings from defaults, an optional .env file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"chaincraft/domain/room"
	"chaincraft/domain/session"
	"chaincraft/gateway"
)

type Config struct {
	Addr                string
	AllowedOrigin       string
	DefaultMaxPlayers   int
	DesignMaxPlayers    int
	LeaderboardCapacity int
	Retention           room.Retention
	WS                  gateway.Config
	Generator           Generator
	Ledger              Ledger
	LogLevel            string
	LogFormat           string
}

type Generator struct {
	APIKey  string
	Model   string
	BaseURL string
}

type Ledger struct {
	RPCURL     string
	PrivateKey string
}

func Default() Config {
	ws := gateway.DefaultConfig()
	ws.AllowedOrigin = "http://localhost:3000"
	return Config{
		Addr:                ":4000",
		AllowedOrigin:       ws.AllowedOrigin,
		DefaultMaxPlayers:   room.DefaultMaxPlayers,
		DesignMaxPlayers:    4,
		LeaderboardCapacity: session.DefaultLeaderboardCapacity,
		Retention: room.Retention{
			Policy:     room.RetainForever,
			IdleAfter:  time.Hour,
			SweepEvery: time.Minute,
		},
		WS: ws,
		Generator: Generator{
			Model:   "gpt-4o",
			BaseURL: "https://api.openai.com/v1",
		},
		Ledger: Ledger{
			RPCURL: "https://testnet-rpc.monad.xyz",
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads envFile when it exists and overlays the environment on the
// defaults. Variables already set in the process win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	cfg := Default()
	if err := cfg.apply(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) apply(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		c.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	str("FRONTEND_URL", &c.AllowedOrigin)
	if err := num("CHAINCRAFT_DEFAULT_MAX_PLAYERS", &c.DefaultMaxPlayers); err != nil {
		return err
	}
	if err := num("CHAINCRAFT_LEADERBOARD_CAPACITY", &c.LeaderboardCapacity); err != nil {
		return err
	}
	if v, ok := lookup("CHAINCRAFT_RETENTION"); ok && v != "" {
		c.Retention.Policy = room.RetentionPolicy(v)
	}
	if v, ok := lookup("CHAINCRAFT_RETENTION_IDLE"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: CHAINCRAFT_RETENTION_IDLE: %w", err)
		}
		c.Retention.IdleAfter = d
	}
	str("OPENAI_API_KEY", &c.Generator.APIKey)
	str("OPENAI_MODEL", &c.Generator.Model)
	str("OPENAI_BASE_URL", &c.Generator.BaseURL)
	str("MONAD_RPC_URL", &c.Ledger.RPCURL)
	str("DEPLOYER_PRIVATE_KEY", &c.Ledger.PrivateKey)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DefaultMaxPlayers <= 0 {
		errs = append(errs, fmt.Errorf("default max players must be positive, got %d", c.DefaultMaxPlayers))
	}
	if c.DesignMaxPlayers <= 0 {
		errs = append(errs, fmt.Errorf("design max players must be positive, got %d", c.DesignMaxPlayers))
	}
	if c.LeaderboardCapacity <= 0 {
		errs = append(errs, fmt.Errorf("leaderboard capacity must be positive, got %d", c.LeaderboardCapacity))
	}
	if _, err := room.ParseRetentionPolicy(string(c.Retention.Policy)); err != nil {
		errs = append(errs, err)
	} else if c.Retention.Policy == room.EvictIdle && (c.Retention.IdleAfter <= 0 || c.Retention.SweepEvery <= 0) {
		errs = append(errs, errors.New("evict-idle retention needs positive idle and sweep intervals"))
	}
	if c.WS.ReadTimeout <= 0 || c.WS.WriteTimeout <= 0 || c.WS.PingInterval <= 0 {
		errs = append(errs, errors.New("websocket timeouts must be positive"))
	} else if c.WS.PingInterval >= c.WS.ReadTimeout {
		errs = append(errs, errors.New("websocket ping interval must be shorter than the read timeout"))
	}
	if c.WS.SendBuffer <= 0 || c.WS.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("websocket buffers must be positive"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Gateway returns the websocket settings with the configured origin applied.
func (c Config) Gateway() gateway.Config {
	ws := c.WS
	ws.AllowedOrigin = c.AllowedOrigin
	return ws
}

func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}
