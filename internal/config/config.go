// Package config loads and validates the waycored daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// Sampler configures the synthetic stylus source: a development aid
// that drives injected touch and stylus streams at every connected
// client so probes see traffic without real input hardware.
type Sampler struct {
	Enabled  bool
	Interval time.Duration
}

// Config is the waycored runtime configuration.
type Config struct {
	Socket      string
	DebugAddr   string
	CorsOrigins []string
	LogLevel    string
	LogFormat   string
	MaxClients  int
	Sampler     Sampler
}

// Default returns the configuration waycored runs with when no file
// and no flags are given.
func Default() Config {
	return Config{
		Socket:    "waycore-0",
		DebugAddr: "127.0.0.1:9190",
		LogLevel:  "info",
		LogFormat: "console",
		Sampler: Sampler{
			Enabled:  false,
			Interval: 100 * time.Millisecond,
		},
	}
}

// waycored.toml key mapping to runtime settings.
type fileConfig struct {
	Socket          string   `toml:"socket"`
	DebugAddr       string   `toml:"debug_addr"`
	CorsOrigins     []string `toml:"cors_origins"`
	LogLevel        string   `toml:"log_level"`
	LogFormat       string   `toml:"log_format"`
	MaxClients      int      `toml:"max_clients"`
	SamplerEnabled  bool     `toml:"sampler_enabled"`
	SamplerInterval string   `toml:"sampler_interval"`
}

// Load reads a TOML file and overlays the keys it defines over the
// defaults. Keys absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load waycored config: %w", err)
	}

	if meta.IsDefined("socket") {
		cfg.Socket = strings.TrimSpace(raw.Socket)
	}
	if meta.IsDefined("debug_addr") {
		cfg.DebugAddr = strings.TrimSpace(raw.DebugAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}
	if meta.IsDefined("max_clients") {
		cfg.MaxClients = raw.MaxClients
	}
	if meta.IsDefined("sampler_enabled") {
		cfg.Sampler.Enabled = raw.SamplerEnabled
	}
	if meta.IsDefined("sampler_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SamplerInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse sampler_interval: %w", err)
		}
		cfg.Sampler.Interval = d
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Socket) == "" {
		return fmt.Errorf("waycored config missing socket")
	}
	lvl := strings.TrimSpace(cfg.LogLevel)
	if lvl == "" {
		return fmt.Errorf("waycored config missing log_level")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(lvl)); err != nil {
		return fmt.Errorf("waycored config log_level: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json", "console":
	default:
		return fmt.Errorf("waycored config log_format %q (expected json or console)", cfg.LogFormat)
	}
	if cfg.MaxClients < 0 {
		return fmt.Errorf("waycored config max_clients %d is negative", cfg.MaxClients)
	}
	if cfg.Sampler.Enabled && cfg.Sampler.Interval <= 0 {
		return fmt.Errorf("waycored config sampler_interval must be positive")
	}
	return nil
}

// ResolveSocket turns a socket name into the path the daemon binds and
// clients dial. Absolute paths pass through; bare names land in
// XDG_RUNTIME_DIR, or the system temp directory when it is unset.
func ResolveSocket(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); dir != "" {
		return filepath.Join(dir, name)
	}
	return filepath.Join(os.TempDir(), name)
}

func normalizeOrigins(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
