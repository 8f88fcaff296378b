package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "waycored.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
socket = "/run/wayland/waycore-9"
cors_origins = ["http://localhost:3000", "  ", "http://localhost:5173"]
max_clients = 8
sampler_enabled = true
sampler_interval = "250ms"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Socket != "/run/wayland/waycore-9" {
		t.Fatalf("unexpected socket: %q", cfg.Socket)
	}
	if cfg.DebugAddr != "127.0.0.1:9190" {
		t.Fatalf("debug_addr default lost: %q", cfg.DebugAddr)
	}
	if len(cfg.CorsOrigins) != 2 || cfg.CorsOrigins[1] != "http://localhost:5173" {
		t.Fatalf("unexpected cors origins: %+v", cfg.CorsOrigins)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "console" {
		t.Fatalf("log defaults lost: %q %q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.MaxClients != 8 {
		t.Fatalf("unexpected max_clients: %d", cfg.MaxClients)
	}
	if !cfg.Sampler.Enabled || cfg.Sampler.Interval != 250*time.Millisecond {
		t.Fatalf("unexpected sampler: %+v", cfg.Sampler)
	}
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := Default()
	if cfg.Socket != def.Socket || cfg.DebugAddr != def.DebugAddr {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.LogLevel != def.LogLevel || cfg.LogFormat != def.LogFormat {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.CorsOrigins) != 0 || cfg.MaxClients != 0 || cfg.Sampler != def.Sampler {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadBadSamplerInterval(t *testing.T) {
	path := writeConfig(t, `
sampler_interval = "abc"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := writeConfig(t, `
log_level = "chatty"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadRejectsBadLogFormat(t *testing.T) {
	path := writeConfig(t, `
log_format = "xml"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	bad := cfg
	bad.Socket = "  "
	if err := Validate(bad); err == nil {
		t.Fatalf("expected missing socket error")
	}

	bad = cfg
	bad.MaxClients = -1
	if err := Validate(bad); err == nil {
		t.Fatalf("expected negative max_clients error")
	}

	bad = cfg
	bad.Sampler.Enabled = true
	bad.Sampler.Interval = 0
	if err := Validate(bad); err == nil {
		t.Fatalf("expected sampler interval error")
	}
}

func TestResolveSocket(t *testing.T) {
	if got := ResolveSocket("/run/wayland/waycore-0"); got != "/run/wayland/waycore-0" {
		t.Fatalf("absolute path rewritten: %q", got)
	}

	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := ResolveSocket("waycore-0"); got != "/run/user/1000/waycore-0" {
		t.Fatalf("runtime dir resolution: %q", got)
	}

	t.Setenv("XDG_RUNTIME_DIR", "")
	got := ResolveSocket("waycore-0")
	if !strings.HasSuffix(got, "waycore-0") || !filepath.IsAbs(got) {
		t.Fatalf("temp dir resolution: %q", got)
	}
}

func TestWriteTemplateRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waycored.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected overwrite refusal")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite template: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("template does not load: %v", err)
	}
	if cfg.Socket != "waycore-0" || cfg.Sampler.Interval != 100*time.Millisecond {
		t.Fatalf("unexpected template config: %+v", cfg)
	}
}
