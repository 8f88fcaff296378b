package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

// flagCmd builds a throwaway command carrying the serve flag set.
func flagCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().StringVar(&socketFlag, "socket", "", "")
	cmd.Flags().StringVar(&debugAddrFlag, "debug-addr", "", "")
	cmd.Flags().IntVar(&maxClientsFlag, "max-clients", 0, "")
	cmd.Flags().BoolVar(&samplerFlag, "sampler", false, "")
	return cmd
}

func setConfigPath(t *testing.T, path string) {
	t.Helper()
	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })
}

func TestLoadConfigFlagBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waycored.toml")
	content := `
socket = "wayfile-1"
max_clients = 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	setConfigPath(t, path)

	cmd := flagCmd()
	if err := cmd.Flags().Set("socket", "wayflag-9"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Socket != "wayflag-9" {
		t.Fatalf("socket = %q, want flag value", cfg.Socket)
	}
	if cfg.MaxClients != 2 {
		t.Fatalf("max_clients = %d, want file value 2", cfg.MaxClients)
	}
	if cfg.DebugAddr != "127.0.0.1:9190" {
		t.Fatalf("debug_addr = %q, want default", cfg.DebugAddr)
	}
}

func TestLoadConfigMissingDefaultFileUsesDefaults(t *testing.T) {
	setConfigPath(t, filepath.Join(t.TempDir(), "waycored.toml"))

	cfg, err := loadConfig(flagCmd())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Socket != "waycore-0" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfigMissingExplicitFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	setConfigPath(t, path)

	cmd := flagCmd()
	cmd.Flags().StringVarP(&cfgFile, "config", "c", cfgFile, "")
	if err := cmd.Flags().Set("config", path); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if _, err := loadConfig(cmd); err == nil {
		t.Fatalf("expected missing config error")
	}
}

func TestConfigInitAndCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waycored.toml")
	setConfigPath(t, path)

	if err := configInitCmd.RunE(configInitCmd, nil); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if err := configCheckCmd.RunE(configCheckCmd, nil); err != nil {
		t.Fatalf("config check: %v", err)
	}
	if err := configInitCmd.RunE(configInitCmd, nil); err == nil {
		t.Fatalf("expected overwrite refusal")
	}
}
