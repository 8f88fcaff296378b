package config

import (
	"fmt"
	"os"
)

// Template returns the annotated waycored.toml starting point.
func Template() string {
	return daemonTemplate
}

// WriteTemplate writes the template to path. Without overwrite an
// existing file is an error.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(daemonTemplate), 0o600)
}

const daemonTemplate = `# waycored daemon configuration.

# Socket name or absolute path. Bare names resolve against
# XDG_RUNTIME_DIR, like a wayland display socket.
socket = "waycore-0"

# HTTP introspection and metrics endpoint. Never carries protocol
# traffic.
debug_addr = "127.0.0.1:9190"
cors_origins = ["http://localhost:3000"]

log_level = "info"
log_format = "console"

# 0 means unlimited.
max_clients = 0

# Synthetic stylus source for development without input hardware.
sampler_enabled = false
sampler_interval = "100ms"
`
