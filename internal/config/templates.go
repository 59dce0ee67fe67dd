package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "bridge":
		return bridgeTemplate, nil
	case "host":
		return hostTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

// WriteTemplate writes a starter config, refusing to replace an existing file
// unless overwrite is set.
func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const bridgeTemplate = `name = "remotemcp"
host = "127.0.0.1"
port = 8422
auto_start = true

# The host ticks the bridge each frame. Set drive_ticks when nothing else does.
drive_ticks = false
tick_interval = "1s"
tick_period = 86400

heartbeat_interval = "15s"
slow_call_threshold = "1s"
cors_origins = ["http://localhost:6274", "http://127.0.0.1:6274"]

# Executables run_console_command may launch.
console_commands = []

# Shared bearer token for remote calls. Empty leaves the server open.
auth_token = ""
`

const hostTemplate = `bridge_config = "remotemcp.toml"
frame_interval = "16ms"
control_addr = "127.0.0.1:8423"
log_level = "info"
`
