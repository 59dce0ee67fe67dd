package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/blackplume233/remotemcp/internal/host"
)

// daemonConfig configures the simulated host around the bridge.
type daemonConfig struct {
	BridgeConfig string
	ControlAddr  string
	LogLevel     string
	Host         host.Config
}

type fileConfig struct {
	BridgeConfig    string `toml:"bridge_config"`
	FrameInterval   string `toml:"frame_interval"`
	FrameIntervalMS int64  `toml:"frame_interval_ms"`
	ControlAddr     string `toml:"control_addr"`
	LogLevel        string `toml:"log_level"`
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		BridgeConfig: "",
		ControlAddr:  "127.0.0.1:8423",
		LogLevel:     "info",
		Host:         host.DefaultConfig(),
	}
}

// loadDaemonConfig overlays the keys present in path onto the defaults. A relative
// bridge_config resolves against the daemon config's directory.
func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("load daemon config: %w", err)
	}

	if meta.IsDefined("bridge_config") {
		bridgePath := strings.TrimSpace(raw.BridgeConfig)
		if bridgePath != "" && !filepath.IsAbs(bridgePath) {
			bridgePath = filepath.Join(filepath.Dir(path), bridgePath)
		}
		cfg.BridgeConfig = bridgePath
	}

	if meta.IsDefined("frame_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.FrameInterval))
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parse frame_interval: %w", err)
		}
		cfg.Host.FrameInterval = d
	}

	if meta.IsDefined("frame_interval_ms") {
		cfg.Host.FrameInterval = time.Duration(raw.FrameIntervalMS) * time.Millisecond
	}

	if meta.IsDefined("control_addr") {
		cfg.ControlAddr = strings.TrimSpace(raw.ControlAddr)
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := cfg.Host.Validate(); err != nil {
		return daemonConfig{}, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return daemonConfig{}, fmt.Errorf("load daemon config: unknown keys %v", undecoded)
	}
	return cfg, nil
}
