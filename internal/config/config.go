package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("config: invalid bridge config")

const (
	DefaultName              = "remotemcp"
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 8422
	DefaultTickInterval      = "1s"
	DefaultTickPeriod        = 86400
	DefaultHeartbeatInterval = "15s"
	DefaultSlowCallThreshold = "1s"
)

// BridgeConfig is the bridge server's on-disk configuration.
type BridgeConfig struct {
	Name              string   `toml:"name"`
	Host              string   `toml:"host"`
	Port              int      `toml:"port"`
	AutoStart         *bool    `toml:"auto_start"`
	DriveTicks        bool     `toml:"drive_ticks"`
	TickInterval      string   `toml:"tick_interval"`
	TickPeriod        uint64   `toml:"tick_period"`
	HeartbeatInterval string   `toml:"heartbeat_interval"`
	SlowCallThreshold string   `toml:"slow_call_threshold"`
	CorsOrigins       []string `toml:"cors_origins"`
	ConsoleCommands   []string `toml:"console_commands"`
	AuthToken         string   `toml:"auth_token"`
}

func DefaultBridgeConfig() BridgeConfig {
	autoStart := true
	return BridgeConfig{
		Name:              DefaultName,
		Host:              DefaultHost,
		Port:              DefaultPort,
		AutoStart:         &autoStart,
		TickInterval:      DefaultTickInterval,
		TickPeriod:        DefaultTickPeriod,
		HeartbeatInterval: DefaultHeartbeatInterval,
		SlowCallThreshold: DefaultSlowCallThreshold,
	}
}

// LoadBridgeConfig reads path, fills unset fields from defaults and validates.
func LoadBridgeConfig(path string) (BridgeConfig, error) {
	var cfg BridgeConfig
	if err := loadToml(path, &cfg); err != nil {
		return BridgeConfig{}, err
	}
	cfg = cfg.withDefaults()
	if err := ValidateBridgeConfig(cfg); err != nil {
		return BridgeConfig{}, err
	}
	return cfg, nil
}

// ParseBridgeConfig is LoadBridgeConfig for in-memory TOML.
func ParseBridgeConfig(data []byte) (BridgeConfig, error) {
	var cfg BridgeConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return BridgeConfig{}, fmt.Errorf("config parse failed: %w", err)
	}
	cfg = cfg.withDefaults()
	if err := ValidateBridgeConfig(cfg); err != nil {
		return BridgeConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func (c BridgeConfig) withDefaults() BridgeConfig {
	def := DefaultBridgeConfig()
	if strings.TrimSpace(c.Name) == "" {
		c.Name = def.Name
	}
	if strings.TrimSpace(c.Host) == "" {
		c.Host = def.Host
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.AutoStart == nil {
		c.AutoStart = def.AutoStart
	}
	if strings.TrimSpace(c.TickInterval) == "" {
		c.TickInterval = def.TickInterval
	}
	if c.TickPeriod == 0 {
		c.TickPeriod = def.TickPeriod
	}
	if strings.TrimSpace(c.HeartbeatInterval) == "" {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if strings.TrimSpace(c.SlowCallThreshold) == "" {
		c.SlowCallThreshold = def.SlowCallThreshold
	}
	return c
}

// ShouldAutoStart reports whether registration also starts the server.
func (c BridgeConfig) ShouldAutoStart() bool {
	return c.AutoStart == nil || *c.AutoStart
}

func ValidateBridgeConfig(cfg BridgeConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidConfig)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, cfg.Port)
	}
	if cfg.TickPeriod == 0 {
		return fmt.Errorf("%w: tick_period must be positive", ErrInvalidConfig)
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"tick_interval", cfg.TickInterval},
		{"heartbeat_interval", cfg.HeartbeatInterval},
		{"slow_call_threshold", cfg.SlowCallThreshold},
	} {
		d, err := time.ParseDuration(strings.TrimSpace(field.value))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, field.name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, field.name)
		}
	}
	for i, origin := range cfg.CorsOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("%w: cors_origins[%d] is empty", ErrInvalidConfig, i)
		}
	}
	for i, cmd := range cfg.ConsoleCommands {
		if strings.TrimSpace(cmd) == "" || strings.ContainsAny(cmd, " \t") {
			return fmt.Errorf("%w: console_commands[%d] must be a single executable name", ErrInvalidConfig, i)
		}
	}
	return nil
}
