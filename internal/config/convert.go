package config

import (
	"strings"
	"time"

	"github.com/blackplume233/remotemcp/internal/auth"
	"github.com/blackplume233/remotemcp/internal/server"
	"github.com/blackplume233/remotemcp/internal/tick"
)

// ServerConfig converts a validated config into the serving loop's settings.
func (c BridgeConfig) ServerConfig() server.Config {
	cfg := server.Config{
		Name:              c.Name,
		Host:              c.Host,
		Port:              c.Port,
		TickInterval:      mustDuration(c.TickInterval),
		HeartbeatInterval: mustDuration(c.HeartbeatInterval),
		DriveTicks:        c.DriveTicks,
		CorsOrigins:       c.CorsOrigins,
	}
	if token := strings.TrimSpace(c.AuthToken); token != "" {
		cfg.Auth = auth.StaticToken{Token: token}
	}
	return cfg
}

// ExecutorConfig converts a validated config into tick executor settings.
func (c BridgeConfig) ExecutorConfig() tick.ExecutorConfig {
	cfg := tick.DefaultExecutorConfig()
	cfg.Period = c.TickPeriod
	cfg.SlowCallThreshold = mustDuration(c.SlowCallThreshold)
	return cfg
}

// mustDuration returns zero for unparsable input; callers validate first.
func mustDuration(raw string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return d
}
