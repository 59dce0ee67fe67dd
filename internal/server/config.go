package server

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/blackplume233/remotemcp/internal/auth"
)

// Config configures the serving loop and its HTTP transport.
type Config struct {
	Name              string
	Host              string
	Port              int
	TickInterval      time.Duration
	HeartbeatInterval time.Duration
	DriveTicks        bool
	CorsOrigins       []string
	// Auth guards every route except the probes and metrics. Nil leaves them open.
	Auth auth.Validator
}

func DefaultConfig() Config {
	return Config{
		Name:              "remotemcp",
		Host:              "127.0.0.1",
		Port:              8422,
		TickInterval:      time.Second,
		HeartbeatInterval: 15 * time.Second,
		DriveTicks:        false,
		CorsOrigins:       []string{"http://localhost:6274", "http://127.0.0.1:6274"},
	}
}

// Addr is the host:port the transport binds.
func (c Config) Addr() string {
	return net.JoinHostPort(strings.TrimSpace(c.Host), strconv.Itoa(c.Port))
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.Name) == "" {
		c.Name = def.Name
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if len(c.CorsOrigins) == 0 {
		c.CorsOrigins = def.CorsOrigins
	}
	return c
}
