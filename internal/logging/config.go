package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/blackplume233/remotemcp/internal/observability"
	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "REMOTEMCP_LOG_LEVEL"
	EnvLogTimestamp = "REMOTEMCP_LOG_TIMESTAMP"
	EnvLogNoColor   = "REMOTEMCP_LOG_NOCOLOR"
	EnvLogBypass    = "REMOTEMCP_LOG_BYPASS"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the resolved logger setup for one process.
type Config struct {
	App       string
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	Bypass    bool
	Out       io.Writer
}

var configureOnce sync.Once

func ConfigureRuntime(app string) {
	Configure(ProfileRuntime, app, "")
}

func ConfigureTests() {
	Configure(ProfileTest, "remotemcp-test", "")
}

// Configure installs the global logger once. levelOverride, when set, wins over the
// profile default but not over the environment.
func Configure(profile Profile, app, levelOverride string) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile, app)
		if lvl, ok := ParseLevel(levelOverride); ok {
			cfg.Level = lvl
		}
		applyEnvOverrides(&cfg)
		apply(cfg)
	})
}

func defaultConfig(profile Profile, app string) Config {
	cfg := Config{App: app, Out: os.Stdout}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
		cfg.NoColor = true
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

func apply(cfg Config) {
	if cfg.Bypass {
		cfg.Out = io.Discard
	}
	observability.InitLoggerTo(cfg.App, cfg.Out, cfg.NoColor, cfg.Timestamp)
	zerolog.SetGlobalLevel(cfg.Level)
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogBypass)); ok {
		cfg.Bypass = v
	}
}

// ParseLevel maps a config or env level name to a zerolog level.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
