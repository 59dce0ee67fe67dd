package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/blackplume233/remotemcp/internal/bridge"
	"github.com/blackplume233/remotemcp/internal/config"
	"github.com/blackplume233/remotemcp/internal/dispatch"
	"github.com/blackplume233/remotemcp/internal/host"
	"github.com/blackplume233/remotemcp/internal/logging"
	"github.com/blackplume233/remotemcp/internal/server"
	"github.com/blackplume233/remotemcp/internal/tools"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const stopTimeout = 5 * time.Second

var (
	configPath string
	listenAddr string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "remotemcpd",
	Short:         "Run the bridge server inside a simulated host",
	Long:          `Run a host frame loop with the bridge registered on it. Remote calls arrive over HTTP; host-affine calls run on the host goroutine during its frame tick.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDaemon,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "daemon config file (TOML)")
	rootCmd.Flags().StringVar(&listenAddr, "addr", "", "bridge listen address host:port, overrides the bridge config")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level, overrides the daemon config")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	daemonCfg := defaultDaemonConfig()
	if configPath != "" {
		loaded, err := loadDaemonConfig(configPath)
		if err != nil {
			return err
		}
		daemonCfg = loaded
	}
	level := daemonCfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logging.Configure(logging.ProfileRuntime, "remotemcpd", level)

	bridgeCfg, err := resolveBridgeConfig(daemonCfg.BridgeConfig, listenAddr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runBridge(ctx, daemonCfg, bridgeCfg)
}

func resolveBridgeConfig(path, addr string) (config.BridgeConfig, error) {
	cfg := config.DefaultBridgeConfig()
	if path != "" {
		loaded, err := config.LoadBridgeConfig(path)
		if err != nil {
			return config.BridgeConfig{}, err
		}
		cfg = loaded
	}
	if addr = strings.TrimSpace(addr); addr != "" {
		h, p, err := net.SplitHostPort(addr)
		if err != nil {
			return config.BridgeConfig{}, fmt.Errorf("parse --addr: %w", err)
		}
		port, err := strconv.Atoi(p)
		if err != nil {
			return config.BridgeConfig{}, fmt.Errorf("parse --addr port: %w", err)
		}
		if h != "" {
			cfg.Host = h
		}
		cfg.Port = port
	}
	if err := config.ValidateBridgeConfig(cfg); err != nil {
		return config.BridgeConfig{}, err
	}
	return cfg, nil
}

// runBridge wires the host, the bridge lifecycle and the serving loop, then blocks
// until ctx ends.
func runBridge(ctx context.Context, daemonCfg daemonConfig, bridgeCfg config.BridgeConfig) error {
	state, created := bridge.EnsureProcessState(bridgeCfg.ExecutorConfig())
	if !created {
		log.Info().Time("created_at", state.CreatedAt()).Msg("reusing process bridge state")
	}

	h, err := host.NewLoopHost(daemonCfg.Host)
	if err != nil {
		return err
	}

	catalog := dispatch.NewCatalog()
	loop := server.NewLoop(bridgeCfg.ServerConfig(), state, dispatch.NewDispatcher(catalog, state.Queue()))
	lc := bridge.NewLifecycle(h, state, loop)
	if err := tools.Register(catalog, tools.Config{
		ConsoleCommands: bridgeCfg.ConsoleCommands,
		Status:          lc.Status,
	}); err != nil {
		return err
	}
	lc.SetToolSource(catalog.HostAffine)
	loop.SetStatusSource(lc.Status)

	hostDone := make(chan error, 1)
	go func() {
		hostDone <- h.Run(ctx)
	}()

	if err := lc.Register(); err != nil {
		return err
	}
	if bridgeCfg.ShouldAutoStart() {
		if err := h.Signal(bridge.SignalStart, "auto start"); err != nil {
			return err
		}
	}

	if daemonCfg.ControlAddr != "" {
		ctl := host.NewControlServer(h, lc.Status, func() error {
			if done := loop.Done(); done != nil {
				select {
				case <-done:
				case <-time.After(stopTimeout):
					return errors.New("previous server run still stopping")
				}
			}
			return lc.Register()
		})
		go func() {
			if err := ctl.ListenAndServe(ctx, daemonCfg.ControlAddr); err != nil {
				log.Error().Err(err).Str("addr", daemonCfg.ControlAddr).Msg("host control stopped")
			}
		}()
	}

	log.Info().
		Str("addr", bridgeCfg.ServerConfig().Addr()).
		Bool("auto_start", bridgeCfg.ShouldAutoStart()).
		Str("control_addr", daemonCfg.ControlAddr).
		Msg("remotemcpd running")

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := loop.Stop(stopCtx); err != nil {
		log.Warn().Err(err).Msg("server stop incomplete")
	}
	if err := lc.Unregister(); err != nil {
		log.Warn().Err(err).Msg("bridge unregister failed")
	}
	return <-hostDone
}
