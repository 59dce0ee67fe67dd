package tools

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/blackplume233/remotemcp/internal/bridge"
	"github.com/blackplume233/remotemcp/internal/dispatch"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissingArgument = errors.New("tools: missing argument")
	ErrInvalidArgument = errors.New("tools: invalid argument")
	ErrCommandDenied   = errors.New("tools: console command not allowed")
	ErrNoStatus        = errors.New("tools: no status source")
)

// Config wires the builtin operations to the running bridge.
type Config struct {
	// ConsoleCommands lists executable names run_console_command may launch.
	ConsoleCommands []string
	Runner          CommandRunner
	Status          func() bridge.Status
}

// Register adds the builtin operations to catalog.
func Register(catalog *dispatch.Catalog, cfg Config) error {
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	allowed := normalizeCommands(cfg.ConsoleCommands)

	ops := []dispatch.Operation{
		{
			Name:        "ping",
			Description: "Report that the bridge server is reachable. Runs on the serving goroutine.",
			Affinity:    dispatch.AffinityInline,
			Handler: func(context.Context, map[string]any) (any, error) {
				return "pong", nil
			},
		},
		{
			Name:        "echo",
			Description: "Return the call arguments unchanged after a round trip through the host tick.",
			Affinity:    dispatch.AffinityHost,
			Handler: func(_ context.Context, args map[string]any) (any, error) {
				out := make(map[string]any, len(args))
				for k, v := range args {
					out[k] = v
				}
				return out, nil
			},
		},
		{
			Name:        "test_tool",
			Description: "Minimal host-affine operation used to verify tick delivery.",
			Affinity:    dispatch.AffinityHost,
			Handler: func(context.Context, map[string]any) (any, error) {
				log.Info().Str("operation", "test_tool").Msg("executed tool")
				return "Hello from first tool!", nil
			},
		},
		{
			Name:        "bridge.status",
			Description: "Session snapshot read on the host thread: phase, identity, tick count and pending calls.",
			Affinity:    dispatch.AffinityHost,
			Handler: func(context.Context, map[string]any) (any, error) {
				if cfg.Status == nil {
					return nil, ErrNoStatus
				}
				return cfg.Status(), nil
			},
		},
		{
			Name:        "search_console_commands",
			Description: "Search the console commands the host allows by keyword.",
			Affinity:    dispatch.AffinityHost,
			Handler: func(_ context.Context, args map[string]any) (any, error) {
				keyword, err := stringArg(args, "keyword")
				if err != nil {
					return nil, err
				}
				keyword = strings.ToLower(strings.TrimSpace(keyword))
				if keyword == "" {
					return nil, fmt.Errorf("%w: keyword is empty", ErrInvalidArgument)
				}
				matches := make([]string, 0)
				for _, name := range allowed {
					if strings.Contains(strings.ToLower(name), keyword) {
						matches = append(matches, name)
					}
				}
				return map[string]any{"commands": matches}, nil
			},
		},
		{
			Name:        "run_console_command",
			Description: "Run an allowed console command on the host and return its output.",
			Affinity:    dispatch.AffinityHost,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				command, err := stringArg(args, "command")
				if err != nil {
					return nil, err
				}
				fields := strings.Fields(command)
				if len(fields) == 0 {
					return nil, fmt.Errorf("%w: command is empty", ErrInvalidArgument)
				}
				if !slices.Contains(allowed, fields[0]) {
					return nil, fmt.Errorf("%w: %s", ErrCommandDenied, fields[0])
				}
				log.Info().Str("command", command).Msg("running console command")
				res, err := cfg.Runner.Run(ctx, fields[0], fields[1:]...)
				if err != nil {
					if detail := failureOutput(res); detail != "" {
						return nil, fmt.Errorf("console command %q failed (exit %d): %w: %s", command, res.ExitCode, err, detail)
					}
					return nil, fmt.Errorf("console command %q failed (exit %d): %w", command, res.ExitCode, err)
				}
				res.Command = command
				return res, nil
			},
		},
	}

	for _, op := range ops {
		if err := catalog.Register(op); err != nil {
			return err
		}
	}
	return nil
}

// stringArg reads a string argument. A nested object carrying the same key is
// also accepted.
func stringArg(args map[string]any, key string) (string, error) {
	switch v := args[key].(type) {
	case string:
		return v, nil
	case map[string]any:
		if inner, ok := v[key].(string); ok {
			return inner, nil
		}
		return "", fmt.Errorf("%w: %s: expected string", ErrInvalidArgument, key)
	case nil:
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, key)
	default:
		return "", fmt.Errorf("%w: %s: expected string, got %T", ErrInvalidArgument, key, v)
	}
}

func normalizeCommands(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// failureOutput picks stderr, or stdout when stderr is empty, for a failed command.
func failureOutput(res ConsoleResult) string {
	if out := strings.TrimSpace(res.Stderr); out != "" {
		return out
	}
	return strings.TrimSpace(res.Stdout)
}
