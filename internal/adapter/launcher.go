package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrNoPlayer is returned when no mpv-compatible player can be found
var ErrNoPlayer = errors.New("no mpv-compatible player found")

// Launcher starts an mpv-compatible player process controlled over JSON IPC
type Launcher struct {
	command string   // configured player command, empty to auto-detect
	args    []string // additional arguments for the player
	logger  *slog.Logger
}

// playerConfig describes how a player accepts mpv options
type playerConfig struct {
	optionPrefix string // prepended to every mpv option, e.g. "--mpv-" for front ends
}

// players registry. Every entry embeds mpv and exposes its IPC server.
var players = map[string]playerConfig{
	"mpv":       {optionPrefix: "--"},
	"iina":      {optionPrefix: "--mpv-"},
	"celluloid": {optionPrefix: "--mpv-"},
}

// candidatePlayers defines the preferred player order for each platform
var candidatePlayers = map[string][]string{
	"darwin":  {"mpv", "iina"},
	"linux":   {"mpv", "celluloid"},
	"windows": {"mpv"},
}

// NewLauncher creates a launcher for command, or for the first detected player when empty
func NewLauncher(command string, args []string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		command: command,
		args:    args,
		logger:  logger,
	}
}

// playerName normalizes a command to its registry key
func playerName(command string) string {
	base := filepath.Base(command)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToLower(base)
}

// resolve returns the command to run and its option prefix
func (l *Launcher) resolve() (string, playerConfig, error) {
	if l.command != "" {
		cfg, ok := players[playerName(l.command)]
		if !ok {
			l.logger.Debug("unknown player, assuming mpv options", "command", l.command)
			cfg = players["mpv"]
		}
		return l.command, cfg, nil
	}

	candidates, ok := candidatePlayers[runtime.GOOS]
	if !ok {
		candidates = candidatePlayers["linux"]
	}
	for _, name := range candidates {
		path, err := exec.LookPath(name)
		if err != nil {
			l.logger.Debug("player not available", "player", name, "error", err)
			continue
		}
		return path, players[name], nil
	}
	return "", playerConfig{}, ErrNoPlayer
}

// buildArgs builds the argument list for a player with the given option prefix
func (l *Launcher) buildArgs(cfg playerConfig, source, title, socket string) []string {
	opt := func(name, value string) string {
		return fmt.Sprintf("%s%s=%s", cfg.optionPrefix, name, value)
	}
	args := append([]string{}, l.args...)
	args = append(args,
		opt("input-ipc-server", socket),
		opt("force-media-title", title),
		opt("pause", "yes"),     // the manager starts playback once ready
		opt("keep-open", "yes"), // end of file is reported, the window stays
		opt("force-window", "yes"),
	)
	return append(args, source)
}

// Start launches the player for source with its IPC server on socket
func (l *Launcher) Start(source, title, socket string) (*exec.Cmd, error) {
	command, cfg, err := l.resolve()
	if err != nil {
		return nil, err
	}
	args := l.buildArgs(cfg, source, title, socket)

	l.logger.Info("launching player", "command", command, "args", args)
	cmd := exec.Command(command, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", command, err)
	}
	return cmd, nil
}
