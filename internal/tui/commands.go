package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Command factories for async operations

// engineCmd runs one engine operation off the update loop
func (m Model) engineCmd(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return engineDoneMsg{Op: op, Err: fn(ctx)}
	}
}

// TickCmd schedules the next TickMsg
func TickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}
