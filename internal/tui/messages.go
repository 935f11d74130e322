package tui

// Message types for the TUI

// engineDoneMsg reports a finished engine operation
type engineDoneMsg struct {
	Op  string
	Err error
}

// TickMsg refreshes the snapshot and animates the spinner
type TickMsg struct{}
