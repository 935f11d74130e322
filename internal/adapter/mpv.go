package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/anikino/internal/playback"
)

// Observed property ids
const (
	propTimePos = iota + 1
	propDuration
	propPause
	propEOF
)

const dialTimeout = 10 * time.Second

// MPV opens episodes in an external mpv process. It implements playback.Opener.
type MPV struct {
	launcher *Launcher
	logger   *slog.Logger
}

// NewMPV creates an opener using launcher to start processes
func NewMPV(launcher *Launcher, logger *slog.Logger) *MPV {
	if logger == nil {
		logger = slog.Default()
	}
	return &MPV{launcher: launcher, logger: logger}
}

// Open starts a player for source and connects to its IPC socket
func (p *MPV) Open(ctx context.Context, source, title string) (playback.Widget, error) {
	socket := filepath.Join(os.TempDir(), "anikino-"+uuid.NewString()+".sock")
	cmd, err := p.launcher.Start(source, title, socket)
	if err != nil {
		return nil, err
	}

	conn, err := dialSocket(ctx, socket)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = os.Remove(socket)
		return nil, err
	}

	w := newMPVWidget(conn, p.logger)
	w.cmd = cmd
	w.socket = socket
	go w.readLoop()

	for id, name := range map[int]string{
		propTimePos:  "time-pos",
		propDuration: "duration",
		propPause:    "pause",
		propEOF:      "eof-reached",
	} {
		if err := w.send("observe_property", id, name); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("observe %s: %w", name, err)
		}
	}
	return w, nil
}

// dialSocket waits for the player to create its IPC socket
func dialSocket(ctx context.Context, socket string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "unix", socket)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to player: %w", err)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// ipcMessage is either a command reply or an event
type ipcMessage struct {
	Event     string          `json:"event"`
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	Reason    string          `json:"reason"`
	Error     string          `json:"error"`
	FileError string          `json:"file_error"`
}

// mpvWidget is one mpv process bound to one source
type mpvWidget struct {
	conn   net.Conn
	cmd    *exec.Cmd
	socket string
	logger *slog.Logger

	writeMu sync.Mutex
	reqID   atomic.Int64

	events chan playback.Event
	done   chan struct{}

	mu        sync.Mutex
	time      float64
	duration  float64
	paused    bool
	restarted bool // first playback-restart seen
	closed    bool
	closeOnce sync.Once
}

func newMPVWidget(conn net.Conn, logger *slog.Logger) *mpvWidget {
	return &mpvWidget{
		conn:   conn,
		logger: logger,
		events: make(chan playback.Event, 32),
		done:   make(chan struct{}),
		paused: true,
	}
}

func (w *mpvWidget) Events() <-chan playback.Event {
	return w.events
}

// send writes one IPC command
func (w *mpvWidget) send(args ...interface{}) error {
	msg, err := json.Marshal(map[string]interface{}{
		"command":    args,
		"request_id": w.reqID.Add(1),
	})
	if err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_, err = w.conn.Write(append(msg, '\n'))
	return err
}

func (w *mpvWidget) Seek(seconds float64) error {
	if err := w.send("seek", seconds, "absolute"); err != nil {
		return err
	}
	w.mu.Lock()
	w.time = seconds
	w.mu.Unlock()
	return nil
}

func (w *mpvWidget) Play() error {
	return w.send("set_property", "pause", false)
}

func (w *mpvWidget) CurrentTime() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.time
}

func (w *mpvWidget) Duration() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.duration
}

func (w *mpvWidget) Paused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

// Close quits the player and releases the socket
func (w *mpvWidget) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()

		_ = w.send("quit")
		close(w.done)
		_ = w.conn.Close()
		if w.cmd != nil {
			go func() {
				_ = w.cmd.Wait()
				_ = os.Remove(w.socket)
			}()
		}
	})
	return nil
}

func (w *mpvWidget) emit(ev playback.Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

// readLoop turns IPC messages into widget events until the connection ends
func (w *mpvWidget) readLoop() {
	defer close(w.events)

	scanner := bufio.NewScanner(w.conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg ipcMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			w.logger.Debug("bad ipc message", "error", err)
			continue
		}
		w.handle(msg)
	}

	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if !closed {
		w.emit(playback.Event{Signal: playback.SignalClosed})
	}
}

func (w *mpvWidget) handle(msg ipcMessage) {
	switch msg.Event {
	case "":
		if msg.Error != "" && msg.Error != "success" {
			w.logger.Debug("ipc command failed", "error", msg.Error)
		}
	case "file-loaded":
		w.emit(playback.Event{Signal: playback.SignalMetadataLoaded})
	case "playback-restart":
		w.mu.Lock()
		first := !w.restarted
		w.restarted = true
		w.mu.Unlock()
		if first {
			w.emit(playback.Event{Signal: playback.SignalReady})
		}
	case "end-file":
		if msg.Reason == "error" {
			w.emit(playback.Event{Signal: playback.SignalError, Err: errors.New(msg.FileError)})
		}
	case "property-change":
		w.handleProperty(msg)
	}
}

func (w *mpvWidget) handleProperty(msg ipcMessage) {
	switch msg.ID {
	case propTimePos, propDuration:
		var v float64
		if json.Unmarshal(msg.Data, &v) != nil {
			return
		}
		w.mu.Lock()
		if msg.ID == propTimePos {
			w.time = v
		} else {
			w.duration = v
		}
		w.mu.Unlock()
	case propPause:
		var paused bool
		if json.Unmarshal(msg.Data, &paused) != nil {
			return
		}
		w.mu.Lock()
		changed := w.paused != paused
		w.paused = paused
		w.mu.Unlock()
		if !changed {
			return
		}
		if paused {
			w.emit(playback.Event{Signal: playback.SignalPaused})
		} else {
			w.emit(playback.Event{Signal: playback.SignalPlaying})
		}
	case propEOF:
		var eof bool
		if json.Unmarshal(msg.Data, &eof) == nil && eof {
			w.emit(playback.Event{Signal: playback.SignalEnded})
		}
	}
}
