package adapter

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/mmcdole/anikino/internal/playback"
)

type fakeMPV struct {
	conn     net.Conn
	commands chan []interface{}
}

func newPipeWidget(t *testing.T) (*mpvWidget, *fakeMPV) {
	t.Helper()
	client, server := net.Pipe()
	w := newMPVWidget(client, NullLogger())
	go w.readLoop()

	f := &fakeMPV{conn: server, commands: make(chan []interface{}, 16)}
	go func() {
		scanner := bufio.NewScanner(server)
		for scanner.Scan() {
			var msg struct {
				Command []interface{} `json:"command"`
			}
			if json.Unmarshal(scanner.Bytes(), &msg) == nil {
				f.commands <- msg.Command
			}
		}
	}()
	t.Cleanup(func() { server.Close() })
	return w, f
}

func (f *fakeMPV) write(t *testing.T, line string) {
	t.Helper()
	if _, err := f.conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func nextEvent(t *testing.T, w *mpvWidget) playback.Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return playback.Event{}
	}
}

func TestMPVWidget_TranslatesEvents(t *testing.T) {
	w, f := newPipeWidget(t)

	f.write(t, `{"event":"file-loaded"}`)
	if ev := nextEvent(t, w); ev.Signal != playback.SignalMetadataLoaded {
		t.Fatalf("expected metadata-loaded, got %v", ev.Signal)
	}

	f.write(t, `{"event":"property-change","id":2,"name":"duration","data":1440}`)
	f.write(t, `{"event":"property-change","id":1,"name":"time-pos","data":12.5}`)
	f.write(t, `{"event":"playback-restart"}`)
	if ev := nextEvent(t, w); ev.Signal != playback.SignalReady {
		t.Fatalf("expected ready, got %v", ev.Signal)
	}
	if w.Duration() != 1440 || w.CurrentTime() != 12.5 {
		t.Fatalf("expected 12.5/1440, got %v/%v", w.CurrentTime(), w.Duration())
	}

	// Only the first restart means ready; later ones follow seeks
	f.write(t, `{"event":"playback-restart"}`)
	f.write(t, `{"event":"property-change","id":3,"name":"pause","data":false}`)
	if ev := nextEvent(t, w); ev.Signal != playback.SignalPlaying {
		t.Fatalf("expected playing, got %v", ev.Signal)
	}
	if w.Paused() {
		t.Fatal("expected unpaused")
	}

	f.write(t, `{"event":"property-change","id":4,"name":"eof-reached","data":true}`)
	if ev := nextEvent(t, w); ev.Signal != playback.SignalEnded {
		t.Fatalf("expected ended, got %v", ev.Signal)
	}

	f.write(t, `{"event":"end-file","reason":"error","file_error":"loading failed"}`)
	ev := nextEvent(t, w)
	if ev.Signal != playback.SignalError || ev.Err == nil || ev.Err.Error() != "loading failed" {
		t.Fatalf("expected error event, got %+v", ev)
	}

	f.conn.Close()
	if ev := nextEvent(t, w); ev.Signal != playback.SignalClosed {
		t.Fatalf("expected closed on hangup, got %v", ev.Signal)
	}
	if _, ok := <-w.Events(); ok {
		t.Fatal("expected event channel closed")
	}
}

func TestMPVWidget_Commands(t *testing.T) {
	w, f := newPipeWidget(t)

	if err := w.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	cmd := <-f.commands
	if len(cmd) != 3 || cmd[0] != "set_property" || cmd[1] != "pause" || cmd[2] != false {
		t.Fatalf("unexpected play command %v", cmd)
	}

	if err := w.Seek(300); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	cmd = <-f.commands
	if len(cmd) != 3 || cmd[0] != "seek" || cmd[1] != float64(300) || cmd[2] != "absolute" {
		t.Fatalf("unexpected seek command %v", cmd)
	}
	if w.CurrentTime() != 300 {
		t.Fatalf("expected playhead at 300, got %v", w.CurrentTime())
	}
}

func TestMPVWidget_CloseIsQuiet(t *testing.T) {
	w, f := newPipeWidget(t)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if cmd := <-f.commands; len(cmd) != 1 || cmd[0] != "quit" {
		t.Fatalf("expected quit command, got %v", cmd)
	}
	for ev := range w.Events() {
		t.Fatalf("expected no events after Close, got %v", ev.Signal)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestLauncher_BuildArgs(t *testing.T) {
	l := NewLauncher("", []string{"--fs"}, NullLogger())
	args := l.buildArgs(players["iina"], "https://cdn/ep.mp4", "Frieren - 第1集", "/tmp/s.sock")
	want := []string{
		"--fs",
		"--mpv-input-ipc-server=/tmp/s.sock",
		"--mpv-force-media-title=Frieren - 第1集",
		"--mpv-pause=yes",
		"--mpv-keep-open=yes",
		"--mpv-force-window=yes",
		"https://cdn/ep.mp4",
	}
	if len(args) != len(want) {
		t.Fatalf("expected %v, got %v", want, args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("arg %d: expected %q, got %q", i, want[i], args[i])
		}
	}

	if got := playerName("/usr/local/bin/MPV.exe"); got != "mpv" {
		t.Fatalf("expected mpv, got %q", got)
	}
}
