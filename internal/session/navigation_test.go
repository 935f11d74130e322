package session

import (
	"context"
	"testing"
	"time"

	"github.com/mmcdole/anikino/internal/api/apitest"
	"github.com/mmcdole/anikino/internal/domain"
	"github.com/mmcdole/anikino/internal/playback"
)

var frieren = domain.Item{ID: "42", Title: "Frieren"}

func TestOpenItem_PushesOneEntry(t *testing.T) {
	f := newFixture(t, quiet)
	ctx := context.Background()
	if err := f.engine.SwitchMode(ctx, domain.ModeFavorites); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if err := f.engine.OpenItem(ctx, frieren); err != nil {
		t.Fatalf("OpenItem: %v", err)
	}
	if f.engine.nav.Len() != 2 {
		t.Fatalf("expected one pushed entry, got log length %d", f.engine.nav.Len())
	}
	v := f.engine.Snapshot()
	if v.Mode != domain.ModePlayer || v.LastMode != domain.ModeFavorites || !v.CanBack {
		t.Fatalf("unexpected view mode=%v last=%v back=%v", v.Mode, v.LastMode, v.CanBack)
	}
	if len(v.Player.Episodes) != 2 {
		t.Fatalf("expected episodes loaded, got %d", len(v.Player.Episodes))
	}
	if f.engine.nav.Current().AnimeID != "42" || f.engine.nav.Current().Key == "" {
		t.Fatalf("unexpected entry %+v", f.engine.nav.Current())
	}

	if err := f.engine.OpenItem(ctx, domain.Item{}); err == nil {
		t.Fatal("expected error for an item without id")
	}
}

func TestBack_RestoresModeAndStopsSaving(t *testing.T) {
	f := newFixture(t, playback.Config{SaveInterval: 10 * time.Millisecond, AdvanceDelay: time.Second, CompletionRatio: 0.95})
	ctx := context.Background()
	if err := f.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.engine.OpenItem(ctx, frieren); err != nil {
		t.Fatalf("OpenItem: %v", err)
	}
	eps := f.engine.Snapshot().Player.Episodes
	if err := f.engine.Play(ctx, eps[1], 0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	w := f.opener.Last()
	w.Emit(playback.SignalReady)
	w.SetTime(100, 1440)
	eventually(t, "progress save", func() bool { return f.backend.CallCount(apitest.RoutePlaybackSave) > 0 })

	ok, err := f.engine.Back(ctx)
	if !ok || err != nil {
		t.Fatalf("Back: ok=%v err=%v", ok, err)
	}
	v := f.engine.Snapshot()
	if v.Mode != domain.ModeSchedule {
		t.Fatalf("expected schedule mode restored, got %v", v.Mode)
	}
	if v.Player.State != playback.StateIdle || !w.Closed() {
		t.Fatalf("expected player torn down, state=%v closed=%v", v.Player.State, w.Closed())
	}

	time.Sleep(20 * time.Millisecond)
	saves := f.backend.CallCount(apitest.RoutePlaybackSave)
	time.Sleep(50 * time.Millisecond)
	if got := f.backend.CallCount(apitest.RoutePlaybackSave); got != saves {
		t.Fatalf("expected no saves after leaving the player, got %d more", got-saves)
	}
	if n := f.backend.CallCount(apitest.RouteSchedule); n != 1 {
		t.Fatalf("expected the collection kept without a refetch, got %d schedule calls", n)
	}
}

func TestForward_ReopensPlayer(t *testing.T) {
	f := newFixture(t, quiet)
	ctx := context.Background()
	if err := f.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.engine.OpenItem(ctx, frieren); err != nil {
		t.Fatalf("OpenItem: %v", err)
	}
	if _, err := f.engine.Back(ctx); err != nil {
		t.Fatalf("Back: %v", err)
	}
	ok, err := f.engine.Forward(ctx)
	if !ok || err != nil {
		t.Fatalf("Forward: ok=%v err=%v", ok, err)
	}
	v := f.engine.Snapshot()
	if v.Mode != domain.ModePlayer || v.Player.Item == nil || v.Player.Item.ID != "42" {
		t.Fatalf("expected player reopened for 42, got mode=%v", v.Mode)
	}
	if f.engine.nav.Len() != 2 {
		t.Fatalf("restoring must not push, log length %d", f.engine.nav.Len())
	}
	if ok, _ := f.engine.Forward(ctx); ok {
		t.Fatal("expected no forward entry")
	}
}

func TestClosePlayer(t *testing.T) {
	f := newFixture(t, quiet)
	ctx := context.Background()
	if err := f.engine.SwitchMode(ctx, domain.ModeHistory); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if err := f.engine.OpenItem(ctx, frieren); err != nil {
		t.Fatalf("OpenItem: %v", err)
	}
	if err := f.engine.ClosePlayer(ctx); err != nil {
		t.Fatalf("ClosePlayer: %v", err)
	}
	v := f.engine.Snapshot()
	if v.Mode != domain.ModeHistory || v.CanBack || !v.CanForward {
		t.Fatalf("expected history mode via back, got mode=%v back=%v fwd=%v", v.Mode, v.CanBack, v.CanForward)
	}

	// Closing again outside the player does nothing
	if err := f.engine.ClosePlayer(ctx); err != nil {
		t.Fatalf("ClosePlayer: %v", err)
	}
	if f.engine.Snapshot().Mode != domain.ModeHistory {
		t.Fatal("expected mode unchanged")
	}
}

func TestClosePlayer_AdjacentPlayerEntriesLeavePlayer(t *testing.T) {
	f := newFixture(t, quiet)
	ctx := context.Background()
	f.backend.AddShows(apitest.Show{ID: "7", Title: "Dungeon Meshi"})
	f.backend.SetEpisodes("7", apitest.Episode{Index: 0, Title: "第1集"})
	if err := f.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.engine.OpenItem(ctx, frieren); err != nil {
		t.Fatalf("OpenItem: %v", err)
	}
	if err := f.engine.Search(ctx, "Dungeon"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if err := f.engine.OpenItem(ctx, domain.Item{ID: "7", Title: "Dungeon Meshi"}); err != nil {
		t.Fatalf("OpenItem: %v", err)
	}
	if f.engine.nav.Len() != 3 {
		t.Fatalf("expected log length 3, got %d", f.engine.nav.Len())
	}

	if err := f.engine.ClosePlayer(ctx); err != nil {
		t.Fatalf("ClosePlayer: %v", err)
	}
	v := f.engine.Snapshot()
	if v.Mode != domain.ModeList || v.Player.Item != nil {
		t.Fatalf("expected list mode with player reset, got mode=%v item=%v", v.Mode, v.Player.Item)
	}
	if f.engine.nav.Current().AnimeID != "42" {
		t.Fatalf("expected log cursor on the earlier entry, got %+v", f.engine.nav.Current())
	}

	// Back from a non-player mode onto a player entry still reopens it
	if err := f.engine.OpenItem(ctx, domain.Item{ID: "7", Title: "Dungeon Meshi"}); err != nil {
		t.Fatalf("OpenItem: %v", err)
	}
	if ok, err := f.engine.Back(ctx); !ok || err != nil {
		t.Fatalf("Back: ok=%v err=%v", ok, err)
	}
	if v := f.engine.Snapshot(); v.Mode != domain.ModeList {
		t.Fatalf("expected Back from the player to leave it, got %v", v.Mode)
	}
}

func TestSearchFromPlayerTearsDown(t *testing.T) {
	f := newFixture(t, quiet)
	ctx := context.Background()
	if err := f.engine.OpenItem(ctx, frieren); err != nil {
		t.Fatalf("OpenItem: %v", err)
	}
	if err := f.engine.Play(ctx, f.engine.Snapshot().Player.Episodes[0], 0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	w := f.opener.Last()

	if err := f.engine.Search(ctx, "Frieren"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	v := f.engine.Snapshot()
	if v.Mode != domain.ModeList || v.Player.Item != nil || !w.Closed() {
		t.Fatalf("expected list mode with player reset, got mode=%v", v.Mode)
	}
	if len(v.Items) != 1 {
		t.Fatalf("expected one search result, got %d", len(v.Items))
	}
}

func TestHistoryLog_PushTruncatesForward(t *testing.T) {
	h := NewHistory()
	h.Push(domain.NavState{Mode: domain.ModePlayer, AnimeID: "1"})
	h.Push(domain.NavState{Mode: domain.ModePlayer, AnimeID: "2"})
	if _, ok := h.Back(); !ok {
		t.Fatal("expected back")
	}
	h.Push(domain.NavState{Mode: domain.ModePlayer, AnimeID: "3"})
	if h.Len() != 3 || h.CanForward() {
		t.Fatalf("expected forward entries dropped, len=%d", h.Len())
	}
	st, ok := h.Back()
	if !ok || st.AnimeID != "1" {
		t.Fatalf("expected entry 1, got %+v", st)
	}
	st, ok = h.Back()
	if !ok || st != nil {
		t.Fatalf("expected blank initial entry, got %+v", st)
	}
	if _, ok := h.Back(); ok {
		t.Fatal("expected no entry before the first")
	}
}

func TestNoticeBoard_Expires(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewNoticeBoard(3 * time.Second)
	b.now = func() time.Time { return now }
	b.Notify("one")
	now = now.Add(2 * time.Second)
	b.Notify("two")
	b.Notify("")
	if got := b.Active(); len(got) != 2 {
		t.Fatalf("expected 2 notices, got %v", got)
	}
	now = now.Add(1500 * time.Millisecond)
	if got := b.Active(); len(got) != 1 || got[0] != "two" {
		t.Fatalf("expected only two, got %v", got)
	}
	now = now.Add(2 * time.Second)
	if got := b.Active(); len(got) != 0 {
		t.Fatalf("expected none, got %v", got)
	}
}
