package session

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/anikino/internal/api"
	"github.com/mmcdole/anikino/internal/api/apitest"
	"github.com/mmcdole/anikino/internal/cache"
	"github.com/mmcdole/anikino/internal/cover"
	"github.com/mmcdole/anikino/internal/domain"
	"github.com/mmcdole/anikino/internal/playback"
	"github.com/mmcdole/anikino/internal/playback/playbacktest"
	"github.com/mmcdole/anikino/internal/store"
)

// Wednesday in autumn
var fixedNow = time.Date(2024, time.October, 16, 20, 0, 0, 0, time.Local)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fixture struct {
	backend *apitest.Backend
	opener  *playbacktest.Opener
	cache   *cache.Metadata
	mgr     *playback.Manager
	engine  *Engine
}

func newFixture(t *testing.T, pcfg playback.Config) *fixture {
	t.Helper()
	backend := apitest.New()
	t.Cleanup(backend.Close)

	client, err := api.NewClient(backend.URL, nil, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	st, err := store.New("", "")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	f := &fixture{backend: backend, opener: &playbacktest.Opener{}}
	f.cache = cache.New(st, nil)
	notices := NewNoticeBoard(time.Minute)
	f.mgr = playback.NewManager(client, f.opener, st, notices, pcfg, nil)
	t.Cleanup(f.mgr.Close)

	loader := cover.NewLoader(client, f.cache, nil)
	f.engine = New(client, f.cache, loader, f.mgr, notices, Config{Now: func() time.Time { return fixedNow }}, nil)
	t.Cleanup(f.engine.Close)

	backend.AddShows(apitest.Show{ID: "42", Title: "Frieren"})
	backend.SetEpisodes("42",
		apitest.Episode{Index: 0, Title: "第2集"},
		apitest.Episode{Index: 1, Title: "第1集"},
	)
	return f
}

func (f *fixture) addCatalog(n int) {
	for i := 0; i < n; i++ {
		f.backend.AddShows(apitest.Show{ID: fmt.Sprintf("c%d", i), Title: fmt.Sprintf("Show %02d", i)})
	}
}

func ids(items []domain.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

var quiet = playback.Config{SaveInterval: time.Hour, AdvanceDelay: 10 * time.Millisecond, CompletionRatio: 0.95}

func TestStart_RotatesScheduleToToday(t *testing.T) {
	f := newFixture(t, quiet)
	days := make([][]apitest.Show, DaysPerWeek)
	for i := range days {
		days[i] = []apitest.Show{{ID: fmt.Sprintf("d%d", i), Title: fmt.Sprintf("Day %d", i)}}
	}
	f.backend.SetSchedule(2024, "秋季", days)

	if err := f.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	v := f.engine.Snapshot()
	if v.Mode != domain.ModeSchedule || v.Year != 2024 || v.Season != "秋季" {
		t.Fatalf("unexpected view %v %d %s", v.Mode, v.Year, v.Season)
	}
	if len(v.Days) != DaysPerWeek {
		t.Fatalf("expected %d buckets, got %d", DaysPerWeek, len(v.Days))
	}
	want := []string{"d3", "d4", "d5", "d6", "d0", "d1", "d2"}
	for i, day := range v.Days {
		if len(day) != 1 || day[0].ID != want[i] {
			t.Fatalf("bucket %d: expected %s, got %v", i, want[i], ids(day))
		}
	}
	wantLabels := []string{"周三", "周四", "周五", "周六", "周日", "周一", "周二"}
	if !reflect.DeepEqual(v.DayLabels, wantLabels) {
		t.Fatalf("expected labels %v, got %v", wantLabels, v.DayLabels)
	}
	if _, ok := f.cache.Get("d0"); !ok {
		t.Fatal("expected schedule items cached")
	}
}

func TestSelectSeason(t *testing.T) {
	f := newFixture(t, quiet)
	f.backend.SetSchedule(2023, "春季", [][]apitest.Show{
		{{ID: "sun", Title: "Sunday Show"}},
		{{ID: "mon", Title: "Monday Show"}},
	})
	if err := f.engine.SelectSeason(context.Background(), 2023, "春季"); err != nil {
		t.Fatalf("SelectSeason: %v", err)
	}
	v := f.engine.Snapshot()
	if len(v.Days) != DaysPerWeek || v.DayLabels[0] != "周一" {
		t.Fatalf("expected past season to start on Monday, got %v", v.DayLabels)
	}
	if ids(v.Days[0])[0] != "mon" || ids(v.Days[6])[0] != "sun" {
		t.Fatalf("unexpected buckets %v", v.Days)
	}

	if err := f.engine.SelectSeason(context.Background(), 2016, "春季"); err == nil {
		t.Fatal("expected error for a year before the first schedule")
	}
	if err := f.engine.SelectSeason(context.Background(), 2024, "雨季"); err == nil {
		t.Fatal("expected error for an unknown season")
	}
}

func TestSchedule_MissingSeasonIsEmpty(t *testing.T) {
	f := newFixture(t, quiet)
	if err := f.engine.Start(context.Background()); err != nil {
		t.Fatalf("expected missing schedule to be an empty state, got %v", err)
	}
	v := f.engine.Snapshot()
	if v.Loading || len(v.Notices) != 0 {
		t.Fatalf("expected quiet empty state, got loading=%v notices=%v", v.Loading, v.Notices)
	}
	for i, day := range v.Days {
		if len(day) != 0 {
			t.Fatalf("bucket %d not empty", i)
		}
	}
}

func TestSearch_PaginatesUntilShortPage(t *testing.T) {
	f := newFixture(t, quiet)
	f.addCatalog(30)
	ctx := context.Background()

	if err := f.engine.Search(ctx, "  show "); err != nil {
		t.Fatalf("Search: %v", err)
	}
	v := f.engine.Snapshot()
	if v.Mode != domain.ModeList || v.Query != "show" || len(v.Items) != 24 || !v.HasMore || v.Page != 1 {
		t.Fatalf("unexpected first page: mode=%v q=%q n=%d more=%v page=%d", v.Mode, v.Query, len(v.Items), v.HasMore, v.Page)
	}

	if err := f.engine.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	v = f.engine.Snapshot()
	if len(v.Items) != 30 || v.HasMore || v.Page != 2 {
		t.Fatalf("expected 30 items and no more pages, got n=%d more=%v page=%d", len(v.Items), v.HasMore, v.Page)
	}

	if err := f.engine.LoadMore(ctx); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if n := f.backend.CallCount(apitest.RouteList); n != 2 {
		t.Fatalf("expected no request past the last page, got %d calls", n)
	}

	// Searching again while already in list mode reloads from page 1
	if err := f.engine.Search(ctx, "Show 2"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	v = f.engine.Snapshot()
	if v.Page != 1 || len(v.Items) != 10 {
		t.Fatalf("expected fresh result set, got page=%d n=%d", v.Page, len(v.Items))
	}
	last := f.backend.Calls(apitest.RouteList)
	if q := last[len(last)-1].Query.Get("q"); q != "Show 2" {
		t.Fatalf("expected query sent, got %q", q)
	}
}

func TestLoadMore_OnlyInListMode(t *testing.T) {
	f := newFixture(t, quiet)
	f.addCatalog(30)
	if err := f.engine.SwitchMode(context.Background(), domain.ModeFavorites); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if err := f.engine.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if n := f.backend.CallCount(apitest.RouteList); n != 0 {
		t.Fatalf("expected no list request outside list mode, got %d", n)
	}
}

func TestSwitchMode_SameModeIsNoop(t *testing.T) {
	f := newFixture(t, quiet)
	ctx := context.Background()
	if err := f.engine.SwitchMode(ctx, domain.ModeHistory); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if err := f.engine.SwitchMode(ctx, domain.ModeHistory); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if n := f.backend.CallCount(apitest.RoutePlaybackList); n != 1 {
		t.Fatalf("expected one history fetch, got %d", n)
	}
	if err := f.engine.SwitchMode(ctx, domain.Mode("bogus")); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestStaleResponseOnlyReachesCache(t *testing.T) {
	f := newFixture(t, quiet)
	f.addCatalog(3)
	f.backend.SetFavorites("42")
	ctx := context.Background()

	release := f.backend.Hold(apitest.RouteList)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = f.engine.SwitchMode(ctx, domain.ModeList)
	}()
	eventually(t, "list request", func() bool { return f.backend.CallCount(apitest.RouteList) == 1 })

	if err := f.engine.SwitchMode(ctx, domain.ModeFavorites); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	release()
	wg.Wait()

	v := f.engine.Snapshot()
	if v.Mode != domain.ModeFavorites {
		t.Fatalf("expected favorites mode, got %v", v.Mode)
	}
	if got := ids(v.Items); !reflect.DeepEqual(got, []string{"42"}) {
		t.Fatalf("expected favorites collection, got %v", got)
	}
	if _, ok := f.cache.Get("c1"); !ok {
		t.Fatal("expected stale list items written to the cache")
	}
	if v.Loading {
		t.Fatal("stale response must not touch loading state")
	}
}

func TestToggleFavorite(t *testing.T) {
	f := newFixture(t, quiet)
	f.backend.AddShows(apitest.Show{ID: "7", Title: "Dungeon Meshi"})
	f.backend.SetFavorites("42", "7")
	ctx := context.Background()
	if err := f.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !f.engine.IsFavorite("42") {
		t.Fatal("expected favorite ids loaded at start")
	}

	if err := f.engine.SwitchMode(ctx, domain.ModeFavorites); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if err := f.engine.ToggleFavorite(ctx, "42"); err != nil {
		t.Fatalf("ToggleFavorite: %v", err)
	}
	if f.engine.IsFavorite("42") {
		t.Fatal("expected 42 removed")
	}
	if got := ids(f.engine.Snapshot().Items); !reflect.DeepEqual(got, []string{"7"}) {
		t.Fatalf("expected removed card dropped from favorites view, got %v", got)
	}
	if got := f.backend.Favorites(); !reflect.DeepEqual(got, []string{"7"}) {
		t.Fatalf("expected server favorites [7], got %v", got)
	}

	if err := f.engine.ToggleFavorite(ctx, "42"); err != nil {
		t.Fatalf("ToggleFavorite: %v", err)
	}
	if !f.engine.IsFavorite("42") {
		t.Fatal("expected 42 added back")
	}

	f.backend.FailNext(apitest.RouteFavoriteDel, 1)
	if err := f.engine.ToggleFavorite(ctx, "42"); err == nil {
		t.Fatal("expected error from failed removal")
	}
	if !f.engine.IsFavorite("42") {
		t.Fatal("expected local state unchanged after failure")
	}
	if len(f.engine.Snapshot().Notices) == 0 {
		t.Fatal("expected a notice for the failed update")
	}
}

func TestHistory_SkipsRowsWithoutShow(t *testing.T) {
	f := newFixture(t, quiet)
	f.backend.SetRecord("42", "第1集", 120)
	f.backend.SetRecord("ghost", "第3集", 10)

	if err := f.engine.SwitchMode(context.Background(), domain.ModeHistory); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	v := f.engine.Snapshot()
	if len(v.History) != 2 {
		t.Fatalf("expected both history rows, got %d", len(v.History))
	}
	if got := ids(v.Items); !reflect.DeepEqual(got, []string{"42"}) {
		t.Fatalf("expected only matched rows as cards, got %v", got)
	}
}

func TestFetchFailureNotifies(t *testing.T) {
	f := newFixture(t, quiet)
	f.backend.FailNext(apitest.RouteFavoritesFull, 1)
	if err := f.engine.SwitchMode(context.Background(), domain.ModeFavorites); err == nil {
		t.Fatal("expected error")
	}
	v := f.engine.Snapshot()
	if v.Loading || len(v.Notices) != 1 {
		t.Fatalf("expected one notice and loading cleared, got %v %v", v.Loading, v.Notices)
	}
}

func TestSearchCached(t *testing.T) {
	f := newFixture(t, quiet)
	f.addCatalog(3)
	f.backend.AddShows(apitest.Show{ID: "fr", Title: "Frieren Special"})
	if err := f.engine.Search(context.Background(), ""); err != nil {
		t.Fatalf("Search: %v", err)
	}
	got := f.engine.SearchCached("frieren", 10)
	if len(got) != 2 {
		t.Fatalf("expected both Frieren entries from cache, got %v", ids(got))
	}
}

func TestCoversLoadInBackground(t *testing.T) {
	f := newFixture(t, quiet)
	f.backend.SetCover("Frieren", "https://img.example/frieren.jpg")
	if err := f.engine.Search(context.Background(), "Frieren"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	f.engine.Wait()
	items := f.engine.Snapshot().Items
	if len(items) != 1 || items[0].Poster != "https://img.example/frieren.jpg" {
		t.Fatalf("expected lazy poster on card, got %+v", items)
	}
	if poster, ok := f.cache.Poster("42"); !ok || poster != "https://img.example/frieren.jpg" {
		t.Fatalf("expected poster cached, got %q", poster)
	}
}

func TestTransitionFor(t *testing.T) {
	tests := []struct {
		from, to domain.Mode
		force    bool
		want     transitionKind
	}{
		{domain.ModeSchedule, domain.ModeSchedule, false, transitionNone},
		{domain.ModeSchedule, domain.ModeSchedule, true, transitionReset},
		{domain.ModeList, domain.ModeFavorites, false, transitionReset},
		{domain.ModeHistory, domain.ModePlayer, false, transitionEnterPlayer},
		{domain.ModePlayer, domain.ModePlayer, true, transitionNone},
		{domain.ModePlayer, domain.ModeList, false, transitionReset},
	}
	for _, tt := range tests {
		got := transitionFor(tt.from, tt.to, tt.force)
		if got.kind != tt.want {
			t.Errorf("%s -> %s (force=%v): expected %d, got %d", tt.from, tt.to, tt.force, tt.want, got.kind)
		}
		if got.kind == transitionReset && got.enter == nil {
			t.Errorf("%s -> %s: reset without entry action", tt.from, tt.to)
		}
	}
}
