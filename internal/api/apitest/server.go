// Package apitest runs an in-process fake of the streaming backend for tests.
package apitest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Route templates, usable with Calls and Hold
const (
	RouteList          = "/api/list"
	RouteSchedule      = "/api/season_schedule"
	RouteCover         = "/api/get_cover_lazy"
	RouteEpisodes      = "/api/episodes"
	RoutePlayInfo      = "/api/play_info"
	RouteFavorites     = "/api/favorites/list"
	RouteFavoritesFull = "/api/favorites/list_with_details"
	RouteFavoriteAdd   = "/api/favorites/add"
	RouteFavoriteDel   = "/api/favorites/remove"
	RoutePlaybackSave  = "/api/playback/save"
	RoutePlaybackGet   = "/api/playback/get/{anime_id}"
	RoutePlaybackClear = "/api/playback/clear"
	RoutePlaybackList  = "/api/playback/list"
)

const pageSize = 24

// Show is a catalog entry
type Show struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Year   string `json:"year"`
	Season string `json:"season"`
	Status string `json:"status"`
	Poster string `json:"poster"`
}

// Episode is an entry of an episode list
type Episode struct {
	Index     int    `json:"index"`
	Title     string `json:"title"`
	FullTitle string `json:"full_title"`
	Token     string `json:"token"`
}

// Record is a stored playback record
type Record struct {
	EpisodeTitle     string  `json:"episode_title"`
	PlaybackPosition float64 `json:"playback_position"`
	Timestamp        string  `json:"timestamp"`
}

// Call is one request received by the fake
type Call struct {
	Method string
	Route  string
	Path   string
	Query  url.Values
	Body   map[string]interface{}
}

// Backend is the fake server. State is changed through its helper methods.
type Backend struct {
	*httptest.Server

	mu        sync.Mutex
	catalog   []Show
	schedules map[string][][]Show
	covers    map[string]string
	favorites []string
	records   map[string]Record
	episodes  map[string][]Episode
	playURLs  map[string]string
	failures  map[string]int
	holds     map[string]chan struct{}
	calls     []Call
}

// New starts a fake backend. Close it when done.
func New() *Backend {
	b := &Backend{
		schedules: make(map[string][][]Show),
		covers:    make(map[string]string),
		records:   make(map[string]Record),
		episodes:  make(map[string][]Episode),
		playURLs:  make(map[string]string),
		failures:  make(map[string]int),
		holds:     make(map[string]chan struct{}),
	}

	r := mux.NewRouter()
	r.Use(b.middleware)
	r.HandleFunc(RouteList, b.handleList).Methods(http.MethodGet)
	r.HandleFunc(RouteSchedule, b.handleSchedule).Methods(http.MethodGet)
	r.HandleFunc(RouteCover, b.handleCover).Methods(http.MethodGet)
	r.HandleFunc(RouteEpisodes, b.handleEpisodes).Methods(http.MethodGet)
	r.HandleFunc(RoutePlayInfo, b.handlePlayInfo).Methods(http.MethodGet)
	r.HandleFunc(RouteFavorites, b.handleFavorites).Methods(http.MethodGet)
	r.HandleFunc(RouteFavoritesFull, b.handleFavoritesFull).Methods(http.MethodGet)
	r.HandleFunc(RouteFavoriteAdd, b.handleFavoriteAdd).Methods(http.MethodPost)
	r.HandleFunc(RouteFavoriteDel, b.handleFavoriteRemove).Methods(http.MethodPost)
	r.HandleFunc(RoutePlaybackSave, b.handleSave).Methods(http.MethodPost)
	r.HandleFunc(RoutePlaybackGet, b.handleGet).Methods(http.MethodGet)
	r.HandleFunc(RoutePlaybackClear, b.handleClear).Methods(http.MethodPost)
	r.HandleFunc(RoutePlaybackList, b.handleHistory).Methods(http.MethodGet)

	// The real backend serves a browser front end
	b.Server = httptest.NewServer(cors.AllowAll().Handler(r))
	return b
}

// middleware records calls, applies injected failures and holds
func (b *Backend) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		call := Call{Method: r.Method, Route: route, Path: r.URL.Path, Query: r.URL.Query()}
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(data))
			if len(data) > 0 {
				_ = json.Unmarshal(data, &call.Body)
			}
		}

		b.mu.Lock()
		b.calls = append(b.calls, call)
		hold := b.holds[route]
		inject := b.failures[route] > 0
		if inject {
			b.failures[route]--
		}
		b.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		if inject {
			http.Error(w, "injected failure", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, data interface{}) {
	writeJSON(w, map[string]interface{}{"code": 200, "data": data})
}

func fail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, map[string]interface{}{"code": code, "msg": msg})
}

func animeID(r *http.Request) string {
	var body struct {
		AnimeID json.RawMessage `json:"anime_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return ""
	}
	return strings.Trim(string(body.AnimeID), `"`)
}

func (b *Backend) handleList(w http.ResponseWriter, r *http.Request) {
	page := 1
	fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)
	if page < 1 {
		page = 1
	}
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))

	b.mu.Lock()
	var filtered []Show
	for _, s := range b.catalog {
		if q == "" || strings.Contains(strings.ToLower(s.Title), q) {
			filtered = append(filtered, s)
		}
	}
	b.mu.Unlock()

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}
	writeJSON(w, map[string]interface{}{"code": 200, "data": filtered[start:end], "total": len(filtered)})
}

func (b *Backend) handleSchedule(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("year") + "_" + r.URL.Query().Get("season")
	b.mu.Lock()
	days, found := b.schedules[key]
	b.mu.Unlock()
	if !found {
		fail(w, 404, "本地无数据")
		return
	}
	ok(w, days)
}

func (b *Backend) handleCover(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	u, found := b.covers[r.URL.Query().Get("title")]
	b.mu.Unlock()
	if !found {
		writeJSON(w, map[string]interface{}{"url": nil})
		return
	}
	writeJSON(w, map[string]interface{}{"url": u})
}

func (b *Backend) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	eps, found := b.episodes[r.URL.Query().Get("id")]
	b.mu.Unlock()
	if !found {
		fail(w, 404, "未找到番剧页面")
		return
	}
	ok(w, eps)
}

func (b *Backend) handlePlayInfo(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("token")
	if key == "" {
		key = q.Get("id") + ":" + q.Get("ep")
	}
	b.mu.Lock()
	u, found := b.playURLs[key]
	b.mu.Unlock()
	if !found {
		fail(w, 500, "解析失败")
		return
	}
	writeJSON(w, map[string]interface{}{"code": 200, "url": u})
}

func (b *Backend) handleFavorites(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	ids := append([]string{}, b.favorites...)
	b.mu.Unlock()
	ok(w, ids)
}

func (b *Backend) handleFavoritesFull(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	shows := []Show{}
	for i := len(b.favorites) - 1; i >= 0; i-- {
		if s, found := b.showLocked(b.favorites[i]); found {
			shows = append(shows, s)
		}
	}
	ok(w, shows)
}

func (b *Backend) handleFavoriteAdd(w http.ResponseWriter, r *http.Request) {
	id := animeID(r)
	if id == "" {
		fail(w, 400, "Missing anime_id")
		return
	}
	b.mu.Lock()
	found := false
	for _, f := range b.favorites {
		if f == id {
			found = true
		}
	}
	if !found {
		b.favorites = append(b.favorites, id)
	}
	b.mu.Unlock()
	writeJSON(w, map[string]interface{}{"code": 200, "msg": "success"})
}

func (b *Backend) handleFavoriteRemove(w http.ResponseWriter, r *http.Request) {
	id := animeID(r)
	if id == "" {
		fail(w, 400, "Missing anime_id")
		return
	}
	b.mu.Lock()
	kept := b.favorites[:0]
	for _, f := range b.favorites {
		if f != id {
			kept = append(kept, f)
		}
	}
	b.favorites = kept
	b.mu.Unlock()
	writeJSON(w, map[string]interface{}{"code": 200, "msg": "success"})
}

func (b *Backend) handleSave(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AnimeID          json.RawMessage `json:"anime_id"`
		EpisodeTitle     string          `json:"episode_title"`
		PlaybackPosition float64         `json:"playback_position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		fail(w, 400, "Missing required fields")
		return
	}
	id := strings.Trim(string(body.AnimeID), `"`)
	if id == "" || body.EpisodeTitle == "" {
		fail(w, 400, "Missing required fields")
		return
	}
	b.mu.Lock()
	b.records[id] = Record{
		EpisodeTitle:     body.EpisodeTitle,
		PlaybackPosition: body.PlaybackPosition,
		Timestamp:        time.Now().Format("2006-01-02T15:04:05.000000"),
	}
	b.mu.Unlock()
	writeJSON(w, map[string]interface{}{"code": 200, "msg": "success"})
}

func (b *Backend) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["anime_id"]
	b.mu.Lock()
	rec, found := b.records[id]
	b.mu.Unlock()
	if !found {
		ok(w, map[string]interface{}{})
		return
	}
	ok(w, rec)
}

func (b *Backend) handleClear(w http.ResponseWriter, r *http.Request) {
	id := animeID(r)
	if id == "" {
		fail(w, 400, "Missing anime_id")
		return
	}
	b.mu.Lock()
	delete(b.records, id)
	b.mu.Unlock()
	writeJSON(w, map[string]interface{}{"code": 200, "msg": "success"})
}

func (b *Backend) handleHistory(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	rows := make([]map[string]interface{}, 0, len(b.records))
	for id, rec := range b.records {
		row := map[string]interface{}{
			"anime_id":          id,
			"episode_title":     rec.EpisodeTitle,
			"playback_position": rec.PlaybackPosition,
			"timestamp":         rec.Timestamp,
		}
		if s, found := b.showLocked(id); found {
			row["title"] = s.Title
			row["status"] = s.Status
			row["year"] = s.Year
			row["season"] = s.Season
			row["poster"] = s.Poster
		}
		rows = append(rows, row)
	}
	b.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		return rows[i]["timestamp"].(string) > rows[j]["timestamp"].(string)
	})
	ok(w, rows)
}

func (b *Backend) showLocked(id string) (Show, bool) {
	for _, s := range b.catalog {
		if s.ID == id {
			return s, true
		}
	}
	return Show{}, false
}

// AddShows appends shows to the catalog
func (b *Backend) AddShows(shows ...Show) {
	b.mu.Lock()
	b.catalog = append(b.catalog, shows...)
	b.mu.Unlock()
}

// SetSchedule stores the seven day buckets for a year and season
func (b *Backend) SetSchedule(year int, season string, days [][]Show) {
	b.mu.Lock()
	b.schedules[fmt.Sprintf("%d_%s", year, season)] = days
	b.mu.Unlock()
}

// SetCover registers a lazy cover for title
func (b *Backend) SetCover(title, url string) {
	b.mu.Lock()
	b.covers[title] = url
	b.mu.Unlock()
}

// SetFavorites replaces the favorite ids, oldest first
func (b *Backend) SetFavorites(ids ...string) {
	b.mu.Lock()
	b.favorites = append([]string{}, ids...)
	b.mu.Unlock()
}

// SetEpisodes stores an episode list (newest first) and a play address per episode
func (b *Backend) SetEpisodes(animeID string, eps ...Episode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.episodes[animeID] = eps
	for _, ep := range eps {
		addr := fmt.Sprintf("/video/%s/%d.mp4", animeID, ep.Index)
		if ep.Token != "" {
			b.playURLs[ep.Token] = addr
		} else {
			b.playURLs[fmt.Sprintf("%s:%d", animeID, ep.Index)] = addr
		}
	}
}

// SetRecord stores a playback record
func (b *Backend) SetRecord(animeID, episodeTitle string, position float64) {
	b.mu.Lock()
	b.records[animeID] = Record{
		EpisodeTitle:     episodeTitle,
		PlaybackPosition: position,
		Timestamp:        time.Now().Format("2006-01-02T15:04:05.000000"),
	}
	b.mu.Unlock()
}

// Record returns the stored record for animeID
func (b *Backend) Record(animeID string) (Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, found := b.records[animeID]
	return rec, found
}

// Favorites returns the favorite ids, oldest first
func (b *Backend) Favorites() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.favorites...)
}

// FailNext makes the next n requests on route answer with HTTP 500
func (b *Backend) FailNext(route string, n int) {
	b.mu.Lock()
	b.failures[route] = n
	b.mu.Unlock()
}

// Hold blocks requests on route until the returned release func is called
func (b *Backend) Hold(route string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.holds[route] = ch
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.holds[route] == ch {
				delete(b.holds, route)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns the recorded calls for route, or all calls when route is empty
func (b *Backend) Calls(route string) []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Call
	for _, c := range b.calls {
		if route == "" || c.Route == route {
			out = append(out, c)
		}
	}
	return out
}

// CallCount returns the number of calls recorded for route
func (b *Backend) CallCount(route string) int {
	return len(b.Calls(route))
}
