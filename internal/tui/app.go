// Package tui is the terminal front end. It renders engine snapshots and
// turns key presses into engine operations.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/anikino/internal/domain"
	"github.com/mmcdole/anikino/internal/playback"
	"github.com/mmcdole/anikino/internal/session"
	"github.com/mmcdole/anikino/internal/tui/styles"
)

const (
	tickInterval = 100 * time.Millisecond
	findLimit    = 50

	// Header, tabs, footer and help lines
	chromeHeight = 5
)

// Engine is the session surface the TUI drives
type Engine interface {
	Start(ctx context.Context) error
	Snapshot() session.View
	SwitchMode(ctx context.Context, target domain.Mode) error
	Search(ctx context.Context, query string) error
	LoadMore(ctx context.Context) error
	ReloadHome(ctx context.Context) error
	SelectSeason(ctx context.Context, year int, season string) error
	SetDay(i int)
	ToggleFavorite(ctx context.Context, id string) error
	OpenItem(ctx context.Context, item domain.Item) error
	Play(ctx context.Context, ep domain.Episode, start float64) error
	Resume(ctx context.Context) error
	ClosePlayer(ctx context.Context) error
	Back(ctx context.Context) (bool, error)
	Forward(ctx context.Context) (bool, error)
	SearchCached(query string, limit int) []domain.Item
}

// inputKind is what the text input is collecting
type inputKind int

const (
	inputNone   inputKind = iota
	inputSearch           // Server-side catalog search
	inputFilter           // Fuzzy filter over the visible rows
	inputFind             // Search over every show seen this session
)

// Model is the main Bubble Tea model for the application
type Model struct {
	engine Engine
	ctx    context.Context
	logger *slog.Logger

	view   session.View
	cursor int
	offset int

	input     textinput.Model
	inputKind inputKind
	filter    string
	found     []domain.Item // Cached find results, nil when inactive

	status       string
	pending      int
	spinnerFrame int

	Width  int
	Height int
}

// NewModel creates a new application model
func NewModel(ctx context.Context, engine Engine, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}
	ti := textinput.New()
	ti.PromptStyle = styles.FilterPromptStyle
	ti.TextStyle = styles.FilterStyle

	return Model{
		engine: engine,
		ctx:    ctx,
		logger: logger,
		view:   engine.Snapshot(),
		input:  ti,
	}
}

// Init starts the session and the refresh ticker
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.engineCmd("start", m.engine.Start),
		TickCmd(tickInterval),
	)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.clampCursor()
		return m, nil

	case TickMsg:
		m.spinnerFrame++
		m.refresh()
		return m, TickCmd(tickInterval)

	case engineDoneMsg:
		if m.pending > 0 {
			m.pending--
		}
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) {
			m.logger.Debug("engine operation failed", "op", msg.Op, "error", msg.Err)
			if errors.Is(msg.Err, domain.ErrServerOffline) {
				m.status = "Server offline"
			}
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.inputKind != inputNone {
			return m.handleInputKey(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

// refresh pulls a new snapshot from the engine
func (m *Model) refresh() {
	m.view = m.engine.Snapshot()
	m.clampCursor()
}

// run starts an engine operation and tracks it for the spinner
func (m *Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	m.pending++
	m.status = ""
	return m.engineCmd(op, fn)
}

func (m *Model) resetCursor() {
	m.cursor = 0
	m.offset = 0
}

// pageHeight is the number of body rows that fit on screen
func (m Model) pageHeight() int {
	h := m.Height - chromeHeight
	if m.view.Mode == domain.ModePlayer {
		h -= 6
	}
	if h < 1 {
		h = 1
	}
	return h
}

func (m *Model) clampCursor() {
	n := len(m.rows())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	page := m.pageHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+page {
		m.offset = m.cursor - page + 1
	}
}

// rows returns the selectable lines of the current view after filtering
func (m Model) rows() []row {
	var rows []row
	switch {
	case m.found != nil:
		rows = itemRows(m.found, m.view.Favorites)
	case m.view.Mode == domain.ModePlayer:
		rows = episodeRows(m.view.Player)
	case m.view.Mode == domain.ModeSchedule:
		if m.view.Day >= 0 && m.view.Day < len(m.view.Days) {
			rows = itemRows(m.view.Days[m.view.Day], m.view.Favorites)
		}
	case m.view.Mode == domain.ModeHistory:
		rows = historyRows(m.view.Items, m.view.History)
	default:
		rows = itemRows(m.view.Items, m.view.Favorites)
	}
	return filterRows(rows, m.filter)
}

func itemRows(items []domain.Item, favorites []string) []row {
	fav := make(map[string]bool, len(favorites))
	for _, id := range favorites {
		fav[id] = true
	}
	rows := make([]row, len(items))
	for i := range items {
		it := items[i]
		detail := joinNonEmpty(it.Year, it.Season, it.Status)
		if fav[it.ID] {
			detail = styles.FavoriteChar + " " + detail
		}
		rows[i] = row{title: it.Title, detail: detail, item: &it}
	}
	return rows
}

func historyRows(items []domain.Item, history []domain.HistoryEntry) []row {
	records := make(map[string]domain.PlaybackRecord, len(history))
	for _, h := range history {
		records[h.Record.AnimeID] = h.Record
	}
	rows := make([]row, len(items))
	for i := range items {
		it := items[i]
		detail := ""
		if rec, ok := records[it.ID]; ok {
			detail = fmt.Sprintf("%s %s at %s", styles.ResumeChar, rec.EpisodeTitle, domain.FormatClock(float64(rec.Position)))
		}
		rows[i] = row{title: it.Title, detail: detail, item: &it}
	}
	return rows
}

func episodeRows(st playback.Status) []row {
	rows := make([]row, len(st.Episodes))
	for i := range st.Episodes {
		ep := st.Episodes[i]
		detail := ""
		switch {
		case st.Episode != nil && domain.SameTitle(st.Episode.Title, ep.Title):
			detail = styles.PlayingChar + " " + st.State.String()
		case st.Resume != nil && domain.SameTitle(st.Resume.EpisodeTitle, ep.Title):
			detail = styles.ResumeChar + " " + domain.FormatClock(st.Resume.Position)
		}
		title := ep.Title
		if ep.FullTitle != "" && ep.FullTitle != ep.Title {
			title = ep.Title + "  " + ep.FullTitle
		}
		rows[i] = row{title: title, detail: detail, episode: &ep}
	}
	return rows
}

// selectedItem is the item under the cursor, or the open item in player mode
func (m Model) selectedItem() *domain.Item {
	if m.view.Mode == domain.ModePlayer && m.found == nil {
		return m.view.Player.Item
	}
	rows := m.rows()
	if m.cursor < len(rows) {
		return rows[m.cursor].item
	}
	return nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := m.rows()

	switch {
	case key.Matches(msg, Keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, Keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		m.clampCursor()
		return m, nil

	case key.Matches(msg, Keys.Down):
		if m.cursor < len(rows)-1 {
			m.cursor++
			m.clampCursor()
			return m, nil
		}
		return m, m.loadMoreAtEnd()

	case key.Matches(msg, Keys.Home):
		m.resetCursor()
		return m, nil

	case key.Matches(msg, Keys.End):
		m.cursor = len(rows) - 1
		m.clampCursor()
		return m, m.loadMoreAtEnd()

	case key.Matches(msg, Keys.Enter):
		if m.cursor >= len(rows) {
			return m, nil
		}
		r := rows[m.cursor]
		if r.episode != nil {
			ep := *r.episode
			return m, m.run("play", func(ctx context.Context) error {
				return m.engine.Play(ctx, ep, 0)
			})
		}
		if r.item != nil {
			item := *r.item
			m.found = nil
			m.filter = ""
			m.resetCursor()
			return m, m.run("open", func(ctx context.Context) error {
				return m.engine.OpenItem(ctx, item)
			})
		}
		return m, nil

	case key.Matches(msg, Keys.Escape):
		if m.found != nil || m.filter != "" {
			m.found = nil
			m.filter = ""
			m.resetCursor()
			return m, nil
		}
		if m.view.Mode == domain.ModePlayer {
			m.resetCursor()
			return m, m.run("close", m.engine.ClosePlayer)
		}
		return m, nil

	case key.Matches(msg, Keys.Back):
		m.resetCursor()
		return m, m.run("back", func(ctx context.Context) error {
			_, err := m.engine.Back(ctx)
			return err
		})

	case key.Matches(msg, Keys.Forward):
		m.resetCursor()
		return m, m.run("forward", func(ctx context.Context) error {
			_, err := m.engine.Forward(ctx)
			return err
		})

	case key.Matches(msg, Keys.Schedule):
		return m.switchMode(domain.ModeSchedule)
	case key.Matches(msg, Keys.List):
		return m.switchMode(domain.ModeList)
	case key.Matches(msg, Keys.Favorites):
		return m.switchMode(domain.ModeFavorites)
	case key.Matches(msg, Keys.History):
		return m.switchMode(domain.ModeHistory)

	case key.Matches(msg, Keys.Reload):
		m.clearOverlays()
		return m, m.run("home", m.engine.ReloadHome)

	case key.Matches(msg, Keys.Search):
		return m.openInput(inputSearch, "search: ", m.view.Query)
	case key.Matches(msg, Keys.Filter):
		return m.openInput(inputFilter, "filter: ", m.filter)
	case key.Matches(msg, Keys.CachedFind):
		return m.openInput(inputFind, "find: ", "")

	case key.Matches(msg, Keys.Favorite):
		item := m.selectedItem()
		if item == nil {
			return m, nil
		}
		id := item.ID
		return m, m.run("favorite", func(ctx context.Context) error {
			return m.engine.ToggleFavorite(ctx, id)
		})

	case key.Matches(msg, Keys.Resume):
		if m.view.Mode != domain.ModePlayer {
			return m, nil
		}
		return m, m.run("resume", m.engine.Resume)

	case key.Matches(msg, Keys.PrevDay), key.Matches(msg, Keys.NextDay):
		if m.view.Mode != domain.ModeSchedule || m.found != nil {
			return m, nil
		}
		delta := 1
		if key.Matches(msg, Keys.PrevDay) {
			delta = session.DaysPerWeek - 1
		}
		m.engine.SetDay((m.view.Day + delta) % session.DaysPerWeek)
		m.resetCursor()
		m.refresh()
		return m, nil

	case key.Matches(msg, Keys.PrevSeason), key.Matches(msg, Keys.NextSeason):
		if m.view.Mode != domain.ModeSchedule {
			return m, nil
		}
		delta := 1
		if key.Matches(msg, Keys.PrevSeason) {
			delta = -1
		}
		year, season := session.ShiftSeason(m.view.Year, m.view.Season, delta)
		m.resetCursor()
		return m, m.run("season", func(ctx context.Context) error {
			return m.engine.SelectSeason(ctx, year, season)
		})
	}
	return m, nil
}

// loadMoreAtEnd requests the next catalog page once the cursor reaches the bottom
func (m *Model) loadMoreAtEnd() tea.Cmd {
	if m.view.Mode != domain.ModeList || m.found != nil || m.filter != "" || !m.view.HasMore || m.view.Loading {
		return nil
	}
	return m.run("more", m.engine.LoadMore)
}

func (m *Model) clearOverlays() {
	m.found = nil
	m.filter = ""
	m.resetCursor()
}

func (m Model) switchMode(mode domain.Mode) (tea.Model, tea.Cmd) {
	m.clearOverlays()
	return m, m.run("mode", func(ctx context.Context) error {
		return m.engine.SwitchMode(ctx, mode)
	})
}

func (m Model) openInput(kind inputKind, prompt, value string) (tea.Model, tea.Cmd) {
	m.inputKind = kind
	m.input.Prompt = prompt
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m, m.input.Focus()
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if m.inputKind == inputFilter {
			m.filter = ""
		}
		m.closeInput()
		return m, nil

	case tea.KeyEnter:
		kind, value := m.inputKind, m.input.Value()
		m.closeInput()
		m.resetCursor()
		switch kind {
		case inputSearch:
			m.found = nil
			m.filter = ""
			return m, m.run("search", func(ctx context.Context) error {
				return m.engine.Search(ctx, value)
			})
		case inputFilter:
			m.filter = value
		case inputFind:
			m.found = m.engine.SearchCached(value, findLimit)
			if m.found == nil {
				m.found = []domain.Item{}
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.inputKind == inputFilter {
		m.filter = m.input.Value()
		m.resetCursor()
	}
	return m, cmd
}

func (m *Model) closeInput() {
	m.inputKind = inputNone
	m.input.Blur()
}
