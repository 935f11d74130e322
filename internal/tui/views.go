package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/anikino/internal/domain"
	"github.com/mmcdole/anikino/internal/tui/styles"
)

var modeTabs = []struct {
	mode  domain.Mode
	label string
}{
	{domain.ModeSchedule, "1 Schedule"},
	{domain.ModeList, "2 Catalog"},
	{domain.ModeFavorites, "3 Favorites"},
	{domain.ModeHistory, "4 History"},
}

// View renders the model
func (m Model) View() string {
	if m.Width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderSubheader())
	b.WriteString("\n")
	if m.view.Mode == domain.ModePlayer && m.found == nil {
		b.WriteString(m.renderPlayer())
		b.WriteString("\n")
	}
	b.WriteString(m.renderRows())
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	var tabs []string
	for _, t := range modeTabs {
		active := m.view.Mode == t.mode || (m.view.Mode == domain.ModePlayer && m.view.LastMode == t.mode)
		if active {
			tabs = append(tabs, styles.ActiveTabStyle.Render(t.label))
		} else {
			tabs = append(tabs, styles.TabStyle.Render(t.label))
		}
	}
	if m.view.Mode == domain.ModePlayer {
		tabs = append(tabs, styles.ActiveTabStyle.Render(styles.PlayingChar+" Player"))
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	if m.pending > 0 || m.view.Loading {
		frame := styles.SpinnerFrames[m.spinnerFrame%len(styles.SpinnerFrames)]
		header += " " + styles.AccentStyle.Render(frame)
	}
	return header
}

func (m Model) renderSubheader() string {
	if m.found != nil {
		return styles.SubtitleStyle.Render(fmt.Sprintf("Seen this session: %d matches", len(m.found)))
	}

	switch m.view.Mode {
	case domain.ModeSchedule:
		var days []string
		for i, label := range m.view.DayLabels {
			if i == m.view.Day {
				days = append(days, styles.ActiveTabStyle.Render(label))
			} else {
				days = append(days, styles.TabStyle.Render(label))
			}
		}
		season := styles.TitleStyle.Render(fmt.Sprintf("%d %s", m.view.Year, m.view.Season))
		return season + " " + lipgloss.JoinHorizontal(lipgloss.Top, days...)
	case domain.ModeList:
		if m.view.Query != "" {
			return styles.SubtitleStyle.Render(fmt.Sprintf("Results for %q", m.view.Query))
		}
		return styles.SubtitleStyle.Render("Catalog")
	case domain.ModeFavorites:
		return styles.SubtitleStyle.Render(fmt.Sprintf("%d favorites", len(m.view.Favorites)))
	case domain.ModeHistory:
		return styles.SubtitleStyle.Render("Recently watched")
	}
	return ""
}

func (m Model) renderPlayer() string {
	st := m.view.Player
	if st.Item == nil {
		return styles.PlayerStyle.Render(styles.DimStyle.Render("Nothing open"))
	}

	lines := []string{styles.TitleStyle.Render(st.Item.Title)}
	if sub := joinNonEmpty(st.Item.Year, st.Item.Season, st.Item.Status); sub != "" {
		lines = append(lines, styles.SubtitleStyle.Render(sub))
	}
	if st.Episode != nil {
		lines = append(lines, styles.AccentStyle.Render(fmt.Sprintf("%s %s (%s)", styles.PlayingChar, st.Episode.Title, st.State)))
	} else {
		lines = append(lines, styles.DimStyle.Render("Not playing"))
	}
	switch {
	case st.Resume != nil:
		lines = append(lines, styles.SubtitleStyle.Render(fmt.Sprintf("Resume %s at %s (r)", st.Resume.EpisodeTitle, domain.FormatClock(st.Resume.Position))))
	case st.EpisodesLoading:
		lines = append(lines, styles.DimStyle.Render("Loading episodes..."))
	case st.EpisodesFailed:
		lines = append(lines, styles.ErrorStyle.Render("Could not load episodes"))
	}
	return styles.PlayerStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) renderRows() string {
	rows := m.rows()
	if len(rows) == 0 {
		msg := "Nothing here"
		if m.view.Loading {
			msg = "Loading..."
		}
		return styles.DimStyle.Render(msg) + "\n"
	}

	width := m.Width - 4
	var b strings.Builder
	end := m.offset + m.pageHeight()
	if end > len(rows) {
		end = len(rows)
	}
	for i := m.offset; i < end; i++ {
		r := rows[i]
		detail := ""
		if r.detail != "" {
			detail = "  " + r.detail
		}
		titleWidth := width - lipgloss.Width(detail)
		line := styles.Truncate(r.title, titleWidth) + styles.DimStyle.Render(detail)
		if i == m.cursor {
			b.WriteString(styles.SelectedItemStyle.Render(line))
		} else {
			b.WriteString(styles.NormalItemStyle.Render(line))
		}
		b.WriteString("\n")
	}
	if m.view.Mode == domain.ModeList && m.found == nil && m.view.HasMore && end == len(rows) {
		b.WriteString(styles.DimStyle.Render("  more below...") + "\n")
	}
	return b.String()
}

func (m Model) renderFooter() string {
	var lines []string
	if m.inputKind != inputNone {
		lines = append(lines, m.input.View())
	} else if m.filter != "" {
		lines = append(lines, styles.FilterPromptStyle.Render("filter: ")+styles.FilterStyle.Render(m.filter))
	}
	for _, n := range m.view.Notices {
		lines = append(lines, styles.NoticeStyle.Render(n))
	}
	if m.status != "" {
		lines = append(lines, styles.ErrorStyle.Render(m.status))
	}
	lines = append(lines, m.renderHelp())
	return strings.Join(lines, "\n")
}

func (m Model) renderHelp() string {
	bindings := []struct{ key, desc string }{
		{"enter", "open/play"},
		{"/", "search"},
		{"f", "filter"},
		{"s", "favorite"},
		{"[ ]", "back/fwd"},
		{"q", "quit"},
	}
	switch m.view.Mode {
	case domain.ModePlayer:
		bindings = append([]struct{ key, desc string }{{"r", "resume"}, {"esc", "close"}}, bindings...)
	case domain.ModeSchedule:
		bindings = append([]struct{ key, desc string }{{"h/l", "day"}, {"< >", "season"}}, bindings...)
	}

	parts := make([]string, len(bindings))
	for i, kb := range bindings {
		parts[i] = styles.HelpKeyStyle.Render(kb.key) + " " + styles.HelpDescStyle.Render(kb.desc)
	}
	return styles.FooterStyle.Render(strings.Join(parts, "  "))
}

// joinNonEmpty joins the non-empty parts with a middle dot
func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " · ")
}
