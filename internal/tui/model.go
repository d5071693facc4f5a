// Package tui is the live dashboard: the matrix mirror and device stats.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/HsiangNianian/matrixpanel/internal/api"
	"github.com/HsiangNianian/matrixpanel/internal/apierr"
	"github.com/HsiangNianian/matrixpanel/internal/display"
)

// ScreenRefreshInterval is how often the matrix mirror is refreshed.
const ScreenRefreshInterval = time.Second

type (
	statsMsg struct {
		stats api.FormattedStats
		err   error
	}
	screenMsg struct {
		grid display.Grid
		err  error
	}
	switchedMsg struct{ err error }

	statsTickMsg  time.Time
	screenTickMsg time.Time
)

type Model struct {
	ctx context.Context
	api *api.Manager

	stats     api.FormattedStats
	hasStats  bool
	screen    display.Grid
	hasScreen bool
	online    bool
	errorMsg  string
	updated   time.Time

	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	styles  Styles
	width   int
}

func NewModel(ctx context.Context, mgr *api.Manager) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	return Model{
		ctx:     ctx,
		api:     mgr,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spinner: s,
		styles:  DefaultStyles(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchStatsCmd(), m.fetchScreenCmd(), m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case statsMsg:
		if msg.err != nil {
			m.online = false
			m.errorMsg = apierr.Message(msg.err)
		} else {
			m.online = true
			m.errorMsg = ""
			m.stats = msg.stats
			m.hasStats = true
			m.updated = time.Now()
		}
		return m, statsTickCmd()

	case screenMsg:
		if msg.err == nil {
			m.screen = msg.grid
			m.hasScreen = true
		}
		return m, screenTickCmd()

	case switchedMsg:
		if msg.err != nil {
			m.errorMsg = apierr.Message(msg.err)
		}
		return m, m.fetchScreenCmd()

	case statsTickMsg:
		return m, m.fetchStatsCmd()

	case screenTickMsg:
		return m, m.fetchScreenCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Next):
		return m, m.switchCmd(m.api.Display.NextApp)
	case key.Matches(msg, m.keys.Prev):
		return m, m.switchCmd(m.api.Display.PreviousApp)
	case key.Matches(msg, m.keys.Refresh):
		return m, tea.Batch(m.fetchStatsCmd(), m.fetchScreenCmd())
	}
	return m, nil
}

func (m Model) fetchStatsCmd() tea.Cmd {
	return func() tea.Msg {
		res := m.api.Stats.Formatted(m.ctx)
		return statsMsg{stats: res.Data, err: res.Err}
	}
}

func (m Model) fetchScreenCmd() tea.Cmd {
	return func() tea.Msg {
		res := m.api.Display.Screen(m.ctx)
		return screenMsg{grid: res.Data, err: res.Err}
	}
}

func (m Model) switchCmd(fn func(context.Context) api.Result[json.RawMessage]) tea.Cmd {
	return func() tea.Msg {
		return switchedMsg{err: fn(m.ctx).Err}
	}
}

func statsTickCmd() tea.Cmd {
	return tea.Tick(api.StatsRefreshInterval, func(t time.Time) tea.Msg {
		return statsTickMsg(t)
	})
}

func screenTickCmd() tea.Cmd {
	return tea.Tick(ScreenRefreshInterval, func(t time.Time) tea.Msg {
		return screenTickMsg(t)
	})
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("AWTRIX3"))
	b.WriteString("\n")

	if m.hasScreen {
		b.WriteString(m.styles.Matrix.Render(RenderMatrix(&m.screen)))
	} else {
		b.WriteString(m.spinner.View() + " " + m.styles.Muted.Render("waiting for screen"))
	}
	b.WriteString("\n\n")

	b.WriteString(m.renderStats())

	if m.errorMsg != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render(m.errorMsg))
	}

	b.WriteString(m.styles.Help.Render(m.help.View(m.keys)))
	return m.styles.App.Render(b.String())
}

func (m Model) renderStats() string {
	status := m.styles.Offline.Render("offline")
	if m.online {
		status = m.styles.Online.Render("online")
	}
	rows := []string{m.row("Status", status)}
	if !m.hasStats {
		return strings.Join(rows, "\n") + "\n"
	}

	s := m.stats
	rows = append(rows,
		m.row("App", s.CurrentApp),
		m.row("Memory", usage(s.RAM)),
		m.row("Flash", usage(s.Flash)),
		m.row("Uptime", api.FormatUptime(s.Uptime)),
		m.row("WiFi", fmt.Sprintf("%s %s (%d%%, %s)", s.WiFi.SSID, s.WiFi.IP, s.WiFi.Strength, s.WiFi.Quality)),
		m.row("Updated", humanize.Time(m.updated)),
	)
	return strings.Join(rows, "\n") + "\n"
}

func (m Model) row(label, value string) string {
	return m.styles.Label.Render(label) + m.styles.Value.Render(value)
}

func usage(u api.Usage) string {
	if u.Total == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%s / %s (%d%%)", humanize.IBytes(uint64(u.Used)), humanize.IBytes(uint64(u.Total)), u.Percentage)
}

// RenderMatrix draws the grid with one colored block per pixel.
func RenderMatrix(g *display.Grid) string {
	lines := make([]string, display.Height)
	for y := 0; y < display.Height; y++ {
		var row strings.Builder
		for x := 0; x < display.Width; x++ {
			c := g.At(x, y)
			if c == (display.Color{}) {
				row.WriteString("  ")
				continue
			}
			row.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(c.Hex())).Render("██"))
		}
		lines[y] = row.String()
	}
	return strings.Join(lines, "\n")
}
