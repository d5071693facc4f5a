package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used by the watch view.
type Styles struct {
	App      lipgloss.Style
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Matrix   lipgloss.Style

	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Error   lipgloss.Style
	Online  lipgloss.Style
	Offline lipgloss.Style

	Help lipgloss.Style
}

func DefaultStyles() Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special := lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	return Styles{
		App: lipgloss.NewStyle().
			Padding(1, 2),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(highlight).
			Padding(0, 1).
			MarginBottom(1),

		Subtitle: lipgloss.NewStyle().
			Foreground(subtle),

		Matrix: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Background(lipgloss.Color("#000000")),

		Label: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}).
			Width(14),

		Value: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#343433", Dark: "#C1C6B2"}),

		Muted: lipgloss.NewStyle().
			Foreground(subtle),

		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")),

		Online: lipgloss.NewStyle().
			Foreground(special).
			Bold(true),

		Offline: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true),

		Help: lipgloss.NewStyle().
			Foreground(subtle).
			MarginTop(1),
	}
}
