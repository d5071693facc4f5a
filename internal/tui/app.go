package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/HsiangNianian/matrixpanel/internal/api"
)

// Run starts the dashboard and blocks until the user quits.
func Run(ctx context.Context, mgr *api.Manager) error {
	p := tea.NewProgram(NewModel(ctx, mgr), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
