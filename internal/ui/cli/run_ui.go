package cli

import (
	"context"
	"time"

	"aquanet/internal/core/ports"

	tea "github.com/charmbracelet/bubbletea"
)

func runUI(svc ports.SimulationService, window time.Duration) error {
	m := initialModel(svc, window)
	p := tea.NewProgram(m, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watch := svc.WatchService()
	if err := watch.Subscribe(ctx, func(update ports.WatchUpdate) {
		p.Send(updateMsg{update: update})
	}); err != nil {
		return err
	}

	go func() {
		update, err := watch.CurrentUpdate(ctx)
		if err == nil {
			p.Send(updateMsg{update: update})
		}
	}()

	_, err := p.Run()
	return err
}
