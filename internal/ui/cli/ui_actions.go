package cli

import (
	"context"
	"time"

	"aquanet/internal/core/ports"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

func handleKeyActions(msg tea.KeyMsg, m model) (tea.Model, tea.Cmd) {
	if m.networkList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.networkList, cmd = m.networkList.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab":
		if m.mode == panelNetworks {
			m.mode = panelDetails
		} else {
			m.mode = panelNetworks
		}
		return m, nil
	case "t":
		m.showTrend = !m.showTrend
		return m, nil
	case "enter":
		n, ok := m.selected()
		if !ok || m.svc == nil {
			return m, nil
		}
		m.showTrend = true
		return m, loadTrendCmd(m.svc, n.Path, m.window)
	case "r":
		n, ok := m.selected()
		if !ok || m.svc == nil {
			return m, nil
		}
		return m, rerunCmd(m.svc, n.Path)
	case "esc":
		m.mode = panelNetworks
		m.showTrend = false
		return m, nil
	}

	var cmd tea.Cmd
	m.networkList, cmd = m.networkList.Update(msg)
	return m, cmd
}

func loadTrendCmd(svc ports.SimulationService, path string, window time.Duration) tea.Cmd {
	return func() tea.Msg {
		report, err := svc.Trend(context.Background(), ports.TrendRequest{Network: path, Window: window})
		return trendMsg{report: report, err: err}
	}
}

func rerunCmd(svc ports.SimulationService, path string) tea.Cmd {
	return func() tea.Msg {
		res, err := svc.Simulate(context.Background(), path)
		return rerunMsg{result: res, err: err}
	}
}
