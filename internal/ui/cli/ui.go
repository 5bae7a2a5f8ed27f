package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"aquanet/internal/core/ports"
	"aquanet/internal/data/history"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#0EA5E9")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title + i.desc }

type panelMode int

const (
	panelNetworks panelMode = iota
	panelDetails
)

type model struct {
	networkList list.Model
	mode        panelMode
	svc         ports.SimulationService
	window      time.Duration

	networks   []ports.NetworkResult
	reruns     int
	throttled  int
	lastUpdate time.Time

	trendReport *history.TrendReport
	trendErr    string
	showTrend   bool
	status      string
}

type updateMsg struct {
	update ports.WatchUpdate
}

type trendMsg struct {
	report history.TrendReport
	err    error
}

type rerunMsg struct {
	result ports.NetworkResult
	err    error
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return handleKeyActions(msg, m)
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		height := msg.Height - v - 8
		if height < 5 {
			height = 5
		}
		m.networkList.SetSize(msg.Width-h, height)
	case updateMsg:
		m.networks = msg.update.Networks
		m.reruns = msg.update.Reruns
		m.throttled = msg.update.Throttled
		m.lastUpdate = time.Now()

		items := make([]list.Item, 0, len(m.networks))
		for _, n := range m.networks {
			items = append(items, item{title: filepath.Base(n.Path), desc: describeResult(n)})
		}
		m.networkList.SetItems(items)
	case trendMsg:
		if msg.err != nil {
			m.trendErr = msg.err.Error()
			m.trendReport = nil
		} else {
			report := msg.report
			m.trendReport = &report
			m.trendErr = ""
		}
	case rerunMsg:
		if msg.err != nil {
			m.status = statusStyle.Render(fmt.Sprintf("Rerun failed: %v", msg.err))
		} else {
			m.status = statusStyle.Render(fmt.Sprintf("Reran %s in %s", filepath.Base(msg.result.Path), msg.result.Elapsed.Round(time.Millisecond)))
		}
	}

	var cmd tea.Cmd
	m.networkList, cmd = m.networkList.Update(msg)
	return m, cmd
}

func describeResult(n ports.NetworkResult) string {
	if n.Failed() {
		return fmt.Sprintf("failed: %s", n.Err)
	}
	desc := fmt.Sprintf("periods=%d pressure=[%.2f, %.2f] peak_demand=%.2f", n.Periods, n.MinPressure, n.MaxPressure, n.PeakDemand)
	if n.Warning.IsWarning() {
		desc += fmt.Sprintf(" warning %d: %s", int(n.Warning), n.Warning.Message())
	}
	return desc
}

func (m model) selected() (ports.NetworkResult, bool) {
	idx := m.networkList.Index()
	if idx < 0 || idx >= len(m.networks) {
		return ports.NetworkResult{}, false
	}
	return m.networks[idx], true
}

func (m model) View() string {
	status := statusStyle.Render(fmt.Sprintf("Last update: %v | %d networks | %d reruns | %d throttled",
		m.lastUpdate.Format("15:04:05"), len(m.networks), m.reruns, m.throttled))

	failed, warned := 0, 0
	for _, n := range m.networks {
		switch {
		case n.Failed():
			failed++
		case n.Warning.IsWarning():
			warned++
		}
	}
	var summary string
	if failed == 0 && warned == 0 {
		summary = successStyle.Render("All networks solved")
	} else {
		summary = fmt.Sprintf("%s | %s",
			failStyle.Render(fmt.Sprintf("%d failed", failed)),
			warnStyle.Render(fmt.Sprintf("%d with warnings", warned)))
	}

	header := fmt.Sprintf("%s\n%s | %s\n", titleStyle("Water Network Monitor"), status, summary)
	help := statusStyle.Render("tab: details | enter: load trend | r: rerun | t: toggle trend | q: quit")

	body := m.networkList.View()
	if m.mode == panelDetails {
		body = renderDetails(m)
	}
	if m.showTrend {
		body += "\n\n" + renderTrend(m.trendReport, m.trendErr)
	}
	if m.status != "" {
		body += "\n\n" + m.status
	}
	return docStyle.Render(header + "\n" + help + "\n\n" + body)
}

func renderDetails(m model) string {
	n, ok := m.selected()
	if !ok {
		return statusStyle.Render("No network selected.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", titleStyle(n.Path))
	fmt.Fprintf(&b, "run %s  started %s  elapsed %s\n", n.RunID, n.StartedAt.Format(time.RFC3339), n.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "%d nodes, %d links, %d periods, energy cost %.2f/day\n", n.Nodes, n.Links, n.Periods, n.EnergyCost)
	if n.Failed() {
		b.WriteString(failStyle.Render(n.Err) + "\n")
		return b.String()
	}
	for _, e := range n.Extremes {
		fmt.Fprintf(&b, "  node %-12s pressure %10.2f .. %10.2f\n", e.NodeID, e.MinPressure, e.MaxPressure)
	}
	return b.String()
}

func renderTrend(report *history.TrendReport, errText string) string {
	if errText != "" {
		return failStyle.Render("Trend unavailable: " + errText)
	}
	if report == nil || len(report.Points) == 0 {
		return statusStyle.Render("No trend loaded. Press enter on a network.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Trend for %s: %d runs since %s\n", filepath.Base(report.Network), report.RunCount, report.Since.Format("2006-01-02 15:04"))
	start := max(0, len(report.Points)-5)
	for _, p := range report.Points[start:] {
		fmt.Fprintf(&b, "  %s %-6s min=%.2f (%+.2f) cost=%.2f (%+.2f) failures=%d\n",
			p.StartedAt.Format("01-02 15:04:05"), p.Status, p.MinPressure, p.DeltaMinPressure,
			p.EnergyCost, p.DeltaEnergyCost, p.FailuresInWindow)
	}
	return b.String()
}

func initialModel(svc ports.SimulationService, window time.Duration) model {
	networkList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	networkList.Title = "Networks"
	networkList.SetShowStatusBar(false)
	networkList.SetFilteringEnabled(true)

	return model{
		networkList: networkList,
		mode:        panelNetworks,
		svc:         svc,
		window:      window,
		lastUpdate:  time.Now(),
	}
}
