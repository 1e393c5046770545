package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"netsentry/internal/analysis"
	"netsentry/internal/models"
)

func (m AnalysisModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case TickMsg:
		m = m.refresh()
		return m, tickCmd()
	}

	m.talkers, cmd = m.talkers.Update(msg)
	return m, cmd
}

// refresh pulls a fresh snapshot from the session.
func (m AnalysisModel) refresh() AnalysisModel {
	traffic := m.session.Traffic()
	m.stats = m.session.Stats()
	m.bps, m.pps = traffic.GetRates()
	m.topTalkers = traffic.GetTopTalkers(10)
	m.protocols = traffic.GetProtocolStats()
	m.domainLog = traffic.GetDomainLog()

	// drain everything so the store cannot build a backlog
	if evs := models.Events(m.session.Poll(0, nil, true)); len(evs) > 0 {
		if m.onEvent != nil {
			m.onEvent(m.session.ID(), evs)
		}
		m.events = append(m.events, evs...)
		if n := len(m.events); n > recentEvents {
			m.events = append([]models.DetectionEvent(nil), m.events[n-recentEvents:]...)
		}
	}

	rows := make([]table.Row, len(m.topTalkers))
	for i, stat := range m.topTalkers {
		rows[i] = table.Row{stat.IP, fmt.Sprintf("%d", stat.Bytes)}
	}
	m.talkers.SetRows(rows)

	flows := m.session.TopFlows(8)
	frows := make([]table.Row, len(flows))
	for i, f := range flows {
		frows[i] = table.Row{
			f.Key.String(),
			analysis.FlowService(f.Key),
			fmt.Sprintf("%d", f.Packets),
			fmt.Sprintf("%d", f.Bytes),
		}
	}
	m.flows.SetRows(frows)
	return m
}
