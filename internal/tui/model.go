package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"netsentry/internal/analysis"
	"netsentry/internal/capture"
	"netsentry/internal/models"
)

const (
	tickInterval = 250 * time.Millisecond
	recentEvents = 8
)

// TickMsg drives the refresh loop.
type TickMsg time.Time

// EventHandler receives every detection event the dashboard drains from
// the session, in order.
type EventHandler func(session string, events []models.DetectionEvent)

type AnalysisModel struct {
	session *capture.Session
	onEvent EventHandler

	stats      capture.SessionStats
	bps        float64
	pps        float64
	topTalkers []analysis.IPStat
	protocols  []analysis.ProtocolStat
	talkers    table.Model
	flows      table.Model

	domainLog []analysis.DomainEntry
	events    []models.DetectionEvent // newest last, at most recentEvents
}

// NewAnalysisModel builds the dashboard for a running session. The model
// drains the session's results on every tick; onEvent may be nil.
func NewAnalysisModel(s *capture.Session, onEvent EventHandler) AnalysisModel {
	return AnalysisModel{
		session: s,
		onEvent: onEvent,
		talkers: newTable([]table.Column{
			{Title: "Source IP", Width: 20},
			{Title: "Bytes", Width: 15},
		}, 10),
		flows: newTable([]table.Column{
			{Title: "Flow", Width: 52},
			{Title: "Service", Width: 12},
			{Title: "Pkts", Width: 8},
			{Title: "Bytes", Width: 12},
		}, 8),
	}
}

func newTable(columns []table.Column, height int) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func (m AnalysisModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
