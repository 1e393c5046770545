package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"netsentry/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)

	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true)
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00"))
)

func (m AnalysisModel) View() string {
	headerText := fmt.Sprintf("NetSentry - Monitoring: %s [%s]", m.stats.Interface, m.stats.State)
	if m.stats.Filter != "" {
		headerText += fmt.Sprintf(" filter: %s", m.stats.Filter)
	}
	title := titleStyle.Render(headerText)

	qos := fmt.Sprintf("Bandwidth: %s\nPacket Rate: %.2f PPS\nPackets: %d\nEvents: %d\nFlows: %d",
		formatBps(m.bps), m.pps, m.stats.PacketCount, m.stats.Events, m.stats.Flows)
	qosBox := infoStyle.Render(qos)

	var protoStrs []string
	for i, p := range m.protocols {
		if i == 5 {
			break
		}
		protoStrs = append(protoStrs, fmt.Sprintf("%s: %d", p.Protocol, p.Count))
	}
	if len(protoStrs) == 0 {
		protoStrs = append(protoStrs, "Waiting for data...")
	}
	protoBox := infoStyle.Render("Protocols:\n" + strings.Join(protoStrs, "\n"))

	var domains []string
	for i := len(m.domainLog) - 1; i >= 0 && len(domains) < 5; i-- {
		d := m.domainLog[i]
		domains = append(domains, fmt.Sprintf("%s %-3s %s", d.Timestamp.Format("15:04:05"), d.Source, d.Hostname))
	}
	if len(domains) == 0 {
		domains = append(domains, "No domains yet")
	}
	domainBox := infoStyle.Render("Domains:\n" + strings.Join(domains, "\n"))

	eventBox := infoStyle.Render("Detections:\n" + renderEvents(m.events))

	ttBox := infoStyle.Render("Top Talkers\n" + m.talkers.View())
	flowBox := infoStyle.Render("Top Flows\n" + m.flows.View())

	row1 := lipgloss.JoinHorizontal(lipgloss.Top, qosBox, protoBox, domainBox)
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, ttBox, flowBox)
	body := lipgloss.JoinVertical(lipgloss.Left, title, row1, eventBox, row2)

	if m.stats.Err != "" {
		body += "\n" + criticalStyle.Render("capture error: "+m.stats.Err)
	}
	return body + "\nPress q to quit."
}

func renderEvents(events []models.DetectionEvent) string {
	if len(events) == 0 {
		return "None"
	}
	lines := make([]string, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		line := fmt.Sprintf("%s %-18s %-15s %s", ev.Timestamp.Format("15:04:05"), ev.Detector, ev.Subject, ev.Detail)
		switch ev.Severity {
		case models.SeverityCritical:
			line = criticalStyle.Render(line)
		case models.SeverityWarning:
			line = warningStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatBps(bps float64) string {
	if bps >= 1e6 {
		return fmt.Sprintf("%.2f Mbps", bps/1e6)
	}
	if bps >= 1e3 {
		return fmt.Sprintf("%.2f Kbps", bps/1e3)
	}
	return fmt.Sprintf("%.2f bps", bps)
}
