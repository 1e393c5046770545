package reporting

import (
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"netsentry/internal/analysis"
	"netsentry/internal/capture"
	"netsentry/internal/errors"
	"netsentry/internal/models"
)

// maxEventRows caps the alert table; the per-detector counts still cover
// every event.
const maxEventRows = 500

// Report is everything rendered into one HTML page.
type Report struct {
	Title   string
	Summary capture.Summary
	Events  []models.DetectionEvent
	Flows   []analysis.Flow
}

// GenerateSessionReport writes r as report_<timestamp>.html under dir and
// returns the file name. Only "html" is supported.
func GenerateSessionReport(r Report, format, dir string) (string, error) {
	if format != "html" {
		return "", errors.Errorf(errors.KindValidation, "unsupported report format: %s", format)
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("report_%s.html", timestamp))

	file, err := os.Create(filename)
	if err != nil {
		return "", errors.Wrapf(err, errors.KindUnavailable, "create report %s", filename)
	}
	defer file.Close()

	if err := WriteHTML(file, r); err != nil {
		return "", err
	}
	return filename, nil
}

// WriteHTML renders r to w. Every captured value is escaped.
func WriteHTML(w io.Writer, r Report) error {
	title := r.Title
	if title == "" {
		title = "NetSentry Report"
	}
	sum := r.Summary

	var b strings.Builder
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        body { font-family: sans-serif; margin: 20px; color: #333; }
        h1, h2 { color: #2c3e50; }
        table { width: 100%%; border-collapse: collapse; margin-bottom: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        tr:nth-child(even) { background-color: #f9f9f9; }
        .summary { background: #eef; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
        .critical { color: #d9534f; font-weight: bold; }
        .warning { color: #f0ad4e; font-weight: bold; }
    </style>
</head>
<body>
    <h1>%s</h1>
    <div class="summary">
        <p><strong>Source:</strong> %s</p>
        <p><strong>Generated:</strong> %s</p>
        <p><strong>Packets:</strong> %d</p>
        <p><strong>Total Data Transferred:</strong> %s</p>
        <p><strong>Capture Span:</strong> %s</p>
        <p><strong>Flows:</strong> %d</p>
        <p><strong>Detection Events:</strong> %d</p>
    </div>
`, esc(title), esc(title), esc(sum.File), time.Now().Format(time.RFC1123),
		sum.Packets, formatBytes(sum.Bytes), sum.Duration, sum.Flows, sum.Events)

	counts := sum.SortedDetectorCounts()
	openTable(&b, "Events by Detector", "Detector", "Events")
	if len(counts) == 0 {
		emptyRow(&b, 2, "No detection events.")
	}
	for _, c := range counts {
		row(&b, c.Detector, fmt.Sprint(c.Events))
	}
	closeTable(&b)

	openTable(&b, "Detection Events", "Time", "Detector", "Severity", "Subject", "Detail")
	if len(r.Events) == 0 {
		emptyRow(&b, 5, "No alerts triggered.")
	}
	for i, ev := range r.Events {
		if i == maxEventRows {
			emptyRow(&b, 5, fmt.Sprintf("%d more events not shown.", len(r.Events)-maxEventRows))
			break
		}
		fmt.Fprintf(&b, "            <tr><td>%s</td><td>%s</td><td class=\"%s\">%s</td><td>%s</td><td>%s</td></tr>\n",
			ev.Timestamp.Format("15:04:05.000"), esc(ev.Detector), esc(string(ev.Severity)),
			esc(string(ev.Severity)), esc(ev.Subject), esc(ev.Detail))
	}
	closeTable(&b)

	openTable(&b, "Top Talkers", "IP Address", "Data Transferred (Bytes)")
	if len(sum.TopTalkers) == 0 {
		emptyRow(&b, 2, "No IP traffic.")
	}
	for _, t := range sum.TopTalkers {
		row(&b, t.IP, fmt.Sprint(t.Bytes))
	}
	closeTable(&b)

	openTable(&b, "Protocols", "Protocol", "Packets")
	for _, p := range sum.Protocols {
		row(&b, p.Protocol, fmt.Sprint(p.Count))
	}
	closeTable(&b)

	if len(r.Flows) > 0 {
		openTable(&b, "Top Flows", "Flow", "Service", "Packets", "Bytes", "Duration")
		for _, f := range r.Flows {
			row(&b, f.Key.String(), analysis.FlowService(f.Key), fmt.Sprint(f.Packets),
				fmt.Sprint(f.Bytes), f.Duration().String())
		}
		closeTable(&b)
	}

	openTable(&b, "Fingerprints", "Kind", "Value")
	for _, h := range sum.TLSHashes {
		row(&b, "TLS", h)
	}
	for _, ua := range sum.UserAgents {
		row(&b, "User-Agent", ua)
	}
	for _, d := range sum.DeviceLabels {
		row(&b, "Device", d)
	}
	closeTable(&b)

	openTable(&b, "Domain History", "Time First Seen", "Hostname", "Source")
	if len(sum.Domains) == 0 {
		emptyRow(&b, 3, "No domains captured.")
	}
	for _, d := range sum.Domains {
		row(&b, d.Timestamp.Format("15:04:05"), d.Hostname, d.Source)
	}
	closeTable(&b)

	b.WriteString("</body>\n</html>\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "write report")
	}
	return nil
}

func esc(s string) string { return html.EscapeString(s) }

func openTable(b *strings.Builder, heading string, cols ...string) {
	fmt.Fprintf(b, "\n    <h2>%s</h2>\n    <table>\n        <thead>\n            <tr>", esc(heading))
	for _, c := range cols {
		fmt.Fprintf(b, "<th>%s</th>", esc(c))
	}
	b.WriteString("</tr>\n        </thead>\n        <tbody>\n")
}

func row(b *strings.Builder, cells ...string) {
	b.WriteString("            <tr>")
	for _, c := range cells {
		fmt.Fprintf(b, "<td>%s</td>", esc(c))
	}
	b.WriteString("</tr>\n")
}

func emptyRow(b *strings.Builder, span int, msg string) {
	fmt.Fprintf(b, "            <tr><td colspan=\"%d\">%s</td></tr>\n", span, esc(msg))
}

func closeTable(b *strings.Builder) {
	b.WriteString("        </tbody>\n    </table>\n")
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
