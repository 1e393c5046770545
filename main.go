package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/goccy/go-json"

	"netsentry/internal/alerting"
	"netsentry/internal/capture"
	"netsentry/internal/capture/pcaplive"
	"netsentry/internal/config"
	"netsentry/internal/logging"
	"netsentry/internal/metrics"
	"netsentry/internal/models"
	"netsentry/internal/reporting"
	"netsentry/internal/tui"
)

const logFile = "netsentry.log"

func main() {
	interfaceName := flag.String("i", "", "Network interface to capture from (e.g., eth0, wlan0)")
	readFile := flag.String("r", "", "Analyse a pcap/pcapng file instead of capturing live")
	filters := flag.String("f", "", "Comma separated capture filters (tcp, udp, icmp, arp, dns, http, https or raw BPF)")
	configPath := flag.String("config", "", "Path to a YAML config file")
	reportDir := flag.String("report", "", "Write an HTML report into this directory after an offline run")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address (overrides config)")
	noTUI := flag.Bool("no-tui", false, "Run a live capture without the dashboard, printing events")
	listIfaces := flag.Bool("list", false, "List capture interfaces and exit")
	flag.Parse()

	if *listIfaces {
		names, err := pcaplive.Interfaces()
		if err != nil {
			fatal(err)
		}
		fmt.Println(strings.Join(names, "\n"))
		return
	}

	if (*interfaceName == "") == (*readFile == "") {
		fmt.Println("Provide exactly one of -i (live) or -r (capture file)")
		fmt.Println("Example: ./netsentry -i wlan0 -f tcp,dns")
		fmt.Println("         ./netsentry -r capture.pcap -report .")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if *metricsAddr != "" {
		cfg.Metrics.Listen = *metricsAddr
	}

	// The dashboard owns the terminal, so logs go to a file while it runs.
	dashboard := *interfaceName != "" && !*noTUI
	logCfg := cfg.Log
	if dashboard {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			fatal(err)
		}
		defer f.Close()
		logCfg.Output = f
	}
	logging.Init(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				logging.Error().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	var sink *alerting.FileSink
	if cfg.Alerts.File != "" {
		sink, err = alerting.OpenFile(cfg.Alerts.File)
		if err != nil {
			fatal(err)
		}
		defer sink.Close()
	}

	opts := capture.Options{
		Detectors:     cfg.Detectors.Enabled,
		Thresholds:    cfg.Thresholds,
		StoreCapacity: cfg.Store.Capacity,
		Opener: pcaplive.Opener(pcaplive.Options{
			Snaplen:     cfg.Capture.Snaplen,
			Promiscuous: cfg.Capture.Promiscuous,
			ReadTimeout: cfg.Capture.ReadTimeout,
		}),
	}

	if *readFile != "" {
		err = runOffline(ctx, *readFile, *reportDir, opts, sink)
	} else {
		err = runLive(ctx, *interfaceName, splitFilters(*filters), opts, cfg.Capture.StopTimeout, sink, dashboard)
	}
	if err != nil {
		fatal(err)
	}
}

func runOffline(ctx context.Context, path, reportDir string, opts capture.Options, sink *alerting.FileSink) error {
	job, err := capture.NewOfflineJob(path, opts)
	if err != nil {
		return err
	}
	sum, err := job.Run(ctx)
	if err != nil {
		return err
	}

	events := models.Events(job.Results(0, 0))
	if sink != nil {
		sink.AppendAll(job.ID(), events)
	}

	if reportDir != "" {
		name, err := reporting.GenerateSessionReport(reporting.Report{
			Title:   "NetSentry Report - " + path,
			Summary: sum,
			Events:  events,
			Flows:   job.TopFlows(20),
		}, "html", reportDir)
		if err != nil {
			return err
		}
		logging.Info().Str("report", name).Msg("report written")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

func runLive(ctx context.Context, iface string, filters []string, opts capture.Options,
	stopTimeout time.Duration, sink *alerting.FileSink, dashboard bool) error {
	m := capture.NewManager(opts, stopTimeout)
	defer m.Shutdown()

	id, err := m.Start(iface, filters)
	if err != nil {
		return err
	}
	s, err := m.Session(id)
	if err != nil {
		return err
	}

	onEvents := func(session string, events []models.DetectionEvent) {
		if sink != nil {
			sink.AppendAll(session, events)
		}
	}

	if dashboard {
		p := tea.NewProgram(tui.NewAnalysisModel(s, onEvents), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			logging.Error().Err(err).Msg("dashboard exited with error")
		}
	} else {
		headless(ctx, s, onEvents)
	}

	if !s.Stop(stopTimeout) {
		logging.Warn().Str("session", id).Msg("session did not stop in time")
	}
	return s.Err()
}

// headless prints every event as a JSON line until ctx is done or the
// session ends on its own.
func headless(ctx context.Context, s *capture.Session, onEvents tui.EventHandler) {
	enc := json.NewEncoder(os.Stdout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	drain := func() {
		events := models.Events(s.Poll(0, nil, true))
		if len(events) == 0 {
			return
		}
		onEvents(s.ID(), events)
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				logging.Warn().Err(err).Msg("write event")
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return
		case <-s.Done():
			drain()
			return
		case <-ticker.C:
			drain()
		}
	}
}

func splitFilters(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "netsentry:", err)
	os.Exit(1)
}
