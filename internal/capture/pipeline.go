package capture

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netsentry/internal/analysis"
	"netsentry/internal/decode"
	"netsentry/internal/detect"
	"netsentry/internal/metrics"
	"netsentry/internal/models"
	"netsentry/internal/store"
)

// Options configure a live session or an offline job.
type Options struct {
	// Detectors to run, by name. Empty means all of them.
	Detectors     []string
	Thresholds    detect.Thresholds
	StoreCapacity int
	// Opener is required for live sessions.
	Opener Opener
}

// DefaultOptions runs every detector with the stock thresholds.
func DefaultOptions() Options {
	return Options{Thresholds: detect.DefaultThresholds()}
}

// pipeline is the per-packet handler shared by sessions and offline jobs.
// Handle must only be called from one goroutine.
type pipeline struct {
	dispatcher *detect.Dispatcher
	flows      *analysis.FlowAggregator
	traffic    *analysis.TrafficStats
	results    *store.ResultStore
	mode       string
}

func newPipeline(opts Options, mode string) (*pipeline, error) {
	dets, err := detect.Build(opts.Detectors, opts.Thresholds)
	if err != nil {
		return nil, err
	}
	return &pipeline{
		dispatcher: detect.NewDispatcher(dets...),
		flows:      analysis.NewFlowAggregator(),
		traffic:    analysis.NewTrafficStats(),
		results:    store.New(opts.StoreCapacity),
		mode:       mode,
	}, nil
}

// Handle decodes one frame, feeds it to flows, stats and detectors, and
// records exactly one Result for it.
func (p *pipeline) Handle(data []byte, ci gopacket.CaptureInfo, link layers.LinkType) models.Result {
	if ci.Timestamp.IsZero() {
		ci.Timestamp = time.Now()
	}
	rec := decode.FromFrame(data, ci, link)

	p.flows.Process(&rec)
	p.traffic.ProcessPacket(&rec)
	events := p.dispatcher.Dispatch(&rec)

	metrics.PacketsProcessed.WithLabelValues(p.mode).Inc()
	return p.results.Append(models.Result{Packet: rec.Summary(), Events: events})
}
