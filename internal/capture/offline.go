package capture

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"netsentry/internal/analysis"
	"netsentry/internal/detect"
	"netsentry/internal/errors"
	"netsentry/internal/logging"
	"netsentry/internal/metrics"
	"netsentry/internal/models"
)

// Summary describes a completed offline analysis.
type Summary struct {
	File             string                  `json:"file"`
	Packets          uint64                  `json:"packets"`
	Bytes            int64                   `json:"bytes"`
	Duration         time.Duration           `json:"duration"`
	Flows            int                     `json:"flows"`
	Events           int                     `json:"events"`
	EventsByDetector map[string]int          `json:"events_by_detector"`
	Protocols        []analysis.ProtocolStat `json:"protocols"`
	TopTalkers       []analysis.IPStat       `json:"top_talkers"`
	Domains          []analysis.DomainEntry  `json:"domains,omitempty"`
	TLSHashes        []string                `json:"tls_hashes,omitempty"`
	UserAgents       []string                `json:"user_agents,omitempty"`
	DeviceLabels     []string                `json:"device_labels,omitempty"`
	StartedAt        time.Time               `json:"started_at"`
	FinishedAt       time.Time               `json:"finished_at"`
}

// DetectorCount is one row of Summary.EventsByDetector in a stable order.
type DetectorCount struct {
	Detector string
	Events   int
}

// SortedDetectorCounts returns event counts by detector, highest first.
func (s Summary) SortedDetectorCounts() []DetectorCount {
	out := make([]DetectorCount, 0, len(s.EventsByDetector))
	for d, n := range s.EventsByDetector {
		out = append(out, DetectorCount{d, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Events != out[j].Events {
			return out[i].Events > out[j].Events
		}
		return out[i].Detector < out[j].Detector
	})
	return out
}

// OfflineJob analyses one capture file synchronously.
type OfflineJob struct {
	id   string
	path string
	p    *pipeline
	log  zerolog.Logger

	mu      sync.Mutex
	state   State
	err     error
	summary Summary
	done    chan struct{}
}

// NewOfflineJob prepares a job for path. The file is not opened until Run.
func NewOfflineJob(path string, opts Options) (*OfflineJob, error) {
	p, err := newPipeline(opts, metrics.ModeOffline)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &OfflineJob{
		id:   id,
		path: path,
		p:    p,
		log:  logging.With("offline").With().Str("job", id).Str("file", path).Logger(),
		done: make(chan struct{}),
	}, nil
}

func (j *OfflineJob) ID() string   { return j.id }
func (j *OfflineJob) Path() string { return j.path }

// Run reads every frame from the file through the pipeline and returns
// the summary. Run may be called once.
func (j *OfflineJob) Run(ctx context.Context) (Summary, error) {
	j.mu.Lock()
	if j.state != StateIdle {
		j.mu.Unlock()
		return Summary{}, errors.Errorf(errors.KindConflict, "job %s is %s", j.id, j.state)
	}
	j.state = StateRunning
	j.mu.Unlock()
	defer close(j.done)

	started := time.Now()
	sum, err := j.run(ctx)
	sum.File = j.path
	sum.StartedAt = started
	sum.FinishedAt = time.Now()

	j.mu.Lock()
	j.state = StateStopped
	j.err = err
	j.summary = sum
	j.mu.Unlock()

	if err != nil {
		j.log.Error().Err(err).Uint64("packets", sum.Packets).Msg("offline analysis failed")
	} else {
		j.log.Info().Uint64("packets", sum.Packets).Int("events", sum.Events).
			Dur("elapsed", sum.FinishedAt.Sub(started)).Msg("offline analysis complete")
	}
	return sum, err
}

func (j *OfflineJob) run(ctx context.Context) (Summary, error) {
	src, err := OpenFile(j.path)
	if err != nil {
		return Summary{}, err
	}
	defer src.Close()

	byDetector := make(map[string]int)
	link := src.LinkType()
	var runErr error
	for {
		if err := ctx.Err(); err != nil {
			runErr = errors.Wrap(err, errors.KindTimeout, "offline analysis cancelled")
			break
		}
		data, ci, err := src.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				j.log.Warn().Msg("capture file ends mid-packet, stopping at last complete frame")
				break
			}
			if !isEOF(err) {
				runErr = errors.Wrapf(err, errors.KindValidation, "read %s", j.path)
			}
			break
		}
		r := j.p.Handle(data, ci, link)
		for _, ev := range r.Events {
			byDetector[ev.Detector]++
		}
	}
	return j.summarize(byDetector), runErr
}

// summarize runs on the job goroutine after the read loop, so reading
// detector accessors is safe.
func (j *OfflineJob) summarize(byDetector map[string]int) Summary {
	totals := j.p.traffic.Totals()
	sum := Summary{
		Packets:          j.p.results.TotalSeen(),
		Bytes:            totals.Bytes,
		Duration:         totals.Duration(),
		Flows:            j.p.flows.Len(),
		EventsByDetector: byDetector,
		Protocols:        j.p.traffic.GetProtocolStats(),
		TopTalkers:       j.p.traffic.GetTopTalkers(10),
		Domains:          j.p.traffic.GetDomainLog(),
	}
	for _, n := range byDetector {
		sum.Events += n
	}
	for _, det := range j.p.dispatcher.Detectors() {
		switch d := det.(type) {
		case *detect.TLSFingerprint:
			sum.TLSHashes = d.Hashes()
		case *detect.HTTPFingerprint:
			sum.UserAgents = d.Agents()
		case *detect.DeviceFingerprint:
			sum.DeviceLabels = d.Labels()
		}
	}
	return sum
}

// Results pages through the retained results without removing them.
func (j *OfflineJob) Results(offset, limit int) []models.Result {
	return j.p.results.Page(offset, limit)
}

// Flows returns the job's flows.
func (j *OfflineJob) Flows() []analysis.Flow { return j.p.flows.Snapshot() }

// TopFlows returns the n largest flows by bytes.
func (j *OfflineJob) TopFlows(n int) []analysis.Flow { return j.p.flows.Top(n) }

func (j *OfflineJob) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Summary returns the summary and error of a finished job.
func (j *OfflineJob) Summary() (Summary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateStopped {
		return Summary{}, errors.Errorf(errors.KindConflict, "job %s is %s", j.id, j.state)
	}
	return j.summary, j.err
}

// Done is closed when Run returns.
func (j *OfflineJob) Done() <-chan struct{} { return j.done }
