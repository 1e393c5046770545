package capture

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
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

// State is the lifecycle position of a session or offline job.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SessionStats is a point-in-time view of a session.
type SessionStats struct {
	ID          string    `json:"id"`
	Interface   string    `json:"interface"`
	Filters     []string  `json:"filters,omitempty"`
	Filter      string    `json:"filter,omitempty"`
	State       State     `json:"state"`
	Running     bool      `json:"running"`
	PacketCount uint64    `json:"packet_count"`
	Events      uint64    `json:"events"`
	Buffered    int       `json:"buffered"`
	Evicted     uint64    `json:"evicted"`
	Flows       int       `json:"flows"`
	Detectors   []string  `json:"detectors"`
	StartedAt   time.Time `json:"started_at"`
	StoppedAt   time.Time `json:"stopped_at"`
	Err         string    `json:"error,omitempty"`
}

// Session is one live capture on one interface. It moves from idle to
// running to stopped exactly once and is never restarted.
type Session struct {
	id      string
	iface   string
	filters []string
	opener  Opener
	p       *pipeline
	log     zerolog.Logger

	mu        sync.Mutex
	state     State
	startedAt time.Time
	stoppedAt time.Time
	err       error

	stopping atomic.Bool
	packets  atomic.Uint64
	events   atomic.Uint64
	done     chan struct{}
}

// NewSession prepares a session with its own detector instances and
// result store. Nothing is opened until Start.
func NewSession(iface string, filters []string, opts Options) (*Session, error) {
	if opts.Opener == nil {
		return nil, errors.New(errors.KindValidation, "live session requires an opener")
	}
	p, err := newPipeline(opts, metrics.ModeLive)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &Session{
		id:      id,
		iface:   iface,
		filters: append([]string(nil), filters...),
		opener:  opts.Opener,
		p:       p,
		log:     logging.With("capture").With().Str("session", id).Str("iface", iface).Logger(),
		done:    make(chan struct{}),
	}, nil
}

func (s *Session) ID() string { return s.id }

// Start opens the capture source and launches the producer goroutine.
// It is only valid on an idle session. If the source cannot be opened the
// session ends up stopped with the error recorded.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return errors.Errorf(errors.KindConflict, "session %s is %s", s.id, s.state)
	}

	filter := BuildFilter(s.filters)
	src, err := s.opener(s.iface, filter)
	if err != nil {
		if errors.GetKind(err) == errors.KindUnknown {
			err = errors.Wrapf(err, errors.KindUnavailable, "open %s", s.iface)
		}
		s.state = StateStopped
		s.stoppedAt = time.Now()
		s.err = err
		s.log.Error().Err(err).Str("filter", filter).Msg("capture failed to start")
		return err
	}

	s.state = StateRunning
	s.startedAt = time.Now()
	metrics.SessionsActive.Inc()
	s.log.Info().Str("filter", filter).Strs("detectors", s.p.dispatcher.Names()).Msg("capture started")

	go s.produce(ctx, src)
	return nil
}

// produce is the single writer for the session's detectors, flows and
// traffic stats.
func (s *Session) produce(ctx context.Context, src Source) {
	defer close(s.done)
	defer src.Close()

	link := src.LinkType()
	var fatal error
	for !s.stopping.Load() && ctx.Err() == nil {
		data, ci, err := src.ReadPacketData()
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			if !isEOF(err) {
				fatal = errors.Wrapf(err, errors.KindUnavailable, "read from %s", s.iface)
			}
			break
		}

		r := s.p.Handle(data, ci, link)
		s.events.Add(uint64(len(r.Events)))
		s.packets.Add(1)
	}

	s.mu.Lock()
	s.state = StateStopped
	s.stoppedAt = time.Now()
	s.err = fatal
	s.mu.Unlock()
	metrics.SessionsActive.Dec()

	ev := s.log.Info()
	if fatal != nil {
		ev = s.log.Error().Err(fatal)
	}
	ev.Uint64("packets", s.packets.Load()).Uint64("events", s.events.Load()).Msg("capture stopped")
}

// Stop asks the producer to exit and waits up to timeout for it. It
// reports whether the session is stopped on return. A session that never
// started is stopped immediately.
func (s *Session) Stop(timeout time.Duration) bool {
	s.mu.Lock()
	switch s.state {
	case StateStopped:
		s.mu.Unlock()
		return true
	case StateIdle:
		s.state = StateStopped
		s.stoppedAt = time.Now()
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	s.stopping.Store(true)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return true
	case <-timer.C:
		s.log.Warn().Dur("timeout", timeout).Msg("capture did not stop in time")
		return s.State() == StateStopped
	}
}

// Done is closed when the producer has exited. It never closes for a
// session that was not started.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the session's counters and lifecycle.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	st := SessionStats{
		ID:        s.id,
		Interface: s.iface,
		Filters:   append([]string(nil), s.filters...),
		Filter:    BuildFilter(s.filters),
		State:     s.state,
		Running:   s.state == StateRunning,
		StartedAt: s.startedAt,
		StoppedAt: s.stoppedAt,
	}
	if s.err != nil {
		st.Err = s.err.Error()
	}
	s.mu.Unlock()

	st.PacketCount = s.packets.Load()
	st.Events = s.events.Load()
	st.Buffered = s.p.results.Len()
	st.Evicted = s.p.results.Evicted()
	st.Flows = s.p.flows.Len()
	st.Detectors = s.p.dispatcher.Names()
	return st
}

// Err returns the capture-fatal error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Poll reads results from the session's store. See store.ResultStore.Poll.
func (s *Session) Poll(limit int, since *time.Time, clearItems bool) []models.Result {
	return s.p.results.Poll(limit, since, clearItems)
}

// TotalSeen is the number of results ever recorded, drained or not.
func (s *Session) TotalSeen() uint64 { return s.p.results.TotalSeen() }

// Flows returns a snapshot of the session's flows.
func (s *Session) Flows() []analysis.Flow { return s.p.flows.Snapshot() }

// TopFlows returns the n largest flows by bytes.
func (s *Session) TopFlows(n int) []analysis.Flow { return s.p.flows.Top(n) }

// Traffic returns the session's traffic statistics.
func (s *Session) Traffic() *analysis.TrafficStats { return s.p.traffic }

// Detectors returns the session's detector instances. Their accessors may
// only be read once the session has stopped.
func (s *Session) Detectors() ([]detect.Detector, error) {
	if st := s.State(); st == StateRunning {
		return nil, errors.Errorf(errors.KindConflict, "session %s is still running", s.id)
	}
	return s.p.dispatcher.Detectors(), nil
}

func (s *Session) String() string {
	return s.id + "@" + s.iface + " [" + strings.Join(s.filters, ",") + "]"
}
