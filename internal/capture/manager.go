package capture

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"netsentry/internal/errors"
	"netsentry/internal/logging"
	"netsentry/internal/models"
)

// JobStatus is a point-in-time view of an offline job.
type JobStatus struct {
	ID    string `json:"id"`
	File  string `json:"file"`
	State State  `json:"state"`
	Err   string `json:"error,omitempty"`
}

// Manager owns the live sessions and offline jobs of one process, keyed by
// id. Every session and job gets its own detectors and result store.
type Manager struct {
	opts        Options
	stopTimeout time.Duration
	log         zerolog.Logger

	// ctx scopes producers and jobs; cancel tears everything down.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session
	jobs     map[string]*OfflineJob
	wg       sync.WaitGroup
}

// NewManager creates a manager. opts are copied into every session and job
// it creates; stopTimeout bounds Stop and Delete.
func NewManager(opts Options, stopTimeout time.Duration) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:        opts,
		stopTimeout: stopTimeout,
		log:         logging.With("manager"),
		ctx:         ctx,
		cancel:      cancel,
		sessions:    make(map[string]*Session),
		jobs:        make(map[string]*OfflineJob),
	}
}

// Start creates and starts a live session. A session that fails to start
// is not registered.
func (m *Manager) Start(iface string, filters []string) (string, error) {
	s, err := NewSession(iface, filters, m.opts)
	if err != nil {
		return "", err
	}
	if err := s.Start(m.ctx); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s.ID(), nil
}

// Session returns the live session with the given id.
func (m *Manager) Session(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.Errorf(errors.KindNotFound, "session %s not found", id)
	}
	return s, nil
}

// Stop stops a session and reports whether it reached the stopped state
// within the manager's stop timeout.
func (m *Manager) Stop(id string) (bool, error) {
	s, err := m.Session(id)
	if err != nil {
		return false, err
	}
	return s.Stop(m.stopTimeout), nil
}

func (m *Manager) Stats(id string) (SessionStats, error) {
	s, err := m.Session(id)
	if err != nil {
		return SessionStats{}, err
	}
	return s.Stats(), nil
}

func (m *Manager) Poll(id string, limit int, since *time.Time, clearItems bool) ([]models.Result, error) {
	s, err := m.Session(id)
	if err != nil {
		return nil, err
	}
	return s.Poll(limit, since, clearItems), nil
}

// Delete stops a session if needed and forgets it. A session that does
// not stop in time is kept and a timeout error returned.
func (m *Manager) Delete(id string) error {
	s, err := m.Session(id)
	if err != nil {
		return err
	}
	if !s.Stop(m.stopTimeout) {
		return errors.Errorf(errors.KindTimeout, "session %s did not stop within %s", id, m.stopTimeout)
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// List returns stats for every session, oldest first.
func (m *Manager) List() []SessionStats {
	m.mu.RLock()
	out := make([]SessionStats, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Stats())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Submit registers an offline job for path and runs it on its own
// goroutine. Jobs run independently of each other.
func (m *Manager) Submit(path string) (string, error) {
	job, err := NewOfflineJob(path, m.opts)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.jobs[job.ID()] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// errors are kept on the job and logged by it
		_, _ = job.Run(m.ctx)
	}()
	return job.ID(), nil
}

// Job returns the offline job with the given id.
func (m *Manager) Job(id string) (*OfflineJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, errors.Errorf(errors.KindNotFound, "job %s not found", id)
	}
	return j, nil
}

// Jobs lists every submitted job.
func (m *Manager) Jobs() []JobStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]JobStatus, 0, len(m.jobs))
	for _, j := range m.jobs {
		st := JobStatus{ID: j.ID(), File: j.Path(), State: j.State()}
		if st.State == StateStopped {
			if _, err := j.Summary(); err != nil {
				st.Err = err.Error()
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown stops every session and waits for running jobs, each bounded
// by the stop timeout.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		if !s.Stop(m.stopTimeout) {
			m.log.Warn().Str("session", s.ID()).Msg("session still running at shutdown")
		}
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(m.stopTimeout):
		m.log.Warn().Msg("offline jobs still running at shutdown")
	}
}
