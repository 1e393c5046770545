// Package alerting persists detection events outside the pipeline.
package alerting

import (
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"netsentry/internal/errors"
	"netsentry/internal/logging"
	"netsentry/internal/models"
)

// Record is one persisted alert line.
type Record struct {
	models.DetectionEvent
	Session  string    `json:"session,omitempty"`
	Recorded time.Time `json:"recorded"`
}

// FileSink appends alerts to a file as JSON lines. Append never returns an
// error; failures are logged and the alert is dropped.
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	log  zerolog.Logger
	now  func() time.Time
	errs int
}

// OpenFile opens (or creates) path for appending.
func OpenFile(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindUnavailable, "open alert file %s", path)
	}
	return &FileSink{
		f:   f,
		log: logging.With("alerting").With().Str("file", path).Logger(),
		now: time.Now,
	}, nil
}

// Append writes one alert for ev.
func (s *FileSink) Append(session string, ev models.DetectionEvent) {
	line, err := json.Marshal(Record{DetectionEvent: ev, Session: session, Recorded: s.now()})
	if err != nil {
		s.fail(err, ev)
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(line); err != nil {
		s.errs++
		s.log.Warn().Err(err).Str("detector", ev.Detector).Msg("dropping alert")
	}
}

// AppendAll writes one alert per event, in order.
func (s *FileSink) AppendAll(session string, events []models.DetectionEvent) {
	for _, ev := range events {
		s.Append(session, ev)
	}
}

func (s *FileSink) fail(err error, ev models.DetectionEvent) {
	s.mu.Lock()
	s.errs++
	s.mu.Unlock()
	s.log.Warn().Err(err).Str("detector", ev.Detector).Msg("dropping alert")
}

// Failures returns how many alerts were dropped.
func (s *FileSink) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
