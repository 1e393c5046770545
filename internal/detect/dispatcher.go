package detect

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"netsentry/internal/errors"
	"netsentry/internal/logging"
	"netsentry/internal/metrics"
	"netsentry/internal/models"
)

// Dispatcher runs an ordered set of detectors over each packet.
//
// A detector that panics is skipped for that packet only. The remaining
// detectors still run and the failure is counted and logged, with logging
// rate limited so a detector that fails on every packet cannot flood the log.
type Dispatcher struct {
	detectors []Detector
	log       zerolog.Logger
	limiter   *rate.Limiter
}

func NewDispatcher(detectors ...Detector) *Dispatcher {
	return &Dispatcher{
		detectors: detectors,
		log:       logging.With("dispatcher"),
		limiter:   rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Dispatch calls every detector exactly once and returns the events they
// produced in detector order.
func (d *Dispatcher) Dispatch(pkt *models.PacketRecord) []models.DetectionEvent {
	start := time.Now()
	var events []models.DetectionEvent
	for _, det := range d.detectors {
		ev, err := d.run(det, pkt)
		if err != nil {
			metrics.DetectorFailures.WithLabelValues(det.Name()).Inc()
			if d.limiter.Allow() {
				d.log.Error().Err(err).Str("detector", det.Name()).Msg("detector failed, skipping packet")
			}
			continue
		}
		if ev == nil {
			continue
		}
		metrics.DetectionEvents.WithLabelValues(ev.Detector, string(ev.Category)).Inc()
		events = append(events, *ev)
	}
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	return events
}

func (d *Dispatcher) run(det Detector, pkt *models.PacketRecord) (ev *models.DetectionEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf(errors.KindInternal, "panic in %s: %v", det.Name(), r)
		}
	}()
	return det.Detect(pkt), nil
}

// Reset clears the state of every detector.
func (d *Dispatcher) Reset() {
	for _, det := range d.detectors {
		det.Reset()
	}
}

// Names returns the detector names in dispatch order.
func (d *Dispatcher) Names() []string {
	names := make([]string, len(d.detectors))
	for i, det := range d.detectors {
		names[i] = det.Name()
	}
	return names
}

// Detectors returns the configured detectors. Their accessors must only be
// read from the goroutine that dispatches, or after it has finished.
func (d *Dispatcher) Detectors() []Detector {
	return append([]Detector(nil), d.detectors...)
}
