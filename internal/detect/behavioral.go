package detect

import (
	"fmt"
	"time"

	"netsentry/internal/models"
)

// TimingAnomaly fires when a packet follows the previous one by less than
// the minimum interval. Intervals use capture timestamps; a packet stamped
// before the latest one seen is out of order and never fires.
type TimingAnomaly struct {
	base
	min  time.Duration
	last time.Time
}

func NewTimingAnomaly(minInterval time.Duration) *TimingAnomaly {
	return &TimingAnomaly{
		base: base{NameTimingAnomaly, models.CategoryBehavioral, models.SeverityInfo},
		min:  minInterval,
	}
}

func (d *TimingAnomaly) Detect(pkt *models.PacketRecord) *models.DetectionEvent {
	prev := d.last
	if pkt.Timestamp.After(prev) {
		d.last = pkt.Timestamp
	}
	if prev.IsZero() {
		return nil
	}
	interval := pkt.Timestamp.Sub(prev)
	if interval < 0 || interval >= d.min {
		return nil
	}
	return d.event(pkt, pkt.SrcIP, fmt.Sprintf("inter-packet interval %s below %s", interval, d.min))
}

func (d *TimingAnomaly) Reset() { d.last = time.Time{} }

// ConnectionRate keeps a sliding window of packet timestamps and fires
// while the window holds more than the limit.
type ConnectionRate struct {
	base
	window time.Duration
	limit  int
	times  []time.Time
}

func NewConnectionRate(window time.Duration, limit int) *ConnectionRate {
	return &ConnectionRate{
		base:   base{NameConnectionRate, models.CategoryBehavioral, models.SeverityWarning},
		window: window,
		limit:  limit,
	}
}

func (d *ConnectionRate) Detect(pkt *models.PacketRecord) *models.DetectionEvent {
	now := pkt.Timestamp
	d.times = append(d.times, now)

	keep := d.times[:0]
	for _, t := range d.times {
		if now.Sub(t) < d.window {
			keep = append(keep, t)
		}
	}
	clear(d.times[len(keep):])
	d.times = keep

	if len(d.times) <= d.limit {
		return nil
	}
	return d.event(pkt, pkt.SrcIP, fmt.Sprintf("%d packets within %s (limit %d)", len(d.times), d.window, d.limit))
}

func (d *ConnectionRate) Reset() { d.times = nil }

// InWindow returns the number of timestamps currently inside the window.
func (d *ConnectionRate) InWindow() int { return len(d.times) }

// Bandwidth accumulates bytes and fires once, the first time the total
// passes the threshold. It stays latched until Reset.
type Bandwidth struct {
	base
	threshold int64
	total     int64
	latched   bool
}

func NewBandwidth(threshold int64) *Bandwidth {
	return &Bandwidth{
		base:      base{NameBandwidth, models.CategoryBehavioral, models.SeverityWarning},
		threshold: threshold,
	}
}

func (d *Bandwidth) Detect(pkt *models.PacketRecord) *models.DetectionEvent {
	d.total += int64(pkt.Length)
	if d.latched || d.total <= d.threshold {
		return nil
	}
	d.latched = true
	return d.event(pkt, pkt.SrcIP, fmt.Sprintf("%d bytes observed (threshold %d)", d.total, d.threshold))
}

func (d *Bandwidth) Reset() {
	d.total = 0
	d.latched = false
}

// Total returns the bytes accumulated since construction or Reset.
func (d *Bandwidth) Total() int64 { return d.total }

// Exceeded reports whether the latch has fired.
func (d *Bandwidth) Exceeded() bool { return d.latched }
