package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"netsentry/internal/models"
)

func at(ts time.Time, length int) *models.PacketRecord {
	return &models.PacketRecord{Timestamp: ts, Length: length, SrcIP: "10.0.0.1"}
}

func TestTimingAnomaly(t *testing.T) {
	d := NewTimingAnomaly(time.Millisecond)

	assert.Nil(t, d.Detect(at(t0, 60)), "first packet never fires")
	assert.Nil(t, d.Detect(at(t0.Add(5*time.Millisecond), 60)))
	assert.NotNil(t, d.Detect(at(t0.Add(5*time.Millisecond+100*time.Microsecond), 60)))
	assert.Nil(t, d.Detect(at(t0.Add(10*time.Millisecond), 60)))

	d.Reset()
	assert.Nil(t, d.Detect(at(t0.Add(10*time.Millisecond), 60)), "first packet after reset")
}

func TestTimingAnomalyIgnoresReorderedPackets(t *testing.T) {
	d := NewTimingAnomaly(time.Millisecond)

	assert.Nil(t, d.Detect(at(t0.Add(10*time.Millisecond), 60)))
	assert.Nil(t, d.Detect(at(t0, 60)), "earlier timestamp is out of order")
	// the latest timestamp is still the reference
	assert.Nil(t, d.Detect(at(t0.Add(12*time.Millisecond), 60)))
	assert.NotNil(t, d.Detect(at(t0.Add(12*time.Millisecond+500*time.Microsecond), 60)))
}

func TestConnectionRateWithinWindow(t *testing.T) {
	d := NewConnectionRate(10*time.Second, 5)

	var fired int
	for i := range 6 {
		if d.Detect(at(t0.Add(time.Duration(i)*time.Second), 60)) != nil {
			fired++
		}
	}
	assert.Equal(t, 1, fired, "sixth packet in window exceeds limit")
	assert.Equal(t, 6, d.InWindow())
}

func TestConnectionRateSpreadBeyondWindow(t *testing.T) {
	d := NewConnectionRate(10*time.Second, 5)

	for i := range 6 {
		ev := d.Detect(at(t0.Add(time.Duration(i)*3*time.Second), 60))
		assert.Nil(t, ev, "packet %d", i)
	}
	// pruning runs on every packet, so only the last few remain
	assert.LessOrEqual(t, d.InWindow(), 4)
}

func TestBandwidthLatchesOnce(t *testing.T) {
	const threshold = 1000
	d := NewBandwidth(threshold)

	var fired int
	for _, n := range []int{400, 400, 200} {
		if d.Detect(at(t0, n)) != nil {
			fired++
		}
	}
	assert.Equal(t, 0, fired, "exactly threshold bytes does not fire")

	assert.NotNil(t, d.Detect(at(t0, 1)), "threshold+1 fires")
	for range 10 {
		assert.Nil(t, d.Detect(at(t0, 500)))
	}
	assert.True(t, d.Exceeded())
	assert.Equal(t, int64(threshold+1+5000), d.Total(), "bytes keep accumulating after the latch")

	d.Reset()
	assert.False(t, d.Exceeded())
	assert.Equal(t, int64(0), d.Total())
	assert.NotNil(t, d.Detect(at(t0, threshold+1)), "reset re-arms")
}
