package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsentry/internal/capture"
	"netsentry/internal/models"
	"netsentry/internal/testpkt"
)

// idleSource replays frames 10ms apart and then idles.
type idleSource struct {
	mu     sync.Mutex
	frames [][]byte
	next   int
}

func (s *idleSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.frames) {
		time.Sleep(time.Millisecond)
		return nil, gopacket.CaptureInfo{}, capture.ErrTimeout
	}
	data := s.frames[s.next]
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(s.next) * 10 * time.Millisecond)
	s.next++
	return data, gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}, nil
}

func (s *idleSource) LinkType() layers.LinkType { return layers.LinkTypeEthernet }
func (s *idleSource) Close()                    {}

func startSession(t *testing.T, n int) *capture.Session {
	t.Helper()
	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = testpkt.TCP{
			SrcIP: "10.0.0.66", DstIP: "10.0.0.1",
			SrcPort: uint16(40000 + i), DstPort: 80, Flags: "S",
		}.Bytes()
	}
	src := &idleSource{frames: frames}

	opts := capture.DefaultOptions()
	opts.Detectors = []string{"syn_flood"}
	opts.Thresholds.SYNFlood = 2
	opts.Opener = func(string, string) (capture.Source, error) { return src, nil }

	s, err := capture.NewSession("eth0", []string{"tcp"}, opts)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Stop(2 * time.Second) })

	require.Eventually(t, func() bool { return s.Stats().PacketCount == uint64(n) }, 5*time.Second, time.Millisecond)
	return s
}

func TestTickDrainsEventsAndRefreshes(t *testing.T) {
	s := startSession(t, 5)

	var got []models.DetectionEvent
	m := NewAnalysisModel(s, func(id string, evs []models.DetectionEvent) {
		assert.Equal(t, s.ID(), id)
		got = append(got, evs...)
	})

	next, cmd := m.Update(TickMsg(time.Now()))
	require.NotNil(t, cmd)
	m = next.(AnalysisModel)

	require.Len(t, got, 3)
	assert.Equal(t, "syn_flood", got[0].Detector)
	assert.Len(t, m.events, 3)
	assert.Equal(t, uint64(5), m.stats.PacketCount)
	require.Len(t, m.topTalkers, 1)
	assert.Equal(t, "10.0.0.66", m.topTalkers[0].IP)
	assert.Len(t, m.flows.Rows(), 5)

	// results were drained, so a second tick delivers nothing new
	got = nil
	next, _ = m.Update(TickMsg(time.Now()))
	m = next.(AnalysisModel)
	assert.Empty(t, got)
	assert.Len(t, m.events, 3)

	view := m.View()
	assert.Contains(t, view, "eth0")
	assert.Contains(t, view, "syn_flood")
	assert.Contains(t, view, "HTTP")
}

func TestRecentEventsAreCapped(t *testing.T) {
	s := startSession(t, 20)
	m := NewAnalysisModel(s, nil)

	next, _ := m.Update(TickMsg(time.Now()))
	m = next.(AnalysisModel)
	assert.Len(t, m.events, recentEvents)
}

func TestTickDrainsLargeBacklog(t *testing.T) {
	s := startSession(t, 1200)
	require.Equal(t, 1200, s.Stats().Buffered)

	var got int
	m := NewAnalysisModel(s, func(_ string, evs []models.DetectionEvent) { got += len(evs) })
	next, _ := m.Update(TickMsg(time.Now()))
	m = next.(AnalysisModel)

	assert.Zero(t, s.Stats().Buffered, "one tick clears the store")
	assert.Equal(t, 1198, got)
	assert.Len(t, m.events, recentEvents)
}

func TestQuitKey(t *testing.T) {
	s := startSession(t, 1)
	m := NewAnalysisModel(s, nil)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestFormatBps(t *testing.T) {
	assert.Equal(t, "512.00 bps", formatBps(512))
	assert.Equal(t, "1.50 Kbps", formatBps(1500))
	assert.Equal(t, "2.00 Mbps", formatBps(2e6))
}
