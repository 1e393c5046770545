package alerting

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsentry/internal/models"
)

func TestFileSinkAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	sink, err := OpenFile(path)
	require.NoError(t, err)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return ts }

	sink.AppendAll("s1", []models.DetectionEvent{
		{Detector: "syn_flood", Category: models.CategoryAnomaly, Subject: "10.0.0.1", Severity: models.SeverityCritical, Timestamp: ts},
		{Detector: "tor", Category: models.CategoryThreat, Subject: "10.0.0.2", Severity: models.SeverityWarning, Timestamp: ts},
	})
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		got = append(got, r)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "syn_flood", got[0].Detector)
	assert.Equal(t, "s1", got[0].Session)
	assert.Equal(t, models.SeverityWarning, got[1].Severity)
	assert.True(t, ts.Equal(got[1].Recorded))
	assert.Zero(t, sink.Failures())
}

func TestFileSinkAppendAfterCloseIsDropped(t *testing.T) {
	sink, err := OpenFile(filepath.Join(t.TempDir(), "alerts.jsonl"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	sink.Append("s1", models.DetectionEvent{Detector: "tor"})
	assert.Equal(t, 1, sink.Failures())
}

func TestOpenFileFailure(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing-dir", "alerts.jsonl"))
	assert.Error(t, err)
}
