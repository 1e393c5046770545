package models

import "time"

// Category groups detectors by what they look for.
type Category string

const (
	CategoryAnomaly     Category = "anomaly"
	CategoryBehavioral  Category = "behavioral"
	CategoryFingerprint Category = "fingerprint"
	CategoryThreat      Category = "threat"
)

// Severity indicates how urgent a detection event is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// DetectionEvent is emitted by a detector for a qualifying packet.
type DetectionEvent struct {
	Detector  string    `json:"detector"`
	Category  Category  `json:"category"`
	Subject   string    `json:"subject"` // IP, MAC, query name, hash...
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail"`
}

// Result is what the pipeline records for one handled packet.
type Result struct {
	Seq      uint64           `json:"seq"`
	Received time.Time        `json:"received"`
	Packet   PacketSummary    `json:"packet"`
	Events   []DetectionEvent `json:"events,omitempty"`
}

// Events flattens the events carried by results, preserving order.
func Events(results []Result) []DetectionEvent {
	var out []DetectionEvent
	for _, r := range results {
		out = append(out, r.Events...)
	}
	return out
}
