package dialog

import (
	"sync"
	"time"
)

// maxTurnHistory bounds the per-turn history kept in memory.
const maxTurnHistory = 100

// TurnMetrics are the latencies and outcome of one turn.
type TurnMetrics struct {
	TurnID     string    `json:"turn_id"`
	ListenMs   int64     `json:"listen_ms"`
	GenerateMs int64     `json:"generate_ms"`
	SpeakMs    int64     `json:"speak_ms"`
	Outcome    string    `json:"outcome"`
	BargedIn   bool      `json:"barged_in"`
	Timestamp  time.Time `json:"timestamp"`
}

// MetricsSummary is an aggregate view over recorded turns.
type MetricsSummary struct {
	TurnsTotal    int64         `json:"turns_total"`
	BargeIns      int64         `json:"barge_ins"`
	EmptyTurns    int64         `json:"empty_turns"`
	FailedTurns   int64         `json:"failed_turns"`
	AvgListenMs   int64         `json:"avg_listen_ms"`
	AvgGenerateMs int64         `json:"avg_generate_ms"`
	AvgSpeakMs    int64         `json:"avg_speak_ms"`
	Recent        []TurnMetrics `json:"recent"`
}

// MetricsCollector records per-turn metrics. Safe for concurrent use.
type MetricsCollector struct {
	mu    sync.Mutex
	turns []TurnMetrics

	turnsTotal  int64
	bargeIns    int64
	emptyTurns  int64
	failedTurns int64

	sumListenMs   int64
	sumGenerateMs int64
	sumSpeakMs    int64
	timedTurns    int64
}

// NewMetricsCollector creates a collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// Record adds one turn's metrics.
func (c *MetricsCollector) Record(m TurnMetrics) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.turnsTotal++
	if m.BargedIn {
		c.bargeIns++
	}
	switch m.Outcome {
	case "empty":
		c.emptyTurns++
	case "failed":
		c.failedTurns++
	}
	if m.ListenMs > 0 || m.GenerateMs > 0 || m.SpeakMs > 0 {
		c.sumListenMs += m.ListenMs
		c.sumGenerateMs += m.GenerateMs
		c.sumSpeakMs += m.SpeakMs
		c.timedTurns++
	}

	c.turns = append(c.turns, m)
	if len(c.turns) > maxTurnHistory {
		c.turns = c.turns[len(c.turns)-maxTurnHistory:]
	}
}

// Snapshot returns the aggregate view.
func (c *MetricsCollector) Snapshot() MetricsSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := MetricsSummary{
		TurnsTotal:  c.turnsTotal,
		BargeIns:    c.bargeIns,
		EmptyTurns:  c.emptyTurns,
		FailedTurns: c.failedTurns,
		Recent:      make([]TurnMetrics, len(c.turns)),
	}
	copy(s.Recent, c.turns)

	if c.timedTurns > 0 {
		s.AvgListenMs = c.sumListenMs / c.timedTurns
		s.AvgGenerateMs = c.sumGenerateMs / c.timedTurns
		s.AvgSpeakMs = c.sumSpeakMs / c.timedTurns
	}
	return s
}
