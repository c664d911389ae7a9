package feed

import (
	"math"
	"sync"
)

// MetricsConfig sets the starting point and optional floor of the simulated audience.
type MetricsConfig struct {
	InitialViewers int
	InitialHeat    float64
	// Clamp keeps the viewer count at or above Floor.
	Clamp bool
	Floor int
}

// DefaultMetricsConfig starts a room that already looks busy.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{InitialViewers: 1205, InitialHeat: 3.5, Clamp: true}
}

// MetricsSnapshot is the display value of the simulated metrics. Heat is in units of 10k.
type MetricsSnapshot struct {
	Viewers int     `json:"viewers"`
	Heat    float64 `json:"heat"`
}

// Metrics tracks the simulated viewer count and heat score.
type Metrics struct {
	mu      sync.Mutex
	cfg     MetricsConfig
	viewers int
	heat    float64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	m := &Metrics{cfg: cfg, heat: round2(cfg.InitialHeat)}
	m.viewers = m.clamp(cfg.InitialViewers)
	return m
}

// Nudge moves the viewer count by delta and heat by heat.
func (m *Metrics) Nudge(delta int, heat float64) MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewers = m.clamp(m.viewers + delta)
	m.heat = round2(m.heat + heat)
	return MetricsSnapshot{Viewers: m.viewers, Heat: m.heat}
}

// AddHeat increases the heat score only.
func (m *Metrics) AddHeat(heat float64) MetricsSnapshot {
	return m.Nudge(0, heat)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{Viewers: m.viewers, Heat: m.heat}
}

func (m *Metrics) clamp(v int) int {
	if m.cfg.Clamp && v < m.cfg.Floor {
		return m.cfg.Floor
	}
	return v
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
