package agent

import (
	"sync"
	"sync/atomic"
	"time"

	"sitepulse/internal/model"
)

type cycleInfo struct {
	Source model.Source `json:"source"`
	At     time.Time    `json:"at"`
}

type HealthStatus struct {
	streamEnabled   bool
	streamConnected atomic.Bool
	lastCycleAt     atomic.Int64

	mu     sync.RWMutex
	cycles map[string]cycleInfo
}

func NewHealthStatus(streamEnabled bool) *HealthStatus {
	return &HealthStatus{streamEnabled: streamEnabled, cycles: make(map[string]cycleInfo)}
}

func (h *HealthStatus) SetStreamConnected(ok bool) {
	h.streamConnected.Store(ok)
}

func (h *HealthStatus) MarkCycle(target string, src model.Source, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	h.lastCycleAt.Store(at.UnixNano())
	h.mu.Lock()
	h.cycles[target] = cycleInfo{Source: src, At: at.UTC()}
	h.mu.Unlock()
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"stream_enabled":   h.streamEnabled,
		"stream_connected": h.streamConnected.Load(),
	}
	if v := h.lastCycleAt.Load(); v > 0 {
		out["last_cycle_at"] = time.Unix(0, v).UTC()
	}
	h.mu.RLock()
	targets := make(map[string]cycleInfo, len(h.cycles))
	for id, c := range h.cycles {
		targets[id] = c
	}
	h.mu.RUnlock()
	out["targets"] = targets
	return out
}
