package models

import "time"

// PressureLevel classifies sampled memory usage severity.
type PressureLevel int

const (
	// PressureNone means memory usage is below the warning threshold.
	PressureNone PressureLevel = iota
	// PressureWarning means usage is between the warning and critical thresholds.
	PressureWarning
	// PressureCritical means usage is above the critical threshold.
	PressureCritical
)

// String returns the symbolic name of the pressure level.
func (p PressureLevel) String() string {
	switch p {
	case PressureNone:
		return "NONE"
	case PressureWarning:
		return "WARNING"
	case PressureCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MemorySnapshot captures one sampling of memory usage.
// Snapshots are recomputed on each coordinator tick and never persisted.
type MemorySnapshot struct {
	// SystemTotalBytes is the total system memory.
	SystemTotalBytes uint64 `json:"system_total_bytes"`
	// SystemAvailableBytes is the memory the system reports as available.
	SystemAvailableBytes uint64 `json:"system_available_bytes"`
	// ProcessRSSBytes is this process's resident set size.
	ProcessRSSBytes uint64 `json:"process_rss_bytes"`
	// SubprocessBytes is the aggregate RSS of tracked subprocesses.
	SubprocessBytes uint64 `json:"subprocess_bytes"`
	// CacheBytes is the estimated memory held by the prompt cache.
	CacheBytes uint64 `json:"cache_bytes"`
	// Level is the pressure level derived from the usage percentage.
	Level PressureLevel `json:"level"`
	// SampledAt is when the snapshot was taken.
	SampledAt time.Time `json:"sampled_at"`
}

// UsedPercent returns the percentage of system memory in use.
func (s *MemorySnapshot) UsedPercent() float64 {
	if s.SystemTotalBytes == 0 {
		return 0
	}
	used := s.SystemTotalBytes - s.SystemAvailableBytes
	return float64(used) / float64(s.SystemTotalBytes) * 100
}
