// Package contextmgr filters a shared context blob into agent-specific
// views, tracks cross-agent shared context, and records interaction
// history for auditability.
package contextmgr

import (
	"encoding/json"
	"path"
	"sync"
	"time"
)

// Filter is the rule set applied to a context blob for one agent type:
// an allow-list of section names plus allow/exclude lists of file-name
// patterns inside the files section. Unmatched sections and files are
// dropped whole, never truncated.
type Filter struct {
	// AgentType names the agent type this filter serves.
	AgentType string
	// Sections lists the context section names the agent may see.
	// The files section is governed by the pattern lists instead.
	Sections []string
	// FilePatterns are globs matched against file names and base names.
	FilePatterns []string
	// ExcludePatterns drop files even when an allow pattern matched.
	ExcludePatterns []string
}

// Interaction is one audit record of a filtered delegation.
type Interaction struct {
	AgentID    string    `json:"agent_id"`
	AgentType  string    `json:"agent_type"`
	Timestamp  time.Time `json:"timestamp"`
	InputSize  int       `json:"input_size"`
	OutputSize int       `json:"output_size"`
}

// sharedEntry is one value published by an agent for later agents.
type sharedEntry struct {
	Value     any       `json:"value"`
	AgentID   string    `json:"agent_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Statistics aggregates interaction history per agent type.
type Statistics struct {
	RegisteredFilters  int                `json:"registered_filters"`
	TotalInteractions  int                `json:"total_interactions"`
	AgentsTracked      int                `json:"agents_tracked"`
	AvgReductionByType map[string]float64 `json:"average_reduction_by_type"`
}

// Manager owns the filter registry, the shared context store, and the
// interaction history. All mutation is serialized by one mutex.
type Manager struct {
	mu        sync.RWMutex
	filters   map[string]Filter
	shared    map[string]sharedEntry
	sharedRev uint64
	history   map[string][]Interaction
}

// NewManager creates a Manager preloaded with the built-in filters.
func NewManager() *Manager {
	m := &Manager{
		filters: make(map[string]Filter, len(builtinFilters)),
		shared:  make(map[string]sharedEntry),
		history: make(map[string][]Interaction),
	}
	for _, f := range builtinFilters {
		m.filters[f.AgentType] = f
	}
	return m
}

// RegisterCustomFilter adds or replaces the filter for an agent type at
// runtime. Built-in filters can be overridden but not removed.
func (m *Manager) RegisterCustomFilter(agentType string, f Filter) {
	f.AgentType = agentType

	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters[agentType] = f
}

// FilterCount returns the number of registered filters.
func (m *Manager) FilterCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.filters)
}

// FilterContextForAgent reduces full to the sections and files the
// agent type is allowed to see. An agent type without a registered
// filter receives the full context unchanged. Shared context published
// by earlier agents is always appended, never filtered.
func (m *Manager) FilterContextForAgent(agentType string, full map[string]any) map[string]any {
	m.mu.RLock()
	filter, ok := m.filters[agentType]
	shared := m.sharedSnapshotLocked()
	m.mu.RUnlock()

	var filtered map[string]any
	if !ok {
		filtered = make(map[string]any, len(full))
		for k, v := range full {
			filtered[k] = v
		}
	} else {
		filtered = applyFilter(filter, full)
	}

	if len(shared) > 0 {
		filtered["shared_context"] = shared
	}
	return filtered
}

// applyFilter builds the reduced view for one filter.
func applyFilter(f Filter, full map[string]any) map[string]any {
	filtered := make(map[string]any)

	for _, section := range f.Sections {
		if v, ok := full[section]; ok {
			filtered[section] = v
		}
	}

	files, ok := full["files"].(map[string]any)
	if !ok {
		// Also accept the common string-valued shape.
		if sf, sok := full["files"].(map[string]string); sok {
			files = make(map[string]any, len(sf))
			for k, v := range sf {
				files[k] = v
			}
			ok = true
		}
	}
	if ok {
		kept := make(map[string]any)
		for name, content := range files {
			if matchesAny(f.FilePatterns, name) && !matchesAny(f.ExcludePatterns, name) {
				kept[name] = content
			}
		}
		if len(kept) > 0 {
			filtered["files"] = kept
		}
	}

	return filtered
}

// matchesAny reports whether name matches any glob, tested against the
// full name and its base name.
func matchesAny(patterns []string, name string) bool {
	base := path.Base(name)
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	return false
}

// UpdateSharedContext records values written by an agent. Each update
// key is namespaced by the writing agent's ID and becomes part of every
// subsequent agent's view.
func (m *Manager) UpdateSharedContext(agentID string, updates map[string]any) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, value := range updates {
		m.shared[agentID+"_"+key] = sharedEntry{
			Value:     value,
			AgentID:   agentID,
			Timestamp: now,
		}
	}
	if len(updates) > 0 {
		m.sharedRev++
	}
}

// SharedRevision returns a counter that changes whenever the shared
// store does. Callers use it to invalidate cached filtered views.
func (m *Manager) SharedRevision() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sharedRev
}

// sharedSnapshotLocked copies the shared store for appending to a view.
// Caller must hold at least a read lock.
func (m *Manager) sharedSnapshotLocked() map[string]any {
	if len(m.shared) == 0 {
		return nil
	}
	snap := make(map[string]any, len(m.shared))
	for k, e := range m.shared {
		snap[k] = map[string]any{
			"value":     e.Value,
			"agent_id":  e.AgentID,
			"timestamp": e.Timestamp,
		}
	}
	return snap
}

// RecordInteraction appends one audit record for an agent.
func (m *Manager) RecordInteraction(agentID, agentType string, inputSize, outputSize int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history[agentID] = append(m.history[agentID], Interaction{
		AgentID:    agentID,
		AgentType:  agentType,
		Timestamp:  time.Now(),
		InputSize:  inputSize,
		OutputSize: outputSize,
	})
}

// AgentHistory returns the agent's most recent interactions, newest
// last, at most n records.
func (m *Manager) AgentHistory(agentID string, n int) []Interaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.history[agentID]
	if len(records) <= n {
		return append([]Interaction(nil), records...)
	}
	return append([]Interaction(nil), records[len(records)-n:]...)
}

// FilterStatistics aggregates recorded interactions: total counts and
// average size reduction per agent type.
func (m *Manager) FilterStatistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Statistics{
		RegisteredFilters:  len(m.filters),
		AgentsTracked:      len(m.history),
		AvgReductionByType: make(map[string]float64),
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, records := range m.history {
		for _, rec := range records {
			stats.TotalInteractions++
			if rec.InputSize > 0 {
				reduction := float64(rec.InputSize-rec.OutputSize) / float64(rec.InputSize) * 100
				sums[rec.AgentType] += reduction
				counts[rec.AgentType]++
			}
		}
	}
	for agentType, sum := range sums {
		stats.AvgReductionByType[agentType] = sum / float64(counts[agentType])
	}

	return stats
}

// SizeEstimate approximates the token cost of a context value: one
// token per four characters of its JSON encoding.
func SizeEstimate(v any) int {
	switch val := v.(type) {
	case string:
		return (len(val) + 3) / 4
	case []byte:
		return (len(val) + 3) / 4
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return 0
		}
		return (len(data) + 3) / 4
	}
}
