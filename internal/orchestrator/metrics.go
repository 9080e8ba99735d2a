package orchestrator

import (
	"sync"

	"maestro/pkg/models"
)

// Metrics is a point-in-time snapshot of delegation counters.
type Metrics struct {
	// Total is how many delegations have completed.
	Total int64 `json:"total"`
	// ByCode counts completed delegations per return-code name.
	ByCode map[string]int64 `json:"by_code"`
	// Fallbacks is how many delegations went through a subprocess retry.
	Fallbacks int64 `json:"fallbacks"`
}

// counters accumulates delegation outcomes.
type counters struct {
	mu        sync.Mutex
	total     int64
	byCode    [models.CodeMessageBusError + 1]int64
	fallbacks int64
}

func (c *counters) record(code models.ReturnCode, fallback bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	if code.Valid() {
		c.byCode[code]++
	}
	if fallback {
		c.fallbacks++
	}
}

func (c *counters) snapshot() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := Metrics{
		Total:     c.total,
		ByCode:    make(map[string]int64, len(c.byCode)),
		Fallbacks: c.fallbacks,
	}
	for code, n := range c.byCode {
		if n > 0 {
			m.ByCode[models.ReturnCode(code).String()] = n
		}
	}
	return m
}
