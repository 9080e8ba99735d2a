// Package pressure polls memory usage, classifies severity, and invokes
// registered cleanup callbacks across independently owned components.
// The coordinator owns no component state; it only calls the callbacks
// they register (inversion of control).
package pressure

import (
	"fmt"
	"log"
	"sync"
	"time"

	"maestro/pkg/models"
)

// CleanupFunc is one component's reaction to a pressure level.
type CleanupFunc func(level models.PressureLevel)

// CallbackStats tracks one callback's invocation history.
type CallbackStats struct {
	Name        string    `json:"name"`
	Invocations int64     `json:"invocations"`
	Failures    int64     `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastRun     time.Time `json:"last_run,omitempty"`
}

// Diagnostics is a read-only snapshot of the coordinator.
type Diagnostics struct {
	Snapshot      models.MemorySnapshot `json:"snapshot"`
	Level         models.PressureLevel  `json:"level"`
	LevelName     string                `json:"level_name"`
	LastCleanup   time.Time             `json:"last_cleanup,omitempty"`
	CooldownUntil time.Time             `json:"cooldown_until,omitempty"`
	Callbacks     []CallbackStats       `json:"callbacks"`
}

// Sampler produces memory snapshots. The system implementation reads
// /proc; tests inject fakes.
type Sampler interface {
	Snapshot() (models.MemorySnapshot, error)
}

// Options configures a Coordinator.
type Options struct {
	// WarningPercent classifies WARNING at or above this used percentage.
	WarningPercent float64
	// CriticalPercent classifies CRITICAL at or above this used percentage.
	CriticalPercent float64
	// Cooldown suppresses further cleanup after any cleanup ran.
	Cooldown time.Duration
	// Sampler provides memory snapshots.
	Sampler Sampler
}

// namedCallback preserves registration order.
type namedCallback struct {
	name string
	fn   CleanupFunc
}

// Coordinator classifies sampled memory and drives cleanup callbacks.
type Coordinator struct {
	warning  float64
	critical float64
	cooldown time.Duration
	sampler  Sampler

	mu           sync.Mutex
	callbacks    []namedCallback
	stats        map[string]*CallbackStats
	lastLevel    models.PressureLevel
	cleanedLevel models.PressureLevel
	lastCleanup  time.Time
	latest       models.MemorySnapshot

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCoordinator creates a Coordinator. Thresholds are percentages of
// system memory in use.
func NewCoordinator(opts Options) *Coordinator {
	return &Coordinator{
		warning:  opts.WarningPercent,
		critical: opts.CriticalPercent,
		cooldown: opts.Cooldown,
		sampler:  opts.Sampler,
		stats:    make(map[string]*CallbackStats),
		stop:     make(chan struct{}),
	}
}

// RegisterCleanup adds a callback under a unique name. Callbacks run in
// registration order. Re-registering a name replaces the callback but
// keeps its position and stats.
func (c *Coordinator) RegisterCleanup(name string, fn CleanupFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, cb := range c.callbacks {
		if cb.name == name {
			c.callbacks[i].fn = fn
			return
		}
	}
	c.callbacks = append(c.callbacks, namedCallback{name: name, fn: fn})
	c.stats[name] = &CallbackStats{Name: name}
}

// Classify maps a used-memory percentage to a pressure level.
func (c *Coordinator) Classify(usedPercent float64) models.PressureLevel {
	switch {
	case usedPercent >= c.critical:
		return models.PressureCritical
	case usedPercent >= c.warning:
		return models.PressureWarning
	default:
		return models.PressureNone
	}
}

// Tick samples memory, classifies it, and when the level differs from
// the one last acted on invokes every registered callback with the
// level, in registration order. A cooldown window after any cleanup
// suppresses repeated invocation even if pressure persists or flaps;
// a change suppressed by the cooldown stays pending, so the first tick
// after the window acts on whatever level then holds. Callback
// failures are logged and never block the remaining callbacks. When
// pressure clears, callbacks are notified once with NONE so they can
// undo temporary measures; the clear notification ignores the cooldown.
func (c *Coordinator) Tick() (models.PressureLevel, error) {
	snap, err := c.sampler.Snapshot()
	if err != nil {
		return models.PressureNone, fmt.Errorf("sample memory: %w", err)
	}

	level := c.Classify(snap.UsedPercent())
	snap.Level = level
	snap.SampledAt = time.Now()

	c.mu.Lock()
	c.latest = snap
	c.lastLevel = level
	inCooldown := c.cooldown > 0 && time.Since(c.lastCleanup) < c.cooldown
	var toRun []namedCallback
	switch {
	case level == models.PressureNone:
		if c.cleanedLevel != models.PressureNone {
			toRun = append(toRun, c.callbacks...)
			c.cleanedLevel = models.PressureNone
		}
	case level != c.cleanedLevel && !inCooldown:
		toRun = append(toRun, c.callbacks...)
		c.cleanedLevel = level
		c.lastCleanup = time.Now()
	}
	c.mu.Unlock()

	if len(toRun) > 0 && level != models.PressureNone {
		log.Printf("pressure: level %s at %.1f%% used, running %d cleanups",
			level, snap.UsedPercent(), len(toRun))
	}

	for _, cb := range toRun {
		c.invoke(cb, level)
	}

	return level, nil
}

// invoke runs one callback, recovering panics so one failure cannot
// block the others.
func (c *Coordinator) invoke(cb namedCallback, level models.PressureLevel) {
	var failure string
	func() {
		defer func() {
			if r := recover(); r != nil {
				failure = fmt.Sprintf("panic: %v", r)
			}
		}()
		cb.fn(level)
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.stats[cb.name]
	if st == nil {
		st = &CallbackStats{Name: cb.name}
		c.stats[cb.name] = st
	}
	st.Invocations++
	st.LastRun = time.Now()
	if failure != "" {
		st.Failures++
		st.LastError = failure
		log.Printf("pressure: cleanup %q failed: %s", cb.name, failure)
	}
}

// Diagnostics returns the latest snapshot and per-callback stats.
func (c *Coordinator) Diagnostics() Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := Diagnostics{
		Snapshot:    c.latest,
		Level:       c.lastLevel,
		LevelName:   c.lastLevel.String(),
		LastCleanup: c.lastCleanup,
		Callbacks:   make([]CallbackStats, 0, len(c.callbacks)),
	}
	if !c.lastCleanup.IsZero() && c.cooldown > 0 {
		d.CooldownUntil = c.lastCleanup.Add(c.cooldown)
	}
	for _, cb := range c.callbacks {
		if st := c.stats[cb.name]; st != nil {
			d.Callbacks = append(d.Callbacks, *st)
		}
	}
	return d
}

// Run ticks on the interval until Stop.
func (c *Coordinator) Run(interval time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				if _, err := c.Tick(); err != nil {
					log.Printf("pressure: tick failed: %v", err)
				}
			}
		}
	}()
}

// Stop ends the background loop.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	c.wg.Wait()
}
