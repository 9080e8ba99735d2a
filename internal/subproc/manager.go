// Package subproc spawns, tracks, and enforces memory ceilings on
// external agent processes. It is the only component permitted to
// terminate a tracked process.
package subproc

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"maestro/pkg/models"
)

// Record tracks one spawned subprocess.
type Record struct {
	// PID is the operating-system process id.
	PID int
	// OwnerTaskID is the delegation that spawned the process.
	OwnerTaskID string
	// Command is the command line, for diagnostics.
	Command string
	// StartedAt is when the process was spawned.
	StartedAt time.Time
	// LastRSSBytes is the resident memory from the latest Sample.
	LastRSSBytes uint64

	proc *os.Process
}

// MemoryReader reports resident memory for a pid. The default reads
// /proc/<pid>/status; tests substitute fakes.
type MemoryReader interface {
	RSSBytes(pid int) (uint64, error)
}

// EnforceStats summarizes one EnforceLimits pass.
type EnforceStats struct {
	ProcessViolations   int `json:"process_violations"`
	AggregateViolations int `json:"aggregate_violations"`
	Terminated          int `json:"terminated"`
}

// Options configures a Manager.
type Options struct {
	// ProcessLimitBytes is the per-process resident memory ceiling.
	ProcessLimitBytes uint64
	// AggregateLimitBytes is the ceiling across all tracked processes.
	AggregateLimitBytes uint64
	// GracePeriod is the wait between SIGTERM and SIGKILL.
	GracePeriod time.Duration
	// Reader overrides the /proc-based memory reader.
	Reader MemoryReader
}

// Manager owns subprocess records. All termination goes through it.
type Manager struct {
	mu      sync.Mutex
	records map[int]*Record

	processLimit   uint64
	aggregateLimit uint64
	grace          time.Duration
	reader         MemoryReader

	terminations int64

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a Manager with the given ceilings.
func NewManager(opts Options) *Manager {
	reader := opts.Reader
	if reader == nil {
		reader = procReader{}
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Manager{
		records:        make(map[int]*Record),
		processLimit:   opts.ProcessLimitBytes,
		aggregateLimit: opts.AggregateLimitBytes,
		grace:          grace,
		reader:         reader,
		stop:           make(chan struct{}),
	}
}

// Spawn starts the command and tracks it. The returned record stays
// tracked until the process exits or is terminated; an abandoned caller
// does not untrack it.
func (m *Manager) Spawn(name string, args []string, ownerTaskID string) (*Record, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", name, err)
	}
	return m.Track(cmd, ownerTaskID), nil
}

// Track registers an already-started command. The caller keeps the
// right to Wait on the command; the manager keeps the right to signal it.
func (m *Manager) Track(cmd *exec.Cmd, ownerTaskID string) *Record {
	return m.track(cmd.Process, cmd.String(), ownerTaskID)
}

// TrackPID registers a running process that was started elsewhere.
func (m *Manager) TrackPID(pid int, command, ownerTaskID string) *Record {
	// FindProcess never fails on Unix.
	proc, _ := os.FindProcess(pid)
	return m.track(proc, command, ownerTaskID)
}

func (m *Manager) track(proc *os.Process, command, ownerTaskID string) *Record {
	rec := &Record{
		PID:         proc.Pid,
		OwnerTaskID: ownerTaskID,
		Command:     command,
		StartedAt:   time.Now(),
		proc:        proc,
	}

	m.mu.Lock()
	m.records[rec.PID] = rec
	m.mu.Unlock()

	return rec
}

// Untrack removes a record without touching the process.
func (m *Manager) Untrack(pid int) {
	m.mu.Lock()
	delete(m.records, pid)
	m.mu.Unlock()
}

// Count returns the number of tracked processes.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// AggregateBytes returns the sum of last-sampled resident memory.
func (m *Manager) AggregateBytes() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aggregateLocked()
}

func (m *Manager) aggregateLocked() uint64 {
	var total uint64
	for _, rec := range m.records {
		total += rec.LastRSSBytes
	}
	return total
}

// Records returns a snapshot of tracked records.
func (m *Manager) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Terminations returns how many processes the manager has terminated.
func (m *Manager) Terminations() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminations
}

// Sample refreshes resident memory for every tracked record and drops
// records whose process has exited.
func (m *Manager) Sample() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for pid, rec := range m.records {
		if !processAlive(pid) {
			delete(m.records, pid)
			continue
		}
		rss, err := m.reader.RSSBytes(pid)
		if err != nil {
			// Exited between the liveness check and the read.
			delete(m.records, pid)
			continue
		}
		rec.LastRSSBytes = rss
	}
}

// EnforceLimits applies the per-process ceiling, then the aggregate
// ceiling. Aggregate violations terminate the single highest consumer
// repeatedly until the total fits. Call Sample first for fresh numbers.
func (m *Manager) EnforceLimits() EnforceStats {
	var stats EnforceStats
	var victims []*Record

	m.mu.Lock()
	if m.processLimit > 0 {
		for _, rec := range m.records {
			if rec.LastRSSBytes > m.processLimit {
				stats.ProcessViolations++
				victims = append(victims, rec)
			}
		}
	}
	for _, v := range victims {
		delete(m.records, v.PID)
	}

	if m.aggregateLimit > 0 {
		for m.aggregateLocked() > m.aggregateLimit {
			top := m.highestConsumerLocked()
			if top == nil {
				break
			}
			stats.AggregateViolations++
			victims = append(victims, top)
			delete(m.records, top.PID)
		}
	}
	m.terminations += int64(len(victims))
	m.mu.Unlock()

	for _, v := range victims {
		m.terminate(v)
		stats.Terminated++
	}
	return stats
}

// highestConsumerLocked returns the record with the largest sampled RSS.
func (m *Manager) highestConsumerLocked() *Record {
	var top *Record
	for _, rec := range m.records {
		if top == nil || rec.LastRSSBytes > top.LastRSSBytes {
			top = rec
		}
	}
	if top != nil && top.LastRSSBytes == 0 {
		return nil
	}
	return top
}

// Terminate ends a tracked process by pid: grace signal first, forced
// kill if it does not exit within the bounded wait.
func (m *Manager) Terminate(pid int, reason string) bool {
	m.mu.Lock()
	rec, ok := m.records[pid]
	if ok {
		delete(m.records, pid)
		m.terminations++
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	log.Printf("subproc: terminating pid %d (task %s): %s", pid, rec.OwnerTaskID, reason)
	m.terminate(rec)
	return true
}

// terminate sends SIGTERM, waits the grace period, then SIGKILLs if the
// process is still alive.
func (m *Manager) terminate(rec *Record) {
	proc := rec.proc
	if proc == nil {
		return
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return // already gone
	}

	deadline := time.Now().Add(m.grace)
	for time.Now().Before(deadline) {
		if !processAlive(rec.PID) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	if processAlive(rec.PID) {
		_ = proc.Kill()
		log.Printf("subproc: force killed pid %d after %v grace", rec.PID, m.grace)
	}
}

// HandlePressure reacts to coordinated memory pressure: under CRITICAL
// the single highest consumer is terminated.
func (m *Manager) HandlePressure(level models.PressureLevel) {
	if level != models.PressureCritical {
		return
	}

	m.mu.Lock()
	top := m.highestConsumerLocked()
	if top != nil {
		delete(m.records, top.PID)
		m.terminations++
	}
	m.mu.Unlock()

	if top != nil {
		log.Printf("subproc: terminating pid %d under critical memory pressure", top.PID)
		m.terminate(top)
	}
}

// Run samples and enforces limits on the interval until Stop.
func (m *Manager) Run(interval time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.Sample()
				m.EnforceLimits()
			}
		}
	}()
}

// Stop ends the background loop and terminates all tracked processes.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.wg.Wait()

	m.mu.Lock()
	victims := make([]*Record, 0, len(m.records))
	for pid, rec := range m.records {
		victims = append(victims, rec)
		delete(m.records, pid)
	}
	m.mu.Unlock()

	for _, v := range victims {
		m.terminate(v)
	}
}

// processAlive reports whether the pid still exists.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
