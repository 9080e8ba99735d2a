package pressure

import (
	"sync"
	"testing"
	"time"

	"maestro/pkg/models"
)

// fakeSampler returns a settable used percentage over a fixed total.
type fakeSampler struct {
	mu          sync.Mutex
	usedPercent float64
}

func (f *fakeSampler) set(p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usedPercent = p
}

func (f *fakeSampler) Snapshot() (models.MemorySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	const total = 1000
	return models.MemorySnapshot{
		SystemTotalBytes:     total,
		SystemAvailableBytes: uint64(total - f.usedPercent*10),
	}, nil
}

func newTestCoordinator(sampler Sampler, cooldown time.Duration) *Coordinator {
	return NewCoordinator(Options{
		WarningPercent:  70,
		CriticalPercent: 85,
		Cooldown:        cooldown,
		Sampler:         sampler,
	})
}

func TestClassify(t *testing.T) {
	c := newTestCoordinator(&fakeSampler{}, 0)

	tests := []struct {
		used float64
		want models.PressureLevel
	}{
		{0, models.PressureNone},
		{69.9, models.PressureNone},
		{70, models.PressureWarning},
		{84.9, models.PressureWarning},
		{85, models.PressureCritical},
		{86, models.PressureCritical},
		{100, models.PressureCritical},
	}

	for _, tt := range tests {
		if got := c.Classify(tt.used); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.used, got, tt.want)
		}
	}
}

func TestTickInvokesCallbacksInOrder(t *testing.T) {
	sampler := &fakeSampler{}
	c := newTestCoordinator(sampler, time.Minute)

	var mu sync.Mutex
	var order []string
	var levels []models.PressureLevel
	for _, name := range []string{"cache", "subproc", "diagnostics"} {
		name := name
		c.RegisterCleanup(name, func(level models.PressureLevel) {
			mu.Lock()
			order = append(order, name)
			levels = append(levels, level)
			mu.Unlock()
		})
	}

	sampler.set(86)
	level, err := c.Tick()
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if level != models.PressureCritical {
		t.Fatalf("expected CRITICAL, got %s", level)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"cache", "subproc", "diagnostics"}
	if len(order) != len(want) {
		t.Fatalf("expected %d callbacks, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("callback %d = %s, want %s (registration order)", i, order[i], want[i])
		}
		if levels[i] != models.PressureCritical {
			t.Errorf("callback %d got level %s, want CRITICAL", i, levels[i])
		}
	}
}

func TestCooldownSuppressesRepeatCleanup(t *testing.T) {
	sampler := &fakeSampler{}
	c := newTestCoordinator(sampler, time.Minute)

	invocations := 0
	c.RegisterCleanup("cache", func(models.PressureLevel) { invocations++ })

	sampler.set(86)
	if _, err := c.Tick(); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if invocations != 1 {
		t.Fatalf("expected 1 invocation, got %d", invocations)
	}

	// Still critical inside the cooldown window: no further cleanup.
	if _, err := c.Tick(); err != nil {
		t.Fatalf("second Tick failed: %v", err)
	}
	if invocations != 1 {
		t.Errorf("expected cooldown to suppress cleanup, got %d invocations", invocations)
	}

	// Flapping back to warning inside the cooldown is also suppressed.
	sampler.set(75)
	_, _ = c.Tick()
	if invocations != 1 {
		t.Errorf("expected cooldown to suppress flap cleanup, got %d invocations", invocations)
	}
}

func TestEscalationDuringCooldownDefersCleanup(t *testing.T) {
	sampler := &fakeSampler{}
	c := newTestCoordinator(sampler, time.Minute)

	var got []models.PressureLevel
	c.RegisterCleanup("cache", func(level models.PressureLevel) { got = append(got, level) })

	sampler.set(75)
	if _, err := c.Tick(); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(got) != 1 || got[0] != models.PressureWarning {
		t.Fatalf("expected WARNING cleanup, got %v", got)
	}

	// Escalation inside the cooldown window is suppressed, not dropped.
	sampler.set(90)
	_, _ = c.Tick()
	if len(got) != 1 {
		t.Fatalf("expected escalation suppressed during cooldown, got %v", got)
	}

	// First tick after the window acts on the still-critical level.
	c.mu.Lock()
	c.lastCleanup = time.Now().Add(-2 * time.Minute)
	c.mu.Unlock()
	if _, err := c.Tick(); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if len(got) != 2 || got[1] != models.PressureCritical {
		t.Fatalf("expected CRITICAL cleanup after cooldown expiry, got %v", got)
	}

	// An already-handled level does not repeat once the new window ends.
	c.mu.Lock()
	c.lastCleanup = time.Now().Add(-2 * time.Minute)
	c.mu.Unlock()
	_, _ = c.Tick()
	if len(got) != 2 {
		t.Errorf("expected no repeat cleanup for a handled level, got %v", got)
	}
}

func TestPressureClearNotifiesOnce(t *testing.T) {
	sampler := &fakeSampler{}
	c := newTestCoordinator(sampler, time.Minute)

	var got []models.PressureLevel
	c.RegisterCleanup("cache", func(level models.PressureLevel) { got = append(got, level) })

	sampler.set(90)
	_, _ = c.Tick()
	sampler.set(10)
	_, _ = c.Tick()
	_, _ = c.Tick()

	if len(got) != 2 {
		t.Fatalf("expected 2 notifications (CRITICAL then NONE), got %d", len(got))
	}
	if got[0] != models.PressureCritical || got[1] != models.PressureNone {
		t.Errorf("expected [CRITICAL NONE], got %v", got)
	}
}

func TestCallbackPanicDoesNotBlockOthers(t *testing.T) {
	sampler := &fakeSampler{}
	c := newTestCoordinator(sampler, 0)

	ran := false
	c.RegisterCleanup("bad", func(models.PressureLevel) { panic("cleanup failure") })
	c.RegisterCleanup("good", func(models.PressureLevel) { ran = true })

	sampler.set(75)
	if _, err := c.Tick(); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if !ran {
		t.Error("expected the second callback to run despite the first panicking")
	}

	diag := c.Diagnostics()
	var bad *CallbackStats
	for i := range diag.Callbacks {
		if diag.Callbacks[i].Name == "bad" {
			bad = &diag.Callbacks[i]
		}
	}
	if bad == nil || bad.Failures != 1 {
		t.Errorf("expected failure recorded for bad callback, got %+v", bad)
	}
}

func TestDiagnostics(t *testing.T) {
	sampler := &fakeSampler{}
	c := newTestCoordinator(sampler, time.Minute)
	c.RegisterCleanup("cache", func(models.PressureLevel) {})

	sampler.set(86)
	_, _ = c.Tick()

	diag := c.Diagnostics()
	if diag.Level != models.PressureCritical {
		t.Errorf("expected CRITICAL level, got %s", diag.Level)
	}
	if diag.LevelName != "CRITICAL" {
		t.Errorf("expected level name CRITICAL, got %s", diag.LevelName)
	}
	if diag.Snapshot.SystemTotalBytes != 1000 {
		t.Errorf("expected snapshot carried, got %+v", diag.Snapshot)
	}
	if diag.CooldownUntil.IsZero() {
		t.Error("expected cooldown deadline after a cleanup")
	}
	if len(diag.Callbacks) != 1 || diag.Callbacks[0].Invocations != 1 {
		t.Errorf("expected one invoked callback, got %+v", diag.Callbacks)
	}
}

func TestReregisterKeepsOrder(t *testing.T) {
	sampler := &fakeSampler{}
	c := newTestCoordinator(sampler, 0)

	var order []string
	c.RegisterCleanup("first", func(models.PressureLevel) { order = append(order, "first-old") })
	c.RegisterCleanup("second", func(models.PressureLevel) { order = append(order, "second") })
	c.RegisterCleanup("first", func(models.PressureLevel) { order = append(order, "first-new") })

	sampler.set(75)
	_, _ = c.Tick()

	if len(order) != 2 || order[0] != "first-new" || order[1] != "second" {
		t.Errorf("expected replacement in place, got %v", order)
	}
}
