package models

import "testing"

func TestPressureLevelString(t *testing.T) {
	tests := []struct {
		level PressureLevel
		want  string
	}{
		{PressureNone, "NONE"},
		{PressureWarning, "WARNING"},
		{PressureCritical, "CRITICAL"},
		{PressureLevel(9), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("PressureLevel(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestMemorySnapshotUsedPercent(t *testing.T) {
	snap := &MemorySnapshot{
		SystemTotalBytes:     1000,
		SystemAvailableBytes: 250,
	}
	if got := snap.UsedPercent(); got != 75 {
		t.Errorf("UsedPercent() = %v, want 75", got)
	}

	empty := &MemorySnapshot{}
	if got := empty.UsedPercent(); got != 0 {
		t.Errorf("UsedPercent() on zero total = %v, want 0", got)
	}
}
