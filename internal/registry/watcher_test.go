package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatchRefreshesOnDescriptorWrite(t *testing.T) {
	projectDir := filepath.Join(t.TempDir(), "agents")
	if err := os.MkdirAll(projectDir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", projectDir, err)
	}

	r := New(projectDir, "")
	if err := r.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	w, err := r.Watch()
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if w == nil {
		t.Fatal("expected a watcher over the project directory")
	}
	defer w.Close()

	writeDescriptor(t, projectDir, "scanner.yaml", "type: scanner\ndescription: scans inputs\n")
	waitFor(t, "new descriptor to resolve", func() bool {
		_, err := r.Resolve("scanner")
		return err == nil
	})

	if err := os.Remove(filepath.Join(projectDir, "scanner.yaml")); err != nil {
		t.Fatalf("remove descriptor: %v", err)
	}
	waitFor(t, "removed descriptor to drop", func() bool {
		_, err := r.Resolve("scanner")
		return errors.Is(err, ErrNotFound)
	})
}

func TestWatchWithoutTierDirectories(t *testing.T) {
	r := New("", "")

	w, err := r.Watch()
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if w != nil {
		w.Close()
		t.Error("expected no watcher when no tier directory exists")
	}
}
