package exec

import (
	"strings"
	"testing"
)

func TestStartFeedsStdinAndCapturesOutput(t *testing.T) {
	r := NewRunner()

	h, err := r.Start("", []byte("ping\n"), "cat")
	if err != nil {
		t.Fatalf("start cat: %v", err)
	}
	if h.PID() <= 0 {
		t.Errorf("expected positive pid, got %d", h.PID())
	}

	if err := h.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if strings.TrimSpace(string(h.Output())) != "ping" {
		t.Errorf("expected stdin echoed back, got %q", h.Output())
	}
}

func TestStartReportsExitFailure(t *testing.T) {
	r := NewRunner()

	h, err := r.Start("", nil, "sh", "-c", "echo oops >&2; exit 3")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.Wait(); err == nil {
		t.Fatal("expected non-zero exit to surface as error")
	}
	if !strings.Contains(string(h.Output()), "oops") {
		t.Errorf("expected stderr captured, got %q", h.Output())
	}
}
