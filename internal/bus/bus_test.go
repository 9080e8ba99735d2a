package bus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRequestResponse(t *testing.T) {
	b := New()

	err := b.RegisterHandler("echo", func(ctx context.Context, req *Request) (map[string]any, error) {
		return map[string]any{"echo": req.Data["message"]}, nil
	})
	if err != nil {
		t.Fatalf("RegisterHandler failed: %v", err)
	}

	resp, err := b.SendRequest(context.Background(), "echo", map[string]any{"message": "hello"}, time.Second)
	if err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	if !resp.Success() {
		t.Fatalf("expected success, got status %s err %s", resp.Status, resp.Err)
	}
	if resp.Data["echo"] != "hello" {
		t.Errorf("expected echoed payload, got %v", resp.Data)
	}
	if resp.RequestID == "" {
		t.Error("expected a correlated request id")
	}
}

func TestDuplicateRegistration(t *testing.T) {
	b := New()
	handler := func(ctx context.Context, req *Request) (map[string]any, error) { return nil, nil }

	if err := b.RegisterHandler("agent1", handler); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	err := b.RegisterHandler("agent1", handler)
	if !errors.Is(err, ErrDuplicateHandler) {
		t.Errorf("expected ErrDuplicateHandler, got %v", err)
	}

	b.UnregisterHandler("agent1")
	if err := b.RegisterHandler("agent1", handler); err != nil {
		t.Errorf("expected re-registration after unregister, got %v", err)
	}
}

func TestNoHandlerRegistered(t *testing.T) {
	b := New()

	_, err := b.SendRequest(context.Background(), "unknown", nil, time.Second)
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("expected ErrNoHandler, got %v", err)
	}
}

func TestHandlerError(t *testing.T) {
	b := New()
	_ = b.RegisterHandler("failing", func(ctx context.Context, req *Request) (map[string]any, error) {
		return nil, errors.New("handler error")
	})

	resp, err := b.SendRequest(context.Background(), "failing", nil, time.Second)
	if err != nil {
		t.Fatalf("SendRequest returned transport error: %v", err)
	}
	if resp.Status != StatusError {
		t.Errorf("expected error status, got %s", resp.Status)
	}
	if !strings.Contains(resp.Err, "handler error") {
		t.Errorf("expected handler error message, got %q", resp.Err)
	}
}

func TestHandlerPanicRecovered(t *testing.T) {
	b := New()
	_ = b.RegisterHandler("panicky", func(ctx context.Context, req *Request) (map[string]any, error) {
		panic("boom")
	})

	resp, err := b.SendRequest(context.Background(), "panicky", nil, time.Second)
	if err != nil {
		t.Fatalf("SendRequest returned transport error: %v", err)
	}
	if resp.Status != StatusError {
		t.Errorf("expected error status, got %s", resp.Status)
	}
	if !strings.Contains(resp.Err, "boom") {
		t.Errorf("expected panic message, got %q", resp.Err)
	}
}

func TestRequestTimeout(t *testing.T) {
	b := New()
	_ = b.RegisterHandler("slow", func(ctx context.Context, req *Request) (map[string]any, error) {
		select {
		case <-time.After(2 * time.Second):
			return map[string]any{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	start := time.Now()
	resp, err := b.SendRequest(context.Background(), "slow", nil, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	if resp.Status != StatusTimeout {
		t.Errorf("expected timeout status, got %s", resp.Status)
	}
	if !strings.Contains(resp.Err, "timed out") {
		t.Errorf("expected timeout message, got %q", resp.Err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("caller hung for %v waiting on a timed-out handler", elapsed)
	}
}

func TestConcurrentRequests(t *testing.T) {
	b := New()

	var mu sync.Mutex
	calls := 0
	_ = b.RegisterHandler("counter", func(ctx context.Context, req *Request) (map[string]any, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		return map[string]any{"count": n}, nil
	})

	var wg sync.WaitGroup
	results := make([]*Response, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := b.SendRequest(context.Background(), "counter", map[string]any{"n": i}, time.Second)
			if err != nil {
				t.Errorf("request %d failed: %v", i, err)
				return
			}
			results[i] = resp
		}(i)
	}
	wg.Wait()

	for i, resp := range results {
		if resp == nil || !resp.Success() {
			t.Errorf("request %d did not succeed", i)
		}
	}
	if calls != 5 {
		t.Errorf("expected 5 handler calls, got %d", calls)
	}
}

func TestLazyInitIdempotent(t *testing.T) {
	b := New()

	// First use from multiple goroutines must initialize exactly once
	// and never fail.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Registered()
		}()
	}
	wg.Wait()

	if err := b.RegisterHandler("late", func(ctx context.Context, req *Request) (map[string]any, error) {
		return nil, nil
	}); err != nil {
		t.Errorf("registration after concurrent lazy init failed: %v", err)
	}
}

func TestShutdown(t *testing.T) {
	b := New()
	_ = b.RegisterHandler("a", func(ctx context.Context, req *Request) (map[string]any, error) {
		return nil, nil
	})

	b.Shutdown()

	if !b.IsShutdown() {
		t.Error("expected IsShutdown true")
	}
	if got := len(b.Registered()); got != 0 {
		t.Errorf("expected empty routing table, got %d", got)
	}
	if _, err := b.SendRequest(context.Background(), "a", nil, time.Second); !errors.Is(err, ErrShutdown) {
		t.Errorf("expected ErrShutdown, got %v", err)
	}
	if err := b.RegisterHandler("b", nil); !errors.Is(err, ErrShutdown) {
		t.Errorf("expected ErrShutdown on register, got %v", err)
	}
}
