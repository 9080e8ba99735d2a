// Package bus routes task requests to registered agent handlers and
// returns their responses. The bus holds no agent-specific logic; it is
// a routing table plus timeout handling.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of a routed message.
type Status string

const (
	// StatusPending means the message has not been dispatched yet.
	StatusPending Status = "pending"
	// StatusCompleted means the handler returned a response.
	StatusCompleted Status = "completed"
	// StatusError means the handler returned an error or panicked.
	StatusError Status = "error"
	// StatusTimeout means the handler did not finish within the timeout.
	StatusTimeout Status = "timeout"
)

// ErrNoHandler is returned when a request targets an agent type with no
// registered handler.
var ErrNoHandler = errors.New("no handler registered")

// ErrShutdown is returned from operations on a shut-down bus.
var ErrShutdown = errors.New("message bus is shut down")

// ErrDuplicateHandler is returned when an agent type already has a handler.
var ErrDuplicateHandler = errors.New("handler already registered")

// Request is one routed task request.
type Request struct {
	// ID is the unique message id.
	ID string
	// AgentType is the handler routing key.
	AgentType string
	// Data is the request payload.
	Data map[string]any
	// Timestamp is when the request entered the bus.
	Timestamp time.Time
}

// Response is the handler's reply, correlated by RequestID.
type Response struct {
	// RequestID correlates the response to its request.
	RequestID string
	// AgentType is the responding agent type.
	AgentType string
	// Data is the response payload.
	Data map[string]any
	// Status is the delivery outcome.
	Status Status
	// Err carries the failure message for error and timeout statuses.
	Err string
}

// Success returns true for a completed response.
func (r *Response) Success() bool {
	return r.Status == StatusCompleted
}

// Handler processes one request. Handlers are awaited; returning an
// error (or panicking) yields an error response, never a crash.
type Handler func(ctx context.Context, req *Request) (map[string]any, error)

// Bus is the routing table. Any public operation transparently performs
// setup exactly once, so callers never observe a half-initialized bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	shutdown bool

	initOnce sync.Once
}

// New creates a Bus. Initialization is lazy and idempotent; New itself
// performs no setup.
func New() *Bus {
	return &Bus{}
}

// ensureReady performs one-time setup. Safe to call from every public
// entry point, including concurrently on first use.
func (b *Bus) ensureReady() {
	b.initOnce.Do(func() {
		b.mu.Lock()
		if b.handlers == nil {
			b.handlers = make(map[string]Handler)
		}
		b.mu.Unlock()
	})
}

// RegisterHandler routes requests for agentType to handler.
// Registering a duplicate agent type is an error.
func (b *Bus) RegisterHandler(agentType string, handler Handler) error {
	b.ensureReady()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutdown {
		return ErrShutdown
	}
	if _, exists := b.handlers[agentType]; exists {
		return fmt.Errorf("register %q: %w", agentType, ErrDuplicateHandler)
	}
	b.handlers[agentType] = handler
	return nil
}

// UnregisterHandler removes the handler for agentType if present.
func (b *Bus) UnregisterHandler(agentType string) {
	b.ensureReady()

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, agentType)
}

// Registered returns the agent types with handlers, unordered.
func (b *Bus) Registered() []string {
	b.ensureReady()

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.handlers))
	for agentType := range b.handlers {
		out = append(out, agentType)
	}
	return out
}

// SendRequest routes data to the handler for agentType and awaits its
// response under the timeout. A missing handler returns ErrNoHandler;
// handler errors and timeouts come back as error/timeout responses.
func (b *Bus) SendRequest(ctx context.Context, agentType string, data map[string]any, timeout time.Duration) (*Response, error) {
	b.ensureReady()

	b.mu.RLock()
	handler, ok := b.handlers[agentType]
	down := b.shutdown
	b.mu.RUnlock()

	if down {
		return nil, ErrShutdown
	}
	if !ok {
		return nil, fmt.Errorf("send to %q: %w", agentType, ErrNoHandler)
	}

	req := &Request{
		ID:        uuid.New().String(),
		AgentType: agentType,
		Data:      data,
		Timestamp: time.Now(),
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		data map[string]any
		err  error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		respData, err := handler(ctx, req)
		done <- result{data: respData, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return &Response{
				RequestID: req.ID,
				AgentType: agentType,
				Status:    StatusError,
				Err:       res.err.Error(),
			}, nil
		}
		return &Response{
			RequestID: req.ID,
			AgentType: agentType,
			Data:      res.data,
			Status:    StatusCompleted,
		}, nil
	case <-ctx.Done():
		return &Response{
			RequestID: req.ID,
			AgentType: agentType,
			Status:    StatusTimeout,
			Err:       fmt.Sprintf("request to %q timed out: %v", agentType, ctx.Err()),
		}, nil
	}
}

// Shutdown clears the routing table and rejects further operations.
func (b *Bus) Shutdown() {
	b.ensureReady()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdown = true
	b.handlers = make(map[string]Handler)
}

// IsShutdown reports whether Shutdown has been called.
func (b *Bus) IsShutdown() bool {
	b.ensureReady()

	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.shutdown
}
