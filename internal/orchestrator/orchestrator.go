package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"maestro/internal/bus"
	"maestro/internal/cache"
	"maestro/internal/contextmgr"
	"maestro/internal/exec"
	"maestro/internal/registry"
	"maestro/internal/state"
	"maestro/internal/subproc"
	"maestro/pkg/models"
)

// Delegation phases, logged as each delegation advances.
const (
	phaseIdle            = "idle"
	phaseAgentResolved   = "agent_resolved"
	phaseContextFiltered = "context_filtered"
	phaseDispatched      = "dispatched"
)

// Options wires an Orchestrator. Every collaborator is an explicit
// instance; there are no ambient lookups.
type Options struct {
	Registry *registry.Registry
	Context  *contextmgr.Manager
	Bus      *bus.Bus
	Subproc  *subproc.Manager

	// Cache memoizes filtered context views. Optional.
	Cache *cache.Cache
	// Runner launches subprocess-mode commands. Defaults to the
	// os/exec-backed runner.
	Runner exec.CommandRunner
	// Store persists delegation outcomes. Optional.
	Store *state.DB
	// Logger receives per-delegation debug lines. Defaults to a no-op.
	Logger *DebugLogger

	// WorkDir is the working directory for subprocess commands.
	WorkDir string
	// DefaultTimeout applies to requests that carry none.
	DefaultTimeout time.Duration
	// FallbackEnabled retries a failed local delegation once in
	// subprocess mode.
	FallbackEnabled bool
	// ForceSubprocess overrides per-request mode selection.
	ForceSubprocess bool
}

// Orchestrator delegates tasks to agents. Every Delegate call returns a
// well-formed response with one of the six return codes; failures never
// escape as panics or raw errors.
type Orchestrator struct {
	registry   *registry.Registry
	contextMgr *contextmgr.Manager
	cache      *cache.Cache
	store      *state.DB
	logger     *DebugLogger

	local      Executor
	subprocess Executor

	defaultTimeout  time.Duration
	fallbackEnabled bool
	forceSubprocess bool

	stats counters
}

// New wires an Orchestrator from explicit collaborator instances.
func New(opts Options) *Orchestrator {
	runner := opts.Runner
	if runner == nil {
		runner = exec.NewRunner()
	}
	logger := opts.Logger
	if logger == nil {
		logger = NopLogger()
	}
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Orchestrator{
		registry:        opts.Registry,
		contextMgr:      opts.Context,
		cache:           opts.Cache,
		store:           opts.Store,
		logger:          logger,
		local:           NewLocalExecutor(opts.Bus),
		subprocess:      NewSubprocessExecutor(opts.Subproc, runner, opts.WorkDir),
		defaultTimeout:  timeout,
		fallbackEnabled: opts.FallbackEnabled,
		forceSubprocess: opts.ForceSubprocess,
	}
}

// Delegate runs one task through resolution, filtering, and dispatch.
// The phases are strictly sequential within a call; concurrent calls
// are independent.
func (o *Orchestrator) Delegate(ctx context.Context, req *models.TaskRequest) *models.TaskResponse {
	start := time.Now()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = o.defaultTimeout
	}
	mode := req.Mode
	if o.forceSubprocess {
		mode = models.ModeSubprocess
	} else if !mode.Valid() {
		mode = models.ModeLocal
	}

	o.logger.Log("task %s: %s -> %s agent=%s mode=%s timeout=%s",
		req.ID, phaseIdle, phaseAgentResolved, req.AgentType, mode, timeout)

	resp := &models.TaskResponse{
		TaskID:    req.ID,
		AgentType: req.AgentType,
		Mode:      mode,
	}

	desc, err := o.registry.Resolve(req.AgentType)
	if err != nil {
		o.fail(resp, models.CodeAgentNotFound, "agent_not_found", err.Error())
		return o.finish(resp, start, false)
	}

	filtered, ferr := o.filterContext(req)
	if ferr != nil {
		o.fail(resp, models.CodeContextFilteringError, "context_filtering_error", ferr.Error())
		return o.finish(resp, start, false)
	}
	o.logger.Log("task %s: %s -> %s sections=%d", req.ID, phaseAgentResolved, phaseContextFiltered, len(filtered))

	executor := o.local
	if mode == models.ModeSubprocess {
		executor = o.subprocess
	}

	res := o.dispatch(ctx, executor, req, desc, filtered, timeout)
	o.logger.Log("task %s: %s code=%s", req.ID, phaseDispatched, res.Code)

	fellBack := false
	if res.Code != models.CodeSuccess && mode == models.ModeLocal &&
		o.fallbackEnabled && desc.SupportsSubprocess() {
		o.logger.Log("task %s: local attempt failed (%s), retrying in subprocess mode", req.ID, res.Code)

		original := res
		res = o.dispatch(ctx, o.subprocess, req, desc, filtered, timeout)
		fellBack = true

		resp.Mode = models.ModeSubprocess
		resp.Fallback = &models.FallbackInfo{
			FromMode:      models.ModeLocal,
			OriginalCode:  original.Code,
			OriginalError: original.Err,
		}
		o.logger.Log("task %s: fallback finished code=%s (original %s)", req.ID, res.Code, original.Code)
	}

	resp.Payload = res.Payload
	if res.Code == models.CodeSuccess {
		resp.Status = models.TaskStatusCompleted
		resp.Code = models.CodeSuccess
	} else {
		o.fail(resp, res.Code, res.ErrorKind, res.Err)
	}

	o.contextMgr.RecordInteraction(req.ID, req.AgentType,
		contextmgr.SizeEstimate(filtered), contextmgr.SizeEstimate(resp.Payload))

	return o.finish(resp, start, fellBack)
}

// Metrics returns a snapshot of delegation counters.
func (o *Orchestrator) Metrics() Metrics {
	return o.stats.snapshot()
}

// dispatch runs one executor attempt under its own deadline.
func (o *Orchestrator) dispatch(ctx context.Context, executor Executor, req *models.TaskRequest, desc *models.AgentDescriptor, filtered map[string]any, timeout time.Duration) *Result {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return executor.Execute(attemptCtx, req, desc, filtered)
}

// filterContext builds the agent's reduced view, memoized in the cache
// when one is wired. Filter panics (custom filters are arbitrary code)
// surface as errors, not crashes.
func (o *Orchestrator) filterContext(req *models.TaskRequest) (filtered map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			filtered = nil
			err = fmt.Errorf("filter context for %q: %v", req.AgentType, r)
		}
	}()

	key := o.filterCacheKey(req)
	if o.cache != nil && key != "" {
		if v, ok := o.cache.Get(key); ok {
			if m, ok := v.(map[string]any); ok {
				return m, nil
			}
		}
	}

	filtered = o.contextMgr.FilterContextForAgent(req.AgentType, req.Context)

	if o.cache != nil && key != "" {
		o.cache.Put(key, filtered, 0)
	}
	return filtered, nil
}

// filterCacheKey fingerprints the raw context per agent type. The
// shared-store revision is part of the key so published shared context
// invalidates stale views. Unencodable context disables caching.
func (o *Orchestrator) filterCacheKey(req *models.TaskRequest) string {
	raw, err := json.Marshal(req.Context)
	if err != nil {
		return ""
	}
	h := fnv.New64a()
	h.Write(raw)
	return fmt.Sprintf("ctx:%s:%d:%x", req.AgentType, o.contextMgr.SharedRevision(), h.Sum64())
}

// fail stamps a failure outcome onto the response.
func (o *Orchestrator) fail(resp *models.TaskResponse, code models.ReturnCode, kind, msg string) {
	if code == models.CodeTimeout {
		resp.Status = models.TaskStatusTimedOut
	} else {
		resp.Status = models.TaskStatusFailed
	}
	resp.Code = code
	resp.ErrorKind = kind
	resp.Error = msg
	if resp.Payload == nil {
		resp.Payload = map[string]any{}
	}
	if _, ok := resp.Payload["error"]; !ok {
		resp.Payload["error"] = msg
	}
}

// finish stamps timing, records metrics and persistence, and returns
// the response.
func (o *Orchestrator) finish(resp *models.TaskResponse, start time.Time, fellBack bool) *models.TaskResponse {
	resp.Duration = time.Since(start)
	o.stats.record(resp.Code, fellBack)

	if o.store != nil {
		err := o.store.RecordDelegation(state.Delegation{
			TaskID:     resp.TaskID,
			AgentType:  resp.AgentType,
			Mode:       resp.Mode,
			ReturnCode: resp.Code,
			Fallback:   fellBack,
			Duration:   resp.Duration,
			Error:      resp.Error,
			StartedAt:  start,
		})
		if err != nil {
			o.logger.Log("task %s: persist delegation: %v", resp.TaskID, err)
		}
	}

	o.logger.Log("task %s: done status=%s code=%s duration=%s",
		resp.TaskID, resp.Status, resp.Code, resp.Duration.Round(time.Millisecond))
	return resp
}
