package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"maestro/internal/bus"
	"maestro/internal/exec"
	"maestro/internal/subproc"
	"maestro/pkg/models"
)

// Result is what an executor produced for one dispatch attempt. Every
// failure mode is already mapped to a return code; executors never
// surface raw errors.
type Result struct {
	Payload   map[string]any
	Code      models.ReturnCode
	ErrorKind string
	Err       string
}

// Executor dispatches one task in a single execution mode.
type Executor interface {
	Mode() models.ExecutionMode
	Execute(ctx context.Context, req *models.TaskRequest, desc *models.AgentDescriptor, filtered map[string]any) *Result
}

// LocalExecutor dispatches through the in-process message bus.
type LocalExecutor struct {
	bus *bus.Bus
}

// NewLocalExecutor creates an executor backed by b.
func NewLocalExecutor(b *bus.Bus) *LocalExecutor {
	return &LocalExecutor{bus: b}
}

// Mode returns the local execution mode.
func (e *LocalExecutor) Mode() models.ExecutionMode {
	return models.ModeLocal
}

// Execute routes the task to the registered handler for its agent type.
// The caller owns the deadline on ctx.
func (e *LocalExecutor) Execute(ctx context.Context, req *models.TaskRequest, desc *models.AgentDescriptor, filtered map[string]any) *Result {
	data := map[string]any{
		"task_id":     req.ID,
		"description": req.Description,
		"context":     filtered,
	}
	if req.Priority != "" {
		data["priority"] = req.Priority
	}

	resp, err := e.bus.SendRequest(ctx, req.AgentType, data, 0)
	if err != nil {
		return &Result{
			Code:      models.CodeMessageBusError,
			ErrorKind: "message_bus_error",
			Err:       err.Error(),
		}
	}

	switch resp.Status {
	case bus.StatusCompleted:
		return &Result{Payload: resp.Data, Code: models.CodeSuccess}
	case bus.StatusTimeout:
		return &Result{
			Code:      models.CodeTimeout,
			ErrorKind: "timeout",
			Err:       resp.Err,
		}
	default:
		return &Result{
			Code:      models.CodeGeneralFailure,
			ErrorKind: "handler_error",
			Err:       resp.Err,
		}
	}
}

// SubprocessExecutor dispatches by spawning the agent's declared
// command. The task document goes to the process on stdin as JSON; the
// payload is read from stdout.
type SubprocessExecutor struct {
	mgr     *subproc.Manager
	runner  exec.CommandRunner
	workDir string
}

// NewSubprocessExecutor creates an executor backed by the subprocess
// manager and runner. workDir may be empty.
func NewSubprocessExecutor(mgr *subproc.Manager, runner exec.CommandRunner, workDir string) *SubprocessExecutor {
	return &SubprocessExecutor{mgr: mgr, runner: runner, workDir: workDir}
}

// Mode returns the subprocess execution mode.
func (e *SubprocessExecutor) Mode() models.ExecutionMode {
	return models.ModeSubprocess
}

// Execute spawns the agent command, tracks it with the subprocess
// manager, and awaits it under ctx. A ctx deadline abandons the wait
// only: the process stays tracked and subject to the manager's memory
// ceilings.
func (e *SubprocessExecutor) Execute(ctx context.Context, req *models.TaskRequest, desc *models.AgentDescriptor, filtered map[string]any) *Result {
	if !desc.SupportsSubprocess() {
		return &Result{
			Code:      models.CodeGeneralFailure,
			ErrorKind: "no_subprocess_command",
			Err:       fmt.Sprintf("agent %q declares no subprocess command", req.AgentType),
		}
	}

	doc := map[string]any{
		"task_id":     req.ID,
		"agent_type":  req.AgentType,
		"description": req.Description,
		"context":     filtered,
	}
	stdin, err := json.Marshal(doc)
	if err != nil {
		return &Result{
			Code:      models.CodeGeneralFailure,
			ErrorKind: "encode_request",
			Err:       fmt.Sprintf("encode task document: %v", err),
		}
	}

	name, args := desc.Command[0], desc.Command[1:]
	h, err := e.runner.Start(e.workDir, stdin, name, args...)
	if err != nil {
		return &Result{
			Code:      models.CodeGeneralFailure,
			ErrorKind: "spawn_failed",
			Err:       fmt.Sprintf("spawn %s: %v", name, err),
		}
	}
	e.mgr.TrackPID(h.PID(), strings.Join(desc.Command, " "), req.ID)

	done := make(chan error, 1)
	go func() { done <- h.Wait() }()

	select {
	case werr := <-done:
		e.mgr.Untrack(h.PID())
		if werr != nil {
			return &Result{
				Code:      models.CodeGeneralFailure,
				ErrorKind: "subprocess_failed",
				Err:       fmt.Sprintf("%v: %s", werr, tail(h.Output(), 512)),
			}
		}
		return &Result{Payload: parsePayload(h.Output()), Code: models.CodeSuccess}
	case <-ctx.Done():
		pid := h.PID()
		go func() {
			<-done
			e.mgr.Untrack(pid)
		}()
		return &Result{
			Code:      models.CodeTimeout,
			ErrorKind: "timeout",
			Err:       fmt.Sprintf("subprocess pid %d did not finish: %v", pid, ctx.Err()),
		}
	}
}

// parsePayload decodes the subprocess stdout as a JSON object, falling
// back to wrapping raw output.
func parsePayload(out []byte) map[string]any {
	trimmed := strings.TrimSpace(string(out))
	var payload map[string]any
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
		return payload
	}
	return map[string]any{"output": trimmed}
}

// tail returns at most n trailing bytes of b as a string.
func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
