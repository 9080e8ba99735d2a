package models

import "time"

// ReturnCode is the fixed outcome enum returned from every delegation.
// Zero is success by explicit design choice, not Unix convention.
type ReturnCode int

const (
	// CodeSuccess indicates the delegation completed successfully.
	CodeSuccess ReturnCode = 0
	// CodeGeneralFailure indicates the handler or subprocess failed.
	CodeGeneralFailure ReturnCode = 1
	// CodeTimeout indicates the delegation did not complete in time.
	CodeTimeout ReturnCode = 2
	// CodeContextFilteringError indicates context filtering failed.
	CodeContextFilteringError ReturnCode = 3
	// CodeAgentNotFound indicates the agent type could not be resolved.
	CodeAgentNotFound ReturnCode = 4
	// CodeMessageBusError indicates a routing fault on the message bus.
	CodeMessageBusError ReturnCode = 5
)

// Valid returns true if the code is one of the six defined values.
func (c ReturnCode) Valid() bool {
	return c >= CodeSuccess && c <= CodeMessageBusError
}

// String returns the symbolic name of the return code.
func (c ReturnCode) String() string {
	switch c {
	case CodeSuccess:
		return "SUCCESS"
	case CodeGeneralFailure:
		return "GENERAL_FAILURE"
	case CodeTimeout:
		return "TIMEOUT"
	case CodeContextFilteringError:
		return "CONTEXT_FILTERING_ERROR"
	case CodeAgentNotFound:
		return "AGENT_NOT_FOUND"
	case CodeMessageBusError:
		return "MESSAGE_BUS_ERROR"
	default:
		return "UNKNOWN"
	}
}

// ExecutionMode selects how a task is dispatched.
type ExecutionMode string

const (
	// ModeLocal dispatches to an in-process handler via the message bus.
	ModeLocal ExecutionMode = "local"
	// ModeSubprocess dispatches to an externally spawned process.
	ModeSubprocess ExecutionMode = "subprocess"
)

// Valid returns true if the mode is a known value.
func (m ExecutionMode) Valid() bool {
	return m == ModeLocal || m == ModeSubprocess
}

// TaskStatus represents the outcome state of a delegated task.
type TaskStatus string

const (
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusTimedOut indicates the task exceeded its timeout.
	TaskStatusTimedOut TaskStatus = "timed_out"
)

// TaskRequest describes one unit of work to delegate.
// A request is immutable once dispatched.
type TaskRequest struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// AgentType names the agent to delegate to.
	AgentType string `json:"agent_type"`
	// Description is the free-text task description.
	Description string `json:"description"`
	// Context maps named sections to content for the agent.
	Context map[string]any `json:"context,omitempty"`
	// Timeout bounds the wall-clock time for the delegation.
	// Zero means the orchestrator default.
	Timeout time.Duration `json:"timeout,omitempty"`
	// Priority is an optional scheduling hint (low, medium, high).
	Priority string `json:"priority,omitempty"`
	// Mode selects local or subprocess execution. Empty means the
	// orchestrator's configured default.
	Mode ExecutionMode `json:"mode,omitempty"`
}

// TaskResponse is the uniform result of a delegation.
// Exactly one response is produced per request, regardless of mode.
type TaskResponse struct {
	// TaskID is the ID of the originating request.
	TaskID string `json:"task_id"`
	// AgentType is the agent the task was delegated to.
	AgentType string `json:"agent_type"`
	// Status is the outcome state.
	Status TaskStatus `json:"status"`
	// Code is the uniform return code for the delegation.
	Code ReturnCode `json:"return_code"`
	// Payload holds the agent's result mapping.
	Payload map[string]any `json:"result,omitempty"`
	// ErrorKind names the failure class, empty on success.
	ErrorKind string `json:"error_kind,omitempty"`
	// Error is the captured error message, empty on success.
	Error string `json:"error,omitempty"`
	// Mode is the execution mode that produced the final outcome.
	Mode ExecutionMode `json:"mode"`
	// Fallback describes the original failure when a subprocess retry
	// produced the final outcome.
	Fallback *FallbackInfo `json:"fallback,omitempty"`
	// Duration is the wall-clock time the delegation took.
	Duration time.Duration `json:"duration"`
}

// Success returns true if the response carries a success code.
func (r *TaskResponse) Success() bool {
	return r.Code == CodeSuccess
}

// FallbackInfo preserves the original failure when a delegation was
// retried in subprocess mode.
type FallbackInfo struct {
	// FromMode is the mode that failed first.
	FromMode ExecutionMode `json:"from_mode"`
	// OriginalCode is the return code of the failed attempt.
	OriginalCode ReturnCode `json:"original_code"`
	// OriginalError is the error message of the failed attempt.
	OriginalError string `json:"original_error,omitempty"`
}
