// Package exec provides an interface for launching external agent
// processes.
package exec

// Started is a handle to a launched process. Output is complete only
// after Wait returns.
type Started interface {
	// PID returns the operating-system process id.
	PID() int

	// Wait blocks until the process exits. A non-zero exit status is
	// returned as an error.
	Wait() error

	// Output returns the combined stdout/stderr captured so far.
	Output() []byte
}

// CommandRunner defines the interface for launching external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Start launches a command without waiting for it. The stdin bytes
	// are fed to the process if non-empty. Start is deliberately not
	// context-bound: an abandoned caller must not kill the process,
	// which stays subject to the subprocess manager's ceilings.
	Start(workDir string, stdin []byte, name string, args ...string) (Started, error)
}
