package exec

import (
	"bytes"
	"os/exec"
	"sync"
)

// ExecRunner implements CommandRunner using os/exec.
type ExecRunner struct{}

// NewRunner creates a new ExecRunner.
func NewRunner() *ExecRunner {
	return &ExecRunner{}
}

// Start launches a command and returns a handle for awaiting it.
func (r *ExecRunner) Start(workDir string, stdin []byte, name string, args ...string) (Started, error) {
	cmd := exec.Command(name, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}

	h := &startedCmd{cmd: cmd}
	if len(stdin) > 0 {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	cmd.Stdout = &h.out
	cmd.Stderr = &h.out

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return h, nil
}

// startedCmd wraps a started exec.Cmd with output capture.
type startedCmd struct {
	cmd *exec.Cmd
	out lockedBuffer
}

func (s *startedCmd) PID() int {
	return s.cmd.Process.Pid
}

func (s *startedCmd) Wait() error {
	return s.cmd.Wait()
}

func (s *startedCmd) Output() []byte {
	return s.out.Bytes()
}

// lockedBuffer guards writes from the process pipe goroutines against
// reads from the awaiting caller.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

// Verify ExecRunner implements CommandRunner at compile time.
var _ CommandRunner = (*ExecRunner)(nil)
