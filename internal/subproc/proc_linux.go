package subproc

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// procReader reads resident memory from /proc/<pid>/status.
type procReader struct{}

// RSSBytes parses the VmRSS line, which /proc reports in kB.
func (procReader) RSSBytes(pid int) (uint64, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse VmRSS for pid %d: %w", pid, err)
		}
		return kb * 1024, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("no VmRSS line for pid %d", pid)
}
