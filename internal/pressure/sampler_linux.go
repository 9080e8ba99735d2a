package pressure

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"maestro/pkg/models"
)

// SystemSampler reads system memory from /proc/meminfo and the process
// resident set from /proc/self/status. Cache and subprocess usage come
// from provider callbacks so the sampler owns no component state.
type SystemSampler struct {
	// CacheBytes reports the prompt cache's estimated memory, optional.
	CacheBytes func() uint64
	// SubprocessBytes reports aggregate subprocess RSS, optional.
	SubprocessBytes func() uint64
}

// Snapshot assembles one memory snapshot. The pressure level and sample
// time are filled in by the coordinator.
func (s *SystemSampler) Snapshot() (models.MemorySnapshot, error) {
	var snap models.MemorySnapshot

	total, available, err := readMeminfo("/proc/meminfo")
	if err != nil {
		return snap, err
	}
	snap.SystemTotalBytes = total
	snap.SystemAvailableBytes = available

	if rss, err := readSelfRSS(); err == nil {
		snap.ProcessRSSBytes = rss
	}

	if s.CacheBytes != nil {
		snap.CacheBytes = s.CacheBytes()
	}
	if s.SubprocessBytes != nil {
		snap.SubprocessBytes = s.SubprocessBytes()
	}

	return snap, nil
}

// readMeminfo parses MemTotal and MemAvailable, reported in kB.
func readMeminfo(path string) (total, available uint64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			total = parseMeminfoKB(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			available = parseMeminfoKB(line)
		}
		if total > 0 && available > 0 {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	if total == 0 {
		return 0, 0, fmt.Errorf("no MemTotal in %s", path)
	}
	return total, available, nil
}

func parseMeminfoKB(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	kb, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return kb * 1024
}

// readSelfRSS reads VmRSS from /proc/self/status.
func readSelfRSS() (uint64, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "VmRSS:") {
			return parseMeminfoKB(line), nil
		}
	}
	return 0, fmt.Errorf("no VmRSS in /proc/self/status")
}
