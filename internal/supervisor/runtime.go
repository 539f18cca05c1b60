package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// DefaultRuntimeDir returns the directory for transient per-VM state
// (pidfiles, logs, companion config): $XDG_RUNTIME_DIR/idx-vps, falling
// back to a uid-scoped directory under /tmp.
func DefaultRuntimeDir() string {
	if base := os.Getenv("XDG_RUNTIME_DIR"); base != "" {
		return filepath.Join(base, "idx-vps")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("idx-vps-%d", os.Getuid()))
}

func (s *Supervisor) pidFilePath(name string) string {
	return filepath.Join(s.runtimeDir, name+".pid")
}

func (s *Supervisor) logFilePath(name string) string {
	return filepath.Join(s.runtimeDir, name+".log")
}

func (s *Supervisor) companionPidFilePath(name string) string {
	return filepath.Join(s.runtimeDir, name+"-display.pid")
}

func (s *Supervisor) companionConfigPath(name string) string {
	return filepath.Join(s.runtimeDir, name+"-xorg.conf")
}

func (s *Supervisor) companionLogPath(name string) string {
	return filepath.Join(s.runtimeDir, name+"-display.log")
}

func writePidFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// readPidFile returns the recorded pid, or 0 when the file is absent or
// unparsable (an unparsable pidfile is treated as lost, not fatal).
func readPidFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// processAlive reports whether a pid refers to a live process. Signal 0
// probes existence; EPERM still means the process exists.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

// cmdlineContains reports whether the process's argument list references
// the given string. The boot disk path appears inside a -drive property,
// so a substring match is used. Guards the pidfile against pid reuse.
func cmdlineContains(procDir string, pid int, needle string) bool {
	data, err := os.ReadFile(filepath.Join(procDir, strconv.Itoa(pid), "cmdline"))
	if err != nil {
		return false
	}
	return strings.Contains(string(data), needle)
}

// findProcessByArg scans the process table for a process whose argument
// list references needle. Recovery path for pidfiles lost across
// crashes; the pidfile is the primary lookup.
func findProcessByArg(procDir, needle string) (int, bool) {
	entries, err := os.ReadDir(procDir)
	if err != nil {
		return 0, false
	}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if cmdlineContains(procDir, pid, needle) {
			return pid, true
		}
	}
	return 0, false
}
