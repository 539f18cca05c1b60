// Package hostcap detects host virtualization features once at startup.
// The resulting Capabilities value is read-only and passed explicitly to
// the command builder and supervisor; nothing in this package caches
// across process lifetimes.
package hostcap

import (
	"bufio"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// DisplayServerBinary is the host display server started as the GPU
// companion process.
const DisplayServerBinary = "Xorg"

// Capabilities is the read-only host feature set.
type Capabilities struct {
	// KVM reports whether /dev/kvm is present and accessible.
	KVM bool
	// CPUCores is the host logical core count.
	CPUCores int
	// CPUFlags are the x86 feature flags from /proc/cpuinfo (vmx, svm, ...).
	CPUFlags []string
	// MemoryMB is the host's total memory.
	MemoryMB int
	// VirtIO3D reports whether a 3D-capable render node exists.
	VirtIO3D bool
	// DisplayServer reports whether the companion display server binary
	// is installed.
	DisplayServer bool
}

// HasCPUFlag reports whether a CPU feature flag was detected.
func (c Capabilities) HasCPUFlag(flag string) bool {
	for _, f := range c.CPUFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// Probe detects host capabilities. Side-effect free beyond reading
// device files, /proc and the executable search path.
func Probe() Capabilities {
	return ProbeRoot("/")
}

// ProbeRoot probes with an alternate filesystem root. Tests point it at a
// fixture tree.
func ProbeRoot(root string) Capabilities {
	caps := Capabilities{
		CPUCores: runtime.NumCPU(),
	}

	if fi, err := os.Stat(filepath.Join(root, "dev", "kvm")); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		caps.KVM = true
	}

	caps.CPUFlags = readCPUFlags(filepath.Join(root, "proc", "cpuinfo"))
	caps.MemoryMB = readMemTotalMB(filepath.Join(root, "proc", "meminfo"))
	caps.VirtIO3D = hasRenderNode(filepath.Join(root, "dev", "dri"))

	if _, err := exec.LookPath(DisplayServerBinary); err == nil {
		caps.DisplayServer = true
	}

	return caps
}

// readCPUFlags parses the first "flags" line of /proc/cpuinfo.
func readCPUFlags(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "flags") {
			continue
		}
		_, values, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		return strings.Fields(values)
	}
	return nil
}

// readMemTotalMB parses MemTotal from /proc/meminfo (reported in kB).
func readMemTotalMB(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0
		}
		return kb / 1024
	}
	return 0
}

// hasRenderNode reports whether a DRI render node (renderD*) exists. Its
// presence is what makes virgl 3D acceleration possible.
func hasRenderNode(driDir string) bool {
	entries, err := os.ReadDir(driDir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "renderD") {
			return true
		}
	}
	return false
}
