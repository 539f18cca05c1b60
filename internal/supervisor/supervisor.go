package supervisor

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/tyuio302/idx-vps/internal/hostcap"
	"github.com/tyuio302/idx-vps/internal/profile"
	"github.com/tyuio302/idx-vps/internal/qemu"
)

// State is the observable lifecycle state of a VM process.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
)

const (
	stopGracePeriod = 5 * time.Second
	stopPoll        = 200 * time.Millisecond
	startupSettle   = 300 * time.Millisecond
)

// ProcessError wraps a failure to control a VM's hypervisor process.
type ProcessError struct {
	Name string
	Err  error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("vm %q: %s", e.Name, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// StartOptions control how Start launches the hypervisor.
type StartOptions struct {
	// Wait blocks until the hypervisor exits instead of detaching.
	Wait bool
}

// Supervisor launches, finds, and terminates hypervisor processes. It
// holds no in-memory state: liveness is always derived from pidfiles
// and the process table, so any invocation can manage VMs started by a
// previous one.
type Supervisor struct {
	runtimeDir    string
	caps          hostcap.Capabilities
	grace         time.Duration
	binary        string
	displayBinary string
	socketDir     string
	procDir       string
}

// New returns a Supervisor using the default runtime directory.
func New(caps hostcap.Capabilities) (*Supervisor, error) {
	return NewWithRuntimeDir(caps, DefaultRuntimeDir())
}

// NewWithRuntimeDir returns a Supervisor rooted at an explicit runtime
// directory, creating it if needed.
func NewWithRuntimeDir(caps hostcap.Capabilities, dir string) (*Supervisor, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}
	return &Supervisor{
		runtimeDir:    dir,
		caps:          caps,
		grace:         stopGracePeriod,
		displayBinary: hostcap.DisplayServerBinary,
		socketDir:     "/tmp/.X11-unix",
		procDir:       "/proc",
	}, nil
}

// lookup resolves the hypervisor pid for a profile. The pidfile is
// consulted first and verified against the process's argument list;
// when it is missing or stale the process table is scanned for a
// process referencing the VM's boot disk, and the pidfile is rewritten
// from the scan result.
func (s *Supervisor) lookup(p *profile.Profile) int {
	pidPath := s.pidFilePath(p.Name)
	if pid := readPidFile(pidPath); pid != 0 {
		if processAlive(pid) && cmdlineContains(s.procDir, pid, p.BootDisk) {
			return pid
		}
		os.Remove(pidPath)
	}
	if pid, ok := findProcessByArg(s.procDir, p.BootDisk); ok {
		if err := writePidFile(pidPath, pid); err != nil {
			log.Printf("Warning: failed to restore pidfile for %s: %v", p.Name, err)
		}
		return pid
	}
	return 0
}

// IsRunning reports whether the VM's hypervisor process is alive.
func (s *Supervisor) IsRunning(p *profile.Profile) bool {
	return s.lookup(p) != 0
}

// StateOf returns the derived lifecycle state of a VM.
func (s *Supervisor) StateOf(p *profile.Profile) State {
	if s.IsRunning(p) {
		return StateRunning
	}
	return StateStopped
}

// Start launches the hypervisor for a profile. The disk images must
// already be provisioned. When the profile's display configuration
// needs a host display server and none is available in the
// environment, a companion server is started on a free slot; if that
// fails the VM is started without GPU acceleration instead.
func (s *Supervisor) Start(p *profile.Profile, opts StartOptions) error {
	if s.IsRunning(p) {
		return &ProcessError{Name: p.Name, Err: fmt.Errorf("already running")}
	}
	for _, path := range []string{p.BootDisk, p.SeedVolume} {
		if _, err := os.Stat(path); err != nil {
			return &ProcessError{Name: p.Name, Err: fmt.Errorf("disk image missing: %s", path)}
		}
	}

	inv := qemu.Build(p, s.caps)
	env := os.Environ()

	if inv.NeedsDisplayServer && os.Getenv("DISPLAY") == "" {
		slot, err := s.startCompanion(p.Name)
		if err != nil {
			log.Printf("Warning: display server unavailable for %s, starting without GPU: %v", p.Name, err)
			degraded := *p
			degraded.Perf.GPU = false
			inv = qemu.Build(&degraded, s.caps)
		} else {
			env = append(env, fmt.Sprintf("DISPLAY=:%d", slot))
		}
	}

	for _, w := range inv.Warnings {
		log.Printf("Warning: %s", w)
	}

	if err := s.launch(p, inv, env, opts); err != nil {
		s.stopCompanion(p.Name)
		return err
	}
	return nil
}

func (s *Supervisor) launch(p *profile.Profile, inv *qemu.Invocation, env []string, opts StartOptions) error {
	binary := inv.Binary
	if s.binary != "" {
		binary = s.binary
	}

	logFile, err := os.OpenFile(s.logFilePath(p.Name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return &ProcessError{Name: p.Name, Err: fmt.Errorf("failed to open log file: %w", err)}
	}
	defer logFile.Close()

	cmd := exec.Command(binary, inv.Argv()...)
	cmd.Env = env
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return &ProcessError{Name: p.Name, Err: fmt.Errorf("failed to start hypervisor: %w", err)}
	}
	pid := cmd.Process.Pid
	if err := writePidFile(s.pidFilePath(p.Name), pid); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return &ProcessError{Name: p.Name, Err: fmt.Errorf("failed to write pidfile: %w", err)}
	}

	if opts.Wait {
		err := cmd.Wait()
		os.Remove(s.pidFilePath(p.Name))
		s.stopCompanion(p.Name)
		if err != nil {
			return &ProcessError{Name: p.Name, Err: fmt.Errorf("hypervisor exited: %w", err)}
		}
		return nil
	}

	// Reap the hypervisor on exit and tear down its companion and
	// pidfile, unless a newer instance has taken the pidfile over.
	go func() {
		cmd.Wait()
		if readPidFile(s.pidFilePath(p.Name)) != pid {
			return
		}
		os.Remove(s.pidFilePath(p.Name))
		s.stopCompanion(p.Name)
	}()

	// Catch immediate startup failures (bad arguments, unusable images)
	// before reporting success.
	time.Sleep(startupSettle)
	if !processAlive(pid) {
		os.Remove(s.pidFilePath(p.Name))
		s.stopCompanion(p.Name)
		return &ProcessError{Name: p.Name, Err: fmt.Errorf("hypervisor exited during startup, see %s", s.logFilePath(p.Name))}
	}
	return nil
}

// Stop terminates a VM's hypervisor process: SIGTERM first, then
// SIGKILL after the grace period. Returns false without error when the
// VM was not running; stopping a stopped VM is a no-op.
func (s *Supervisor) Stop(p *profile.Profile) (bool, error) {
	pid := s.lookup(p)
	if pid == 0 {
		s.stopCompanion(p.Name)
		return false, nil
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return false, &ProcessError{Name: p.Name, Err: fmt.Errorf("failed to signal pid %d: %w", pid, err)}
	}

	deadline := time.NewTimer(s.grace)
	defer deadline.Stop()
	tick := time.NewTicker(stopPoll)
	defer tick.Stop()

	for processAlive(pid) {
		select {
		case <-deadline.C:
			log.Printf("Warning: %s did not stop within %s, killing pid %d", p.Name, s.grace, pid)
			syscall.Kill(pid, syscall.SIGKILL)
			for processAlive(pid) {
				time.Sleep(stopPoll)
			}
		case <-tick.C:
		}
	}

	os.Remove(s.pidFilePath(p.Name))
	s.stopCompanion(p.Name)
	return true, nil
}
