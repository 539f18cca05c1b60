package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

const (
	displaySlotMax      = 64
	displayReadyTimeout = 5 * time.Second
	displayReadyPoll    = 100 * time.Millisecond
)

// xorgDummyConfig drives a headless X server with a software framebuffer
// large enough for a single virtual screen.
const xorgDummyConfig = `Section "Device"
    Identifier  "dummy"
    Driver      "dummy"
    VideoRam    256000
EndSection

Section "Monitor"
    Identifier  "dummy-monitor"
    HorizSync   28.0-80.0
    VertRefresh 48.0-75.0
EndSection

Section "Screen"
    Identifier  "dummy-screen"
    Device      "dummy"
    Monitor     "dummy-monitor"
    DefaultDepth 24
    SubSection "Display"
        Depth 24
        Modes "1920x1080"
    EndSubSection
EndSection
`

// freeDisplaySlot picks the lowest display number whose X socket does not
// exist yet. Slot 0 is skipped so a host session on :0 is never shadowed.
func (s *Supervisor) freeDisplaySlot() (int, error) {
	for n := 1; n < displaySlotMax; n++ {
		sock := filepath.Join(s.socketDir, fmt.Sprintf("X%d", n))
		if _, err := os.Stat(sock); os.IsNotExist(err) {
			return n, nil
		}
	}
	return 0, fmt.Errorf("no free display slot below %d", displaySlotMax)
}

// startCompanion launches a display server on a free slot for a VM whose
// accelerated display needs one, and waits for its socket to appear.
// Returns the slot number on success.
func (s *Supervisor) startCompanion(name string) (int, error) {
	if !s.caps.DisplayServer {
		return 0, fmt.Errorf("%s is not installed", s.displayBinary)
	}

	slot, err := s.freeDisplaySlot()
	if err != nil {
		return 0, err
	}

	confPath := s.companionConfigPath(name)
	if err := os.WriteFile(confPath, []byte(xorgDummyConfig), 0o644); err != nil {
		return 0, fmt.Errorf("failed to write display config: %w", err)
	}

	logFile, err := os.OpenFile(s.companionLogPath(name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		os.Remove(confPath)
		return 0, fmt.Errorf("failed to open display log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(s.displayBinary, fmt.Sprintf(":%d", slot), "-config", confPath, "-noreset")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		os.Remove(confPath)
		return 0, fmt.Errorf("failed to start %s: %w", s.displayBinary, err)
	}

	if err := writePidFile(s.companionPidFilePath(name), cmd.Process.Pid); err != nil {
		cmd.Process.Kill()
		cmd.Process.Release()
		os.Remove(confPath)
		return 0, err
	}
	cmd.Process.Release()

	sock := filepath.Join(s.socketDir, fmt.Sprintf("X%d", slot))
	deadline := time.Now().Add(displayReadyTimeout)
	for {
		if _, err := os.Stat(sock); err == nil {
			return slot, nil
		}
		if time.Now().After(deadline) {
			s.stopCompanion(name)
			return 0, fmt.Errorf("display server on :%d did not become ready within %s", slot, displayReadyTimeout)
		}
		time.Sleep(displayReadyPoll)
	}
}

// stopCompanion terminates the display server for a VM, if one is
// recorded, and removes its transient files. Safe to call when no
// companion was started.
func (s *Supervisor) stopCompanion(name string) {
	pidPath := s.companionPidFilePath(name)
	if pid := readPidFile(pidPath); processAlive(pid) {
		syscall.Kill(pid, syscall.SIGTERM)
		deadline := time.Now().Add(2 * time.Second)
		for processAlive(pid) && time.Now().Before(deadline) {
			time.Sleep(displayReadyPoll)
		}
		if processAlive(pid) {
			syscall.Kill(pid, syscall.SIGKILL)
		}
	}
	os.Remove(pidPath)
	os.Remove(s.companionConfigPath(name))
}
