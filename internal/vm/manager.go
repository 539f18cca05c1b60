// Package vm ties the profile store, image provisioner and process
// supervisor together into the VM lifecycle operations the CLI exposes.
package vm

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tyuio302/idx-vps/internal/profile"
	"github.com/tyuio302/idx-vps/internal/supervisor"
)

const (
	bootDiskName = "boot.qcow2"
	seedName     = "seed.iso"
)

// Manager orchestrates VM lifecycle operations. Collaborators are
// injected so tests can substitute them.
type Manager struct {
	store      ProfileStore
	images     ImageProvisioner
	procs      ProcessSupervisor
	machineDir string
}

// NewManager creates a Manager. machineDir is the directory under which
// each VM gets a subdirectory for its disk artifacts.
func NewManager(store ProfileStore, images ImageProvisioner, procs ProcessSupervisor, machineDir string) *Manager {
	return &Manager{
		store:      store,
		images:     images,
		procs:      procs,
		machineDir: machineDir,
	}
}

// assignArtifactPaths pins the profile's disk artifact locations under
// the manager's machine directory.
func (m *Manager) assignArtifactPaths(p *profile.Profile) {
	dir := filepath.Join(m.machineDir, p.Name)
	p.BootDisk = filepath.Join(dir, bootDiskName)
	p.SeedVolume = filepath.Join(dir, seedName)
}

// Create validates a new profile, persists it and provisions its disk
// artifacts. On provisioning failure both the record and any partial
// artifacts are removed, so a failed create leaves no trace.
func (m *Manager) Create(p *profile.Profile) error {
	p.Normalize()
	if p.Perf == (profile.PerfOptions{}) {
		p.Perf = profile.DefaultPerfOptions()
	}
	if p.CreatedAt.IsZero() {
		// Second precision: the record format stores RFC3339 timestamps.
		p.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	m.assignArtifactPaths(p)

	if err := p.Validate(); err != nil {
		return err
	}
	// Name uniqueness first: a duplicate name usually reuses the same
	// ports, and the name conflict is the clearer report.
	if _, err := m.store.Load(p.Name); err == nil {
		return &profile.ConflictError{Resource: "profile", Detail: fmt.Sprintf("%s already exists", p.Name)}
	} else if !errors.Is(err, profile.ErrNotFound) {
		return err
	}
	if err := m.store.CheckPortConflicts(p, ""); err != nil {
		return err
	}
	if err := m.store.Create(p); err != nil {
		return err
	}

	if err := m.images.Ensure(p); err != nil {
		if cerr := m.images.DeleteArtifacts(p); cerr != nil {
			return fmt.Errorf("provisioning failed and cleanup left artifacts behind: %v (original error: %w)", cerr, err)
		}
		if derr := m.store.Delete(p.Name); derr != nil {
			return fmt.Errorf("provisioning failed and the profile record could not be removed: %v (original error: %w)", derr, err)
		}
		return err
	}
	return nil
}

// Start provisions any missing or out-of-date artifacts and launches
// the VM. With foreground set it blocks until the hypervisor exits.
func (m *Manager) Start(name string, foreground bool) error {
	p, err := m.store.Load(name)
	if err != nil {
		return err
	}
	// Re-ensure before every start so edits made while the VM was
	// stopped (credentials, disk size) are reflected in the artifacts.
	if err := m.images.Ensure(p); err != nil {
		return err
	}
	return m.procs.Start(p, supervisor.StartOptions{Wait: foreground})
}

// Stop terminates a running VM. Returns false when the VM was already
// stopped; that is not an error.
func (m *Manager) Stop(name string) (bool, error) {
	p, err := m.store.Load(name)
	if err != nil {
		return false, err
	}
	return m.procs.Stop(p)
}
