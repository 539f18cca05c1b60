package vm

import (
	"os"

	"github.com/tyuio302/idx-vps/internal/profile"
)

// UpdateOptions adjust how Update applies an edited profile.
type UpdateOptions struct {
	// AllowShrink confirms a disk size reduction, which can destroy
	// guest data.
	AllowShrink bool
}

// Update applies an edited profile. The edit is validated with the same
// rules as creation, checked for port conflicts against every other
// profile, and a disk size change is applied to the boot disk before
// the record is saved, so a failed resize leaves the record unchanged.
// Credential and hardware changes take effect on the next start.
func (m *Manager) Update(p *profile.Profile, opts UpdateOptions) error {
	p.Normalize()
	m.assignArtifactPaths(p)

	if err := p.Validate(); err != nil {
		return err
	}
	if err := m.store.CheckPortConflicts(p, p.Name); err != nil {
		return err
	}

	prev, err := m.store.Load(p.Name)
	if err != nil {
		return err
	}
	p.CreatedAt = prev.CreatedAt

	if p.DiskSizeMB() != prev.DiskSizeMB() {
		if m.procs.IsRunning(prev) {
			return &profile.ValidationError{Field: "disk-size", Reason: "stop the vm before resizing its disk"}
		}
		// Only resize an existing disk; a never-provisioned one is
		// sized by Ensure on the next start.
		if _, err := os.Stat(p.BootDisk); err == nil {
			if err := m.images.Resize(p, opts.AllowShrink); err != nil {
				return err
			}
		}
	}

	return m.store.Save(p)
}
