package vm

import (
	"github.com/tyuio302/idx-vps/internal/profile"
	"github.com/tyuio302/idx-vps/internal/supervisor"
)

// ProfileStore persists VM profiles.
type ProfileStore interface {
	Load(name string) (*profile.Profile, error)
	Save(p *profile.Profile) error
	Create(p *profile.Profile) error
	List() ([]string, error)
	Delete(name string) error
	CheckPortConflicts(p *profile.Profile, excludeName string) error
}

// ImageProvisioner materializes and removes a VM's disk artifacts.
type ImageProvisioner interface {
	Ensure(p *profile.Profile) error
	Resize(p *profile.Profile, allowShrink bool) error
	DeleteArtifacts(p *profile.Profile) error
}

// ProcessSupervisor controls the hypervisor process for a VM.
type ProcessSupervisor interface {
	IsRunning(p *profile.Profile) bool
	StateOf(p *profile.Profile) supervisor.State
	Start(p *profile.Profile, opts supervisor.StartOptions) error
	Stop(p *profile.Profile) (bool, error)
}
