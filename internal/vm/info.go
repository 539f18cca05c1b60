package vm

import (
	"log"
	"time"

	"github.com/tyuio302/idx-vps/internal/profile"
	"github.com/tyuio302/idx-vps/internal/supervisor"
)

// Info is the summary view of one VM for listings.
type Info struct {
	Name     string    `json:"name" yaml:"name"`
	State    string    `json:"state" yaml:"state"`
	OS       string    `json:"os" yaml:"os"`
	CPUs     int       `json:"cpus" yaml:"cpus"`
	MemoryMB int       `json:"memory_mb" yaml:"memory_mb"`
	DiskSize string    `json:"disk_size" yaml:"disk_size"`
	SSHPort  int       `json:"ssh_port" yaml:"ssh_port"`
	Created  time.Time `json:"created" yaml:"created"`
}

func (m *Manager) info(p *profile.Profile) Info {
	return Info{
		Name:     p.Name,
		State:    string(m.procs.StateOf(p)),
		OS:       p.OSFamily + " " + p.OSVariant,
		CPUs:     p.CPUs,
		MemoryMB: p.MemoryMB,
		DiskSize: p.DiskSize,
		SSHPort:  p.SSHPort,
		Created:  p.CreatedAt,
	}
}

// List returns a summary row for every stored profile, in name order.
// Unreadable records are skipped with a warning so one corrupt file
// does not hide the rest.
func (m *Manager) List() ([]Info, error) {
	names, err := m.store.List()
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(names))
	for _, name := range names {
		p, err := m.store.Load(name)
		if err != nil {
			log.Printf("Warning: skipping %s: %v", name, err)
			continue
		}
		infos = append(infos, m.info(p))
	}
	return infos, nil
}

// Get returns a VM's full profile and its current state.
func (m *Manager) Get(name string) (*profile.Profile, supervisor.State, error) {
	p, err := m.store.Load(name)
	if err != nil {
		return nil, "", err
	}
	return p, m.procs.StateOf(p), nil
}

// Detail is the full view of one VM for the get command. The password
// never appears here; it lives only in the record and the seed volume.
type Detail struct {
	Name          string    `json:"name" yaml:"name"`
	State         string    `json:"state" yaml:"state"`
	OS            string    `json:"os" yaml:"os"`
	ImageURL      string    `json:"image_url" yaml:"image_url"`
	Hostname      string    `json:"hostname" yaml:"hostname"`
	Username      string    `json:"username" yaml:"username"`
	SSHKeys       int       `json:"ssh_keys" yaml:"ssh_keys"`
	CPUs          int       `json:"cpus" yaml:"cpus"`
	MemoryMB      int       `json:"memory_mb" yaml:"memory_mb"`
	DiskSize      string    `json:"disk_size" yaml:"disk_size"`
	SSHPort       int       `json:"ssh_port" yaml:"ssh_port"`
	Forwards      []string  `json:"forwards,omitempty" yaml:"forwards,omitempty"`
	CacheMode     string    `json:"cache_mode" yaml:"cache_mode"`
	IOThreads     bool      `json:"io_threads" yaml:"io_threads"`
	NetDevice     string    `json:"net_device" yaml:"net_device"`
	GPU           bool      `json:"gpu" yaml:"gpu"`
	DisplayServer string    `json:"display_server" yaml:"display_server"`
	BootDisk      string    `json:"boot_disk" yaml:"boot_disk"`
	SeedVolume    string    `json:"seed_volume" yaml:"seed_volume"`
	Created       time.Time `json:"created" yaml:"created"`
}

// Describe returns the full view of one VM.
func (m *Manager) Describe(name string) (*Detail, error) {
	p, state, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	forwards := make([]string, 0, len(p.Forwards))
	for _, fwd := range p.Forwards {
		forwards = append(forwards, fwd.String())
	}
	return &Detail{
		Name:          p.Name,
		State:         string(state),
		OS:            p.OSFamily + " " + p.OSVariant,
		ImageURL:      p.ImageURL,
		Hostname:      p.Hostname,
		Username:      p.Username,
		SSHKeys:       len(p.SSHKeys),
		CPUs:          p.CPUs,
		MemoryMB:      p.MemoryMB,
		DiskSize:      p.DiskSize,
		SSHPort:       p.SSHPort,
		Forwards:      forwards,
		CacheMode:     p.Perf.CacheMode,
		IOThreads:     p.Perf.IOThreads,
		NetDevice:     p.Perf.NetDevice,
		GPU:           p.Perf.GPU,
		DisplayServer: p.Perf.DisplayServer,
		BootDisk:      p.BootDisk,
		SeedVolume:    p.SeedVolume,
		Created:       p.CreatedAt,
	}, nil
}
