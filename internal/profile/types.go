// Package profile defines the durable, named configuration for a VM and
// its on-disk store.
package profile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// Cache modes supported by the disk backend.
const (
	CacheWriteback    = "writeback"
	CacheWritethrough = "writethrough"
	CacheNone         = "none"
)

// Display server locations for GPU passthrough.
const (
	DisplayHost  = "host"
	DisplayGuest = "guest"
)

// Port range allowed for the SSH port and host-side forwards.
const (
	PortMin = 23
	PortMax = 65535
)

var (
	namePattern     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	usernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]*$`)
	diskSizePattern = regexp.MustCompile(`^([0-9]+)([GgMm])$`)
)

// PerfOptions is the performance sub-record of a profile. Older records
// may lack some of these fields; the codec fills them from
// DefaultPerfOptions on load.
type PerfOptions struct {
	// CacheMode is one of writeback, writethrough, none.
	CacheMode string
	// IOThreads selects the dedicated I/O-thread-backed multi-queue bus.
	IOThreads bool
	// NetDevice is the emulated NIC model (e.g. virtio-net-pci, e1000).
	NetDevice string
	// GPU requests the 3D-accelerated display device.
	GPU bool
	// DisplayServer selects where the display server runs when GPU is
	// requested: on the host (companion process) or inside the guest
	// (packages injected via the seed).
	DisplayServer string
}

// DefaultPerfOptions returns the fixed default table applied to records
// written before a performance field existed.
func DefaultPerfOptions() PerfOptions {
	return PerfOptions{
		CacheMode:     CacheWriteback,
		IOThreads:     true,
		NetDevice:     "virtio-net-pci",
		GPU:           false,
		DisplayServer: DisplayHost,
	}
}

// PortForward is an additional host:guest TCP forwarding pair.
type PortForward struct {
	HostPort  int
	GuestPort int
}

func (f PortForward) String() string {
	return fmt.Sprintf("%d:%d", f.HostPort, f.GuestPort)
}

// ParsePortForward parses a "host:guest" pair.
func ParsePortForward(s string) (PortForward, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return PortForward{}, &ValidationError{Field: "port-forward", Reason: fmt.Sprintf("expected host:guest, got %q", s)}
	}
	host, err := strconv.Atoi(parts[0])
	if err != nil {
		return PortForward{}, &ValidationError{Field: "port-forward", Reason: fmt.Sprintf("invalid host port %q", parts[0])}
	}
	guest, err := strconv.Atoi(parts[1])
	if err != nil {
		return PortForward{}, &ValidationError{Field: "port-forward", Reason: fmt.Sprintf("invalid guest port %q", parts[1])}
	}
	fwd := PortForward{HostPort: host, GuestPort: guest}
	if err := fwd.Validate(); err != nil {
		return PortForward{}, err
	}
	return fwd, nil
}

// Validate checks a forwarding pair.
func (f PortForward) Validate() error {
	if f.HostPort < PortMin || f.HostPort > PortMax {
		return &ValidationError{Field: "port-forward", Reason: fmt.Sprintf("host port must be %d-%d, got %d", PortMin, PortMax, f.HostPort)}
	}
	if f.GuestPort < 1 || f.GuestPort > PortMax {
		return &ValidationError{Field: "port-forward", Reason: fmt.Sprintf("guest port must be 1-%d, got %d", PortMax, f.GuestPort)}
	}
	return nil
}

// Profile is the durable, named configuration for one VM.
type Profile struct {
	// Name is the unique, filesystem-safe identity of the VM.
	Name string
	// OSFamily and OSVariant tag the installed guest OS (e.g. ubuntu / 24.04).
	OSFamily  string
	OSVariant string
	// ImageURL is the source of the base boot image.
	ImageURL string
	// Hostname is the guest hostname set through the seed.
	Hostname string
	// Username and Password are the guest login credentials. The password
	// is hashed before it enters the seed volume.
	Username string
	Password string
	// SSHKeys are optional authorized public keys injected via the seed.
	SSHKeys []string
	// DiskSize is the declared boot disk size, "<int>[GgMm]".
	DiskSize string
	// MemoryMB and CPUs size the guest.
	MemoryMB int
	CPUs     int
	// SSHPort is the host port forwarded to guest port 22.
	SSHPort int
	// Forwards are additional host:guest forwarding pairs on the same NIC.
	Forwards []PortForward
	// BootDisk and SeedVolume are the on-disk artifact paths.
	BootDisk   string
	SeedVolume string
	// CreatedAt is the profile creation timestamp.
	CreatedAt time.Time
	// Perf holds the performance device choices.
	Perf PerfOptions
}

// Normalize trims user-supplied fields. Called by constructors before
// validation; paths and the password are left untouched.
func (p *Profile) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.OSFamily = strings.TrimSpace(strings.ToLower(p.OSFamily))
	p.OSVariant = strings.TrimSpace(p.OSVariant)
	p.Hostname = strings.TrimSpace(p.Hostname)
	p.Username = strings.TrimSpace(p.Username)
	if p.Perf.CacheMode != "" {
		p.Perf.CacheMode = strings.ToLower(strings.TrimSpace(p.Perf.CacheMode))
	}
	if p.Perf.DisplayServer != "" {
		p.Perf.DisplayServer = strings.ToLower(strings.TrimSpace(p.Perf.DisplayServer))
	}
}

// Validate checks the profile for errors. Edit flows re-validate with the
// same rules as creation.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "name is required"}
	}
	if !namePattern.MatchString(p.Name) {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("must match [A-Za-z0-9_-]+, got %q", p.Name)}
	}
	if p.Hostname == "" {
		return &ValidationError{Field: "hostname", Reason: "hostname is required"}
	}
	if !namePattern.MatchString(p.Hostname) {
		return &ValidationError{Field: "hostname", Reason: fmt.Sprintf("must match [A-Za-z0-9_-]+, got %q", p.Hostname)}
	}
	if p.Username == "" {
		return &ValidationError{Field: "username", Reason: "username is required"}
	}
	if !usernamePattern.MatchString(p.Username) {
		return &ValidationError{Field: "username", Reason: fmt.Sprintf("must match [a-z_][a-z0-9_-]*, got %q", p.Username)}
	}
	if p.ImageURL == "" {
		return &ValidationError{Field: "image-url", Reason: "image URL is required"}
	}
	if _, err := ParseDiskSize(p.DiskSize); err != nil {
		return err
	}
	if p.MemoryMB <= 0 {
		return &ValidationError{Field: "memory", Reason: fmt.Sprintf("memory must be > 0 MB, got %d", p.MemoryMB)}
	}
	if p.CPUs <= 0 {
		return &ValidationError{Field: "cpus", Reason: fmt.Sprintf("cpus must be > 0, got %d", p.CPUs)}
	}
	if p.SSHPort < PortMin || p.SSHPort > PortMax {
		return &ValidationError{Field: "ssh-port", Reason: fmt.Sprintf("port must be %d-%d, got %d", PortMin, PortMax, p.SSHPort)}
	}

	hostPortsSeen := map[int]bool{p.SSHPort: true}
	for i, fwd := range p.Forwards {
		if err := fwd.Validate(); err != nil {
			return err
		}
		if hostPortsSeen[fwd.HostPort] {
			return &ValidationError{Field: "port-forward", Reason: fmt.Sprintf("forwards[%d]: duplicate host port %d", i, fwd.HostPort)}
		}
		hostPortsSeen[fwd.HostPort] = true
	}

	// Validate SSH keys using the x/crypto parser; it accepts all
	// standard authorized_keys formats.
	for i, key := range p.SSHKeys {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key)); err != nil {
			return &ValidationError{Field: "ssh-keys", Reason: fmt.Sprintf("ssh_keys[%d] is not a valid public key: %v", i, err)}
		}
	}

	switch p.Perf.CacheMode {
	case CacheWriteback, CacheWritethrough, CacheNone:
	default:
		return &ValidationError{Field: "cache", Reason: fmt.Sprintf("cache mode must be writeback, writethrough or none, got %q", p.Perf.CacheMode)}
	}
	if p.Perf.NetDevice == "" {
		return &ValidationError{Field: "net-device", Reason: "network device model is required"}
	}
	switch p.Perf.DisplayServer {
	case DisplayHost, DisplayGuest:
	default:
		return &ValidationError{Field: "display-server", Reason: fmt.Sprintf("display server location must be host or guest, got %q", p.Perf.DisplayServer)}
	}

	return nil
}

// ParseDiskSize parses the "<int>[GgMm]" disk size notation and returns
// the size in MB.
func ParseDiskSize(s string) (int, error) {
	m := diskSizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, &ValidationError{Field: "disk-size", Reason: fmt.Sprintf("must match <int>[GgMm], got %q", s)}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, &ValidationError{Field: "disk-size", Reason: fmt.Sprintf("size must be a positive integer, got %q", m[1])}
	}
	if m[2] == "G" || m[2] == "g" {
		return n * 1024, nil
	}
	return n, nil
}

// DiskSizeMB returns the declared boot disk size in MB. The profile must
// have passed Validate.
func (p *Profile) DiskSizeMB() int {
	mb, err := ParseDiskSize(p.DiskSize)
	if err != nil {
		return 0
	}
	return mb
}

// ReservedPorts returns every host port this profile claims: the SSH port
// plus each forward's host port.
func (p *Profile) ReservedPorts() []int {
	ports := make([]int, 0, len(p.Forwards)+1)
	ports = append(ports, p.SSHPort)
	for _, fwd := range p.Forwards {
		ports = append(ports, fwd.HostPort)
	}
	return ports
}
