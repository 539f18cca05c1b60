package qemu

import (
	"crypto/sha256"
	"fmt"
	"strconv"

	"github.com/tyuio302/idx-vps/internal/hostcap"
	"github.com/tyuio302/idx-vps/internal/profile"
)

// DefaultBinary is the hypervisor executable.
const DefaultBinary = "qemu-system-x86_64"

// Build maps a validated profile and the probed capability set to a
// hypervisor invocation. Pure: no I/O, and byte-identical output for
// identical inputs.
func Build(p *profile.Profile, caps hostcap.Capabilities) *Invocation {
	inv := &Invocation{Binary: DefaultBinary}

	inv.add("-name",
		prop("guest", p.Name),
		// A stable process name keyed on the VM name makes the process
		// table scan unambiguous.
		prop("process", "idx-vps-"+p.Name),
	)

	// The machine type requests acceleration opportunistically; the
	// accel property is only attached when the probe confirmed KVM, so
	// an unsupported host surfaces at launch, not at build.
	if caps.KVM {
		inv.add("-machine", prop("", "q35"), prop("accel", "kvm"))
		inv.addValue("-cpu", "host")
	} else {
		inv.add("-machine", prop("", "q35"))
		inv.addValue("-cpu", "max")
	}

	inv.addValue("-smp", strconv.Itoa(p.CPUs))
	inv.addValue("-m", strconv.Itoa(p.MemoryMB))

	buildDisks(inv, p)
	buildNetwork(inv, p)
	buildDisplay(inv, p, caps)

	// Headless-first: the guest console is always a serial console
	// multiplexed with the QEMU monitor on stdio, independent of which
	// display device is attached.
	inv.addValue("-serial", "mon:stdio")
	inv.addValue("-display", displayBackend(p, caps))

	inv.add("-device", prop("", "virtio-rng-pci"))

	return inv
}

// aioMode couples the async I/O dispatch strategy to the cache mode.
// Native (kernel) async I/O requires uncached O_DIRECT access, so it is
// selected exactly when the cache mode is none; every other cache mode
// uses the thread pool. This is a correctness rule, not a tuning choice.
func aioMode(cacheMode string) string {
	if cacheMode == profile.CacheNone {
		return "native"
	}
	return "threads"
}

func buildDisks(inv *Invocation, p *profile.Profile) {
	cache := p.Perf.CacheMode
	aio := aioMode(cache)

	if p.Perf.IOThreads {
		// One dedicated iothread backing a single multi-queue SCSI bus
		// shared by the boot disk and the seed volume.
		inv.add("-object", prop("", "iothread"), prop("id", "iothread0"))
		inv.add("-device",
			prop("", "virtio-scsi-pci"),
			prop("id", "scsi0"),
			prop("iothread", "iothread0"),
			prop("num_queues", strconv.Itoa(p.CPUs)),
		)
		inv.add("-drive",
			prop("file", p.BootDisk),
			prop("if", "none"),
			prop("id", "drive-boot"),
			prop("format", "qcow2"),
			prop("cache", cache),
			prop("aio", aio),
		)
		inv.add("-device",
			prop("", "scsi-hd"),
			prop("bus", "scsi0.0"),
			prop("drive", "drive-boot"),
			prop("id", "disk-boot"),
			prop("bootindex", "0"),
		)
		inv.add("-drive",
			prop("file", p.SeedVolume),
			prop("if", "none"),
			prop("id", "drive-seed"),
			prop("format", "raw"),
			prop("read-only", "on"),
			prop("cache", cache),
			prop("aio", aio),
		)
		inv.add("-device",
			prop("", "scsi-cd"),
			prop("bus", "scsi0.0"),
			prop("drive", "drive-seed"),
			prop("id", "disk-seed"),
		)
		return
	}

	// Simple direct bus: one virtio-blk device per disk.
	inv.add("-drive",
		prop("file", p.BootDisk),
		prop("if", "none"),
		prop("id", "drive-boot"),
		prop("format", "qcow2"),
		prop("cache", cache),
		prop("aio", aio),
	)
	inv.add("-device",
		prop("", "virtio-blk-pci"),
		prop("drive", "drive-boot"),
		prop("id", "disk-boot"),
		prop("bootindex", "0"),
	)
	inv.add("-drive",
		prop("file", p.SeedVolume),
		prop("if", "none"),
		prop("id", "drive-seed"),
		prop("format", "raw"),
		prop("read-only", "on"),
		prop("cache", cache),
		prop("aio", aio),
	)
	inv.add("-device",
		prop("", "virtio-blk-pci"),
		prop("drive", "drive-seed"),
		prop("id", "disk-seed"),
	)
}

func buildNetwork(inv *Invocation, p *profile.Profile) {
	// A single user-mode backend carries the SSH forward and every
	// additional pair; extra forwards never grow a second NIC.
	props := []Property{
		prop("", "user"),
		prop("id", "net0"),
		prop("hostfwd", fmt.Sprintf("tcp::%d-:22", p.SSHPort)),
	}
	for _, fwd := range p.Forwards {
		props = append(props, prop("hostfwd", fmt.Sprintf("tcp::%d-:%d", fwd.HostPort, fwd.GuestPort)))
	}
	inv.add("-netdev", props...)
	inv.add("-device",
		prop("", p.Perf.NetDevice),
		prop("netdev", "net0"),
		prop("mac", macFromName(p.Name)),
	)
}

func buildDisplay(inv *Invocation, p *profile.Profile, caps hostcap.Capabilities) {
	if p.Perf.GPU && caps.VirtIO3D {
		inv.add("-device", prop("", "virtio-vga-gl"))
		if p.Perf.DisplayServer == profile.DisplayHost {
			inv.NeedsDisplayServer = true
		}
		return
	}

	if p.Perf.GPU {
		inv.Warnings = append(inv.Warnings,
			"GPU passthrough requested but no 3D-capable render node was detected; falling back to plain display device")
	}
	inv.add("-device", prop("", "virtio-vga"))
}

// displayBackend selects the -display option matching the chosen display
// device. The GTK/SDL/VNC interactive backends are never used: the
// operator console is the serial console.
func displayBackend(p *profile.Profile, caps hostcap.Capabilities) string {
	if p.Perf.GPU && caps.VirtIO3D {
		if p.Perf.DisplayServer == profile.DisplayHost {
			// Renders through the companion display server's slot.
			return "sdl,gl=on"
		}
		return "egl-headless"
	}
	return "none"
}

// macFromName derives a stable MAC from the VM name under QEMU's
// locally-administered 52:54:00 prefix.
func macFromName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return fmt.Sprintf("52:54:00:%02x:%02x:%02x", sum[0], sum[1], sum[2])
}
