package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tyuio302/idx-vps/internal/catalog"
	"github.com/tyuio302/idx-vps/internal/profile"
)

var createFlags struct {
	image         string
	imageURL      string
	osFamily      string
	osVariant     string
	hostname      string
	username      string
	password      string
	sshKeys       []string
	sshKeyFiles   []string
	diskSize      string
	memoryMB      int
	cpus          int
	sshPort       int
	forwards      []string
	cacheMode     string
	ioThreads     bool
	netDevice     string
	gpu           bool
	displayServer string
	noStart       bool
}

var createCmd = &cobra.Command{
	Use:   "create <vm-name>",
	Short: "Create a VM from a catalog image",
	Long: `Create a new virtual machine profile and provision its disks.

The base image comes from the built-in catalog (see 'idx-vps images')
or from an explicit --image-url. Catalog defaults for hostname and
credentials apply unless overridden.

Example:
  idx-vps create web --image ubuntu-24.04 --ssh-port 10022 --disk 20G`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildProfile(args[0])
		if err != nil {
			return err
		}

		mgr, err := newManager()
		if err != nil {
			return err
		}

		fmt.Printf("Creating VM %s (%s %s)...\n", p.Name, p.OSFamily, p.OSVariant)
		if err := mgr.Create(p); err != nil {
			return fmt.Errorf("failed to create VM: %w", err)
		}
		fmt.Println("✓ VM created successfully!")

		if createFlags.noStart {
			return nil
		}
		if err := mgr.Start(p.Name, false); err != nil {
			return fmt.Errorf("VM created but failed to start: %w", err)
		}
		fmt.Printf("✓ VM %s started (ssh -p %d %s@localhost)\n", p.Name, p.SSHPort, p.Username)
		return nil
	},
}

// buildProfile assembles a profile from the catalog entry and flags.
func buildProfile(name string) (*profile.Profile, error) {
	img, ok := catalog.Lookup(createFlags.image)
	if !ok && createFlags.imageURL == "" {
		return nil, fmt.Errorf("unknown image %q, see 'idx-vps images'", createFlags.image)
	}

	p := &profile.Profile{
		Name:      name,
		OSFamily:  img.Family,
		OSVariant: img.Variant,
		ImageURL:  img.URL,
		Hostname:  img.DefaultHostname,
		Username:  img.DefaultUsername,
		Password:  img.DefaultPassword,
		DiskSize:  createFlags.diskSize,
		MemoryMB:  createFlags.memoryMB,
		CPUs:      createFlags.cpus,
		SSHPort:   createFlags.sshPort,
		Perf:      profile.DefaultPerfOptions(),
	}
	if p.Hostname == "" {
		p.Hostname = name
	}

	if createFlags.imageURL != "" {
		p.ImageURL = createFlags.imageURL
	}
	if createFlags.osFamily != "" {
		p.OSFamily = createFlags.osFamily
	}
	if createFlags.osVariant != "" {
		p.OSVariant = createFlags.osVariant
	}
	if createFlags.hostname != "" {
		p.Hostname = createFlags.hostname
	}
	if createFlags.username != "" {
		p.Username = createFlags.username
	}
	if createFlags.password != "" {
		p.Password = createFlags.password
	}

	keys, err := collectSSHKeys(createFlags.sshKeys, createFlags.sshKeyFiles)
	if err != nil {
		return nil, err
	}
	p.SSHKeys = keys

	for _, spec := range createFlags.forwards {
		fwd, err := profile.ParsePortForward(spec)
		if err != nil {
			return nil, err
		}
		p.Forwards = append(p.Forwards, fwd)
	}

	p.Perf.CacheMode = createFlags.cacheMode
	p.Perf.IOThreads = createFlags.ioThreads
	p.Perf.NetDevice = createFlags.netDevice
	p.Perf.GPU = createFlags.gpu
	p.Perf.DisplayServer = createFlags.displayServer

	return p, nil
}

// collectSSHKeys merges literal keys with keys read from files, one
// authorized_keys line per key.
func collectSSHKeys(literals, files []string) ([]string, error) {
	keys := append([]string(nil), literals...)
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read ssh key file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			keys = append(keys, line)
		}
	}
	return keys, nil
}

func init() {
	defaults := profile.DefaultPerfOptions()

	createCmd.Flags().StringVar(&createFlags.image, "image", "ubuntu-24.04", "catalog image label")
	createCmd.Flags().StringVar(&createFlags.imageURL, "image-url", "", "base image URL (overrides the catalog)")
	createCmd.Flags().StringVar(&createFlags.osFamily, "os-family", "", "guest OS family (with --image-url)")
	createCmd.Flags().StringVar(&createFlags.osVariant, "os-variant", "", "guest OS variant (with --image-url)")
	createCmd.Flags().StringVar(&createFlags.hostname, "hostname", "", "guest hostname (default: VM name)")
	createCmd.Flags().StringVar(&createFlags.username, "username", "", "guest login user")
	createCmd.Flags().StringVar(&createFlags.password, "password", "", "guest login password")
	createCmd.Flags().StringArrayVar(&createFlags.sshKeys, "ssh-key", nil, "authorized SSH public key (repeatable)")
	createCmd.Flags().StringArrayVar(&createFlags.sshKeyFiles, "ssh-key-file", nil, "file with authorized SSH public keys (repeatable)")
	createCmd.Flags().StringVar(&createFlags.diskSize, "disk", "20G", "boot disk size, <int>[GgMm]")
	createCmd.Flags().IntVar(&createFlags.memoryMB, "memory", 2048, "guest memory in MB")
	createCmd.Flags().IntVar(&createFlags.cpus, "cpus", 2, "guest vCPU count")
	createCmd.Flags().IntVar(&createFlags.sshPort, "ssh-port", 10022, "host port forwarded to guest SSH")
	createCmd.Flags().StringArrayVar(&createFlags.forwards, "forward", nil, "extra port forward host:guest (repeatable)")
	createCmd.Flags().StringVar(&createFlags.cacheMode, "cache", defaults.CacheMode, "disk cache mode: writeback, writethrough or none")
	createCmd.Flags().BoolVar(&createFlags.ioThreads, "iothreads", defaults.IOThreads, "use a dedicated IO thread for disks")
	createCmd.Flags().StringVar(&createFlags.netDevice, "net-device", defaults.NetDevice, "network device model")
	createCmd.Flags().BoolVar(&createFlags.gpu, "gpu", defaults.GPU, "enable VirtIO 3D accelerated display")
	createCmd.Flags().StringVar(&createFlags.displayServer, "display-server", defaults.DisplayServer, "where the display server runs: host or guest")
	createCmd.Flags().BoolVar(&createFlags.noStart, "no-start", false, "create without starting the VM")
}
