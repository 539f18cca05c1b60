package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tyuio302/idx-vps/internal/profile"
	"github.com/tyuio302/idx-vps/internal/vm"
)

var editFlags struct {
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
	allowShrink   bool
}

var editCmd = &cobra.Command{
	Use:   "edit <vm-name>",
	Short: "Edit a VM profile",
	Long: `Edit an existing virtual machine profile.

Only the given flags change; everything else keeps its stored value.
Edits are validated like a create, including port conflicts against the
other VMs. A disk size change is applied immediately and requires the
VM to be stopped; shrinking additionally requires --allow-shrink.
Credential and hardware changes take effect on the next start.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager()
		if err != nil {
			return err
		}
		p, _, err := mgr.Get(args[0])
		if err != nil {
			return fmt.Errorf("failed to load VM: %w", err)
		}

		if err := applyEditFlags(cmd, p); err != nil {
			return err
		}
		if err := mgr.Update(p, vm.UpdateOptions{AllowShrink: editFlags.allowShrink}); err != nil {
			return fmt.Errorf("failed to update VM: %w", err)
		}
		fmt.Printf("✓ VM %s updated\n", p.Name)
		return nil
	},
}

// applyEditFlags overlays only the flags the user actually set.
func applyEditFlags(cmd *cobra.Command, p *profile.Profile) error {
	if cmd.Flags().Changed("hostname") {
		p.Hostname = editFlags.hostname
	}
	if cmd.Flags().Changed("username") {
		p.Username = editFlags.username
	}
	if cmd.Flags().Changed("password") {
		p.Password = editFlags.password
	}
	if cmd.Flags().Changed("ssh-key") || cmd.Flags().Changed("ssh-key-file") {
		keys, err := collectSSHKeys(editFlags.sshKeys, editFlags.sshKeyFiles)
		if err != nil {
			return err
		}
		p.SSHKeys = keys
	}
	if cmd.Flags().Changed("disk") {
		p.DiskSize = editFlags.diskSize
	}
	if cmd.Flags().Changed("memory") {
		p.MemoryMB = editFlags.memoryMB
	}
	if cmd.Flags().Changed("cpus") {
		p.CPUs = editFlags.cpus
	}
	if cmd.Flags().Changed("ssh-port") {
		p.SSHPort = editFlags.sshPort
	}
	if cmd.Flags().Changed("forward") {
		p.Forwards = nil
		for _, spec := range editFlags.forwards {
			fwd, err := profile.ParsePortForward(spec)
			if err != nil {
				return err
			}
			p.Forwards = append(p.Forwards, fwd)
		}
	}
	if cmd.Flags().Changed("cache") {
		p.Perf.CacheMode = editFlags.cacheMode
	}
	if cmd.Flags().Changed("iothreads") {
		p.Perf.IOThreads = editFlags.ioThreads
	}
	if cmd.Flags().Changed("net-device") {
		p.Perf.NetDevice = editFlags.netDevice
	}
	if cmd.Flags().Changed("gpu") {
		p.Perf.GPU = editFlags.gpu
	}
	if cmd.Flags().Changed("display-server") {
		p.Perf.DisplayServer = editFlags.displayServer
	}
	return nil
}

func init() {
	editCmd.Flags().StringVar(&editFlags.hostname, "hostname", "", "guest hostname")
	editCmd.Flags().StringVar(&editFlags.username, "username", "", "guest login user")
	editCmd.Flags().StringVar(&editFlags.password, "password", "", "guest login password")
	editCmd.Flags().StringArrayVar(&editFlags.sshKeys, "ssh-key", nil, "authorized SSH public key (replaces the stored set)")
	editCmd.Flags().StringArrayVar(&editFlags.sshKeyFiles, "ssh-key-file", nil, "file with authorized SSH public keys")
	editCmd.Flags().StringVar(&editFlags.diskSize, "disk", "", "boot disk size, <int>[GgMm]")
	editCmd.Flags().IntVar(&editFlags.memoryMB, "memory", 0, "guest memory in MB")
	editCmd.Flags().IntVar(&editFlags.cpus, "cpus", 0, "guest vCPU count")
	editCmd.Flags().IntVar(&editFlags.sshPort, "ssh-port", 0, "host port forwarded to guest SSH")
	editCmd.Flags().StringArrayVar(&editFlags.forwards, "forward", nil, "port forward host:guest (replaces the stored set)")
	editCmd.Flags().StringVar(&editFlags.cacheMode, "cache", "", "disk cache mode: writeback, writethrough or none")
	editCmd.Flags().BoolVar(&editFlags.ioThreads, "iothreads", false, "use a dedicated IO thread for disks")
	editCmd.Flags().StringVar(&editFlags.netDevice, "net-device", "", "network device model")
	editCmd.Flags().BoolVar(&editFlags.gpu, "gpu", false, "enable VirtIO 3D accelerated display")
	editCmd.Flags().StringVar(&editFlags.displayServer, "display-server", "", "where the display server runs: host or guest")
	editCmd.Flags().BoolVar(&editFlags.allowShrink, "allow-shrink", false, "confirm a destructive disk size reduction")
}
