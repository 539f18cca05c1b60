package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tyuio302/idx-vps/internal/hostcap"
	"github.com/tyuio302/idx-vps/internal/image"
	"github.com/tyuio302/idx-vps/internal/profile"
	"github.com/tyuio302/idx-vps/internal/supervisor"
	"github.com/tyuio302/idx-vps/internal/vm"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "idx-vps",
	Short: "idx-vps - local VM lifecycle manager",
	Long: `idx-vps manages local QEMU virtual machines from named profiles.

It downloads cloud images, provisions boot disks and cloud-init seed
volumes, and supervises the hypervisor processes directly.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

func init() {
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(capsCmd)
}

// newManager wires the real store, provisioner and supervisor together.
func newManager() (*vm.Manager, error) {
	profileDir, err := profile.DefaultDir()
	if err != nil {
		return nil, err
	}
	store, err := profile.NewStore(profileDir)
	if err != nil {
		return nil, err
	}
	machineDir, err := image.DefaultDir()
	if err != nil {
		return nil, err
	}
	sup, err := supervisor.New(hostcap.Probe())
	if err != nil {
		return nil, err
	}
	return vm.NewManager(store, image.NewProvisioner(), sup, machineDir), nil
}

var startCmd = &cobra.Command{
	Use:   "start <vm-name>",
	Short: "Start a VM",
	Long: `Start a virtual machine by name.

Missing or out-of-date disk artifacts are provisioned first, so a VM
whose profile was edited while stopped picks up the changes here.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		foreground, _ := cmd.Flags().GetBool("foreground")

		mgr, err := newManager()
		if err != nil {
			return err
		}
		if err := mgr.Start(args[0], foreground); err != nil {
			return fmt.Errorf("failed to start VM: %w", err)
		}
		if foreground {
			fmt.Printf("✓ VM %s exited\n", args[0])
		} else {
			fmt.Printf("✓ VM %s started\n", args[0])
		}
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <vm-name>",
	Short: "Stop a VM",
	Long: `Stop a running virtual machine.

The hypervisor gets a termination signal and a grace period to shut
down before it is killed. Stopping a stopped VM is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager()
		if err != nil {
			return err
		}
		stopped, err := mgr.Stop(args[0])
		if err != nil {
			return fmt.Errorf("failed to stop VM: %w", err)
		}
		if stopped {
			fmt.Printf("✓ VM %s stopped\n", args[0])
		} else {
			fmt.Printf("VM %s was not running\n", args[0])
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <vm-name>",
	Short: "Delete a VM",
	Long: `Delete a virtual machine by name.

This will:
- Stop the VM if running
- Remove the boot disk and seed volume
- Remove the profile record`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager()
		if err != nil {
			return err
		}
		if err := mgr.Delete(args[0]); err != nil {
			return fmt.Errorf("failed to delete VM: %w", err)
		}
		fmt.Printf("✓ VM %s deleted\n", args[0])
		return nil
	},
}

var capsCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Show host capabilities",
	Long:  `Probe the host for KVM, CPU, memory and display capabilities.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		caps := hostcap.Probe()
		virt := "none"
		switch {
		case caps.HasCPUFlag("vmx"):
			virt = "vmx (Intel VT-x)"
		case caps.HasCPUFlag("svm"):
			virt = "svm (AMD-V)"
		}
		fmt.Printf("KVM acceleration:  %t\n", caps.KVM)
		fmt.Printf("CPU cores:         %d\n", caps.CPUCores)
		fmt.Printf("CPU virtualization: %s\n", virt)
		fmt.Printf("Memory:            %d MB\n", caps.MemoryMB)
		fmt.Printf("VirtIO 3D (GPU):   %t\n", caps.VirtIO3D)
		fmt.Printf("Display server:    %t (%s)\n", caps.DisplayServer, hostcap.DisplayServerBinary)
		return nil
	},
}

func init() {
	startCmd.Flags().BoolP("foreground", "f", false, "stay attached until the VM exits")
}
