package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/tyuio302/idx-vps/internal/vm"
)

// TableFormatter formats VMs as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatVM formats the full view of a single VM as a field table.
func (f *TableFormatter) FormatVM(d *vm.Detail) (string, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	rows := [][2]string{
		{"Name", d.Name},
		{"State", d.State},
		{"OS", d.OS},
		{"Image URL", d.ImageURL},
		{"Hostname", d.Hostname},
		{"Username", d.Username},
		{"SSH keys", fmt.Sprintf("%d", d.SSHKeys)},
		{"vCPUs", fmt.Sprintf("%d", d.CPUs)},
		{"Memory", fmt.Sprintf("%d MB", d.MemoryMB)},
		{"Disk size", d.DiskSize},
		{"SSH port", fmt.Sprintf("%d", d.SSHPort)},
		{"Cache mode", d.CacheMode},
		{"IO threads", fmt.Sprintf("%t", d.IOThreads)},
		{"Net device", d.NetDevice},
		{"GPU", fmt.Sprintf("%t", d.GPU)},
		{"Display server", d.DisplayServer},
		{"Boot disk", d.BootDisk},
		{"Seed volume", d.SeedVolume},
		{"Created", d.Created.Format(time.RFC3339)},
	}
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s:\t%s\n", row[0], row[1])
	}
	for _, fwd := range d.Forwards {
		_, _ = fmt.Fprintf(w, "Forward:\t%s\n", fwd)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatVMList formats a list of VMs as a table.
func (f *TableFormatter) FormatVMList(infos []vm.Info) (string, error) {
	if len(infos) == 0 {
		return "No VMs found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tOS\tVCPUs\tMEMORY\tDISK\tSSH\tAGE")
	}

	for _, info := range infos {
		age := "-"
		if !info.Created.IsZero() {
			age = formatAge(time.Since(info.Created))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d MB\t%s\t%d\t%s\n",
			info.Name, info.State, info.OS, info.CPUs, info.MemoryMB, info.DiskSize, info.SSHPort, age)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// formatAge formats a duration as a human-readable age string.
// Examples: "5s", "2m", "3h", "4d", "2w", "1y"
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}

	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}

	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}

	weeks := days / 7
	if weeks < 8 {
		return fmt.Sprintf("%dw", weeks)
	}

	years := days / 365
	if years > 0 {
		return fmt.Sprintf("%dy", years)
	}
	return fmt.Sprintf("%dd", days)
}
