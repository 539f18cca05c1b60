package profile

import (
	"errors"
	"testing"
	"time"
)

func validProfile() *Profile {
	return &Profile{
		Name:      "vmA",
		OSFamily:  "ubuntu",
		OSVariant: "24.04",
		ImageURL:  "https://cloud-images.example.com/noble.img",
		Hostname:  "vma",
		Username:  "ubuntu",
		Password:  "secret",
		DiskSize:  "20G",
		MemoryMB:  2048,
		CPUs:      2,
		SSHPort:   2222,
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Perf:      DefaultPerfOptions(),
	}
}

func TestProfileValidate_Valid(t *testing.T) {
	p := validProfile()
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate failed for valid profile: %v", err)
	}
}

func TestProfileValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"empty name", func(p *Profile) { p.Name = "" }},
		{"name with space", func(p *Profile) { p.Name = "vm a" }},
		{"name with slash", func(p *Profile) { p.Name = "vm/a" }},
		{"bad hostname", func(p *Profile) { p.Hostname = "host.name" }},
		{"username starts with digit", func(p *Profile) { p.Username = "1user" }},
		{"username uppercase", func(p *Profile) { p.Username = "User" }},
		{"bad disk size", func(p *Profile) { p.DiskSize = "20" }},
		{"bad disk unit", func(p *Profile) { p.DiskSize = "20T" }},
		{"zero memory", func(p *Profile) { p.MemoryMB = 0 }},
		{"zero cpus", func(p *Profile) { p.CPUs = 0 }},
		{"ssh port too low", func(p *Profile) { p.SSHPort = 22 }},
		{"ssh port too high", func(p *Profile) { p.SSHPort = 70000 }},
		{"forward collides with ssh port", func(p *Profile) {
			p.Forwards = []PortForward{{HostPort: 2222, GuestPort: 80}}
		}},
		{"duplicate forward host port", func(p *Profile) {
			p.Forwards = []PortForward{{HostPort: 8080, GuestPort: 80}, {HostPort: 8080, GuestPort: 443}}
		}},
		{"bad cache mode", func(p *Profile) { p.Perf.CacheMode = "unsafe" }},
		{"empty net device", func(p *Profile) { p.Perf.NetDevice = "" }},
		{"bad display location", func(p *Profile) { p.Perf.DisplayServer = "remote" }},
		{"bad ssh key", func(p *Profile) { p.SSHKeys = []string{"not a key"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(p)
			err := p.Validate()
			if err == nil {
				t.Fatalf("Validate accepted invalid profile")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestParseDiskSize(t *testing.T) {
	tests := []struct {
		in      string
		wantMB  int
		wantErr bool
	}{
		{"20G", 20 * 1024, false},
		{"20g", 20 * 1024, false},
		{"512M", 512, false},
		{"512m", 512, false},
		{"0G", 0, true},
		{"20", 0, true},
		{"G", 0, true},
		{"-5G", 0, true},
		{"20GB", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDiskSize(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDiskSize(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDiskSize(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.wantMB {
			t.Errorf("ParseDiskSize(%q) = %d, want %d", tt.in, got, tt.wantMB)
		}
	}
}

func TestParsePortForward(t *testing.T) {
	fwd, err := ParsePortForward("8080:80")
	if err != nil {
		t.Fatalf("ParsePortForward failed: %v", err)
	}
	if fwd.HostPort != 8080 || fwd.GuestPort != 80 {
		t.Errorf("got %+v, want 8080:80", fwd)
	}

	for _, bad := range []string{"8080", "x:80", "8080:x", "22:80", "8080:0"} {
		if _, err := ParsePortForward(bad); err == nil {
			t.Errorf("ParsePortForward(%q) succeeded, want error", bad)
		}
	}
}

func TestReservedPorts(t *testing.T) {
	p := validProfile()
	p.Forwards = []PortForward{{HostPort: 8080, GuestPort: 80}}
	got := p.ReservedPorts()
	if len(got) != 2 || got[0] != 2222 || got[1] != 8080 {
		t.Errorf("ReservedPorts = %v, want [2222 8080]", got)
	}
}
