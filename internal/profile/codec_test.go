package profile

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	p := validProfile()
	p.SSHKeys = []string{
		"ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIIbJKZscbOLzBsgY5y2QupKW4A2kSDjMBQGPb1dChr+S test@example.com",
	}
	p.Forwards = []PortForward{{HostPort: 8080, GuestPort: 80}, {HostPort: 8443, GuestPort: 443}}
	p.BootDisk = "/var/lib/idx-vps/images/vmA/boot.qcow2"
	p.SeedVolume = "/var/lib/idx-vps/images/vmA/seed.iso"
	p.Password = `we"ird\pass`

	decoded, err := Decode(p.Name, Encode(p))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(p, decoded) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", decoded, p)
	}
}

func TestEncodeDecode_MultilineValues(t *testing.T) {
	// A newline in a value must not split the record across lines;
	// Validate accepts such passwords, so the codec has to carry them.
	p := validProfile()
	p.Password = "top\nsecret"
	p.ImageURL = "https://cloud-images.example.com/noble.img\r\n"

	data := Encode(p)
	if got, want := len(strings.Split(strings.TrimRight(string(data), "\n"), "\n")), len(strings.Split(strings.TrimRight(string(Encode(validProfile())), "\n"), "\n")); got != want {
		t.Errorf("multi-line value changed the record line count: got %d, want %d", got, want)
	}

	decoded, err := Decode(p.Name, data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Password != p.Password {
		t.Errorf("password round trip = %q, want %q", decoded.Password, p.Password)
	}
	if decoded.ImageURL != p.ImageURL {
		t.Errorf("image URL round trip = %q, want %q", decoded.ImageURL, p.ImageURL)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	p := validProfile()
	a := Encode(p)
	b := Encode(p)
	if string(a) != string(b) {
		t.Errorf("Encode is not deterministic")
	}
}

func TestDecode_OldRecordGetsPerfDefaults(t *testing.T) {
	// A record written before the performance sub-record existed.
	record := `NAME="vmA"
OS_FAMILY="ubuntu"
OS_VARIANT="24.04"
IMAGE_URL="https://cloud-images.example.com/noble.img"
HOSTNAME="vma"
USERNAME="ubuntu"
PASSWORD="secret"
DISK_SIZE="20G"
MEMORY_MB="2048"
CPUS="2"
SSH_PORT="2222"
CREATED_AT="2026-08-01T12:00:00Z"
`
	p, err := Decode("vmA", []byte(record))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := DefaultPerfOptions()
	if p.Perf != want {
		t.Errorf("Perf = %+v, want defaults %+v", p.Perf, want)
	}
	if p.Name != "vmA" || p.MemoryMB != 2048 || p.SSHPort != 2222 {
		t.Errorf("basic fields not decoded: %+v", p)
	}
}

func TestDecode_UnknownKeyIgnored(t *testing.T) {
	record := `NAME="vmA"
FUTURE_FEATURE="whatever"
MEMORY_MB="2048"
`
	p, err := Decode("vmA", []byte(record))
	if err != nil {
		t.Fatalf("Decode failed on unknown key: %v", err)
	}
	if p.Name != "vmA" || p.MemoryMB != 2048 {
		t.Errorf("fields not decoded after unknown key: %+v", p)
	}
}

func TestDecode_CommentsAndBlankLines(t *testing.T) {
	record := "# managed by idx-vps\n\nNAME=\"vmA\"\n"
	p, err := Decode("vmA", []byte(record))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.Name != "vmA" {
		t.Errorf("Name = %q, want vmA", p.Name)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		record string
	}{
		{"no equals", "NAME\n"},
		{"unquoted value", "NAME=vmA\n"},
		{"unterminated quote", "NAME=\"vmA\n"},
		{"non-numeric int field", "MEMORY_MB=\"lots\"\n"},
		{"bad bool", "PERF_GPU=\"maybe\"\n"},
		{"bad timestamp", "CREATED_AT=\"yesterday\"\n"},
		{"bad forward", "FORWARD_0=\"eighty:80\"\n"},
		{"stray quote in value", "NAME=\"vm\"A\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Decode("vmA", []byte(tt.record))
			if err == nil {
				t.Fatalf("Decode accepted malformed record")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Errorf("expected ParseError, got %T: %v", err, err)
			}
			if p != nil {
				t.Errorf("partial profile returned alongside error")
			}
		})
	}
}

func TestDecode_ForwardAndKeyOrdering(t *testing.T) {
	// Indexed keys may appear in any order in the file.
	record := `NAME="vmA"
FORWARD_1="8443:443"
FORWARD_0="8080:80"
SSH_KEY_1="ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIIbJKZscbOLzBsgY5y2QupKW4A2kSDjMBQGPb1dChr+S b@example.com"
SSH_KEY_0="ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIIbJKZscbOLzBsgY5y2QupKW4A2kSDjMBQGPb1dChr+S a@example.com"
`
	p, err := Decode("vmA", []byte(record))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(p.Forwards) != 2 || p.Forwards[0].HostPort != 8080 || p.Forwards[1].HostPort != 8443 {
		t.Errorf("forwards not ordered by index: %+v", p.Forwards)
	}
	if len(p.SSHKeys) != 2 || !strings.Contains(p.SSHKeys[0], "a@example.com") {
		t.Errorf("ssh keys not ordered by index: %v", p.SSHKeys)
	}
}
