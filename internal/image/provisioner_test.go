package image

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tyuio302/idx-vps/internal/profile"
)

func testProfile(t *testing.T) *profile.Profile {
	t.Helper()
	dir := t.TempDir()
	return &profile.Profile{
		Name:       "vmA",
		OSFamily:   "ubuntu",
		OSVariant:  "24.04",
		ImageURL:   "https://cloud-images.example.com/noble.img",
		Hostname:   "vma",
		Username:   "ubuntu",
		Password:   "secret",
		DiskSize:   "1G",
		MemoryMB:   2048,
		CPUs:       2,
		SSHPort:    2222,
		BootDisk:   filepath.Join(dir, "boot.qcow2"),
		SeedVolume: filepath.Join(dir, "seed.iso"),
		CreatedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Perf:       profile.DefaultPerfOptions(),
	}
}

// fakeQemuImg writes a stand-in qemu-img script and returns its path
// together with the call log it appends to.
func fakeQemuImg(t *testing.T, body string) (bin, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "calls.log")
	script := fmt.Sprintf("#!/bin/sh\necho \"$@\" >> %q\n%s", logPath, body)
	bin = filepath.Join(dir, "qemu-img")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake qemu-img: %v", err)
	}
	return bin, logPath
}

func readLog(t *testing.T, logPath string) string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read call log: %v", err)
	}
	return string(data)
}

func fileSum(t *testing.T, path string) [32]byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return sha256.Sum256(data)
}

// infoReporting returns script body answering `info` with a fixed
// virtual size and failing any unexpected subcommand.
func infoReporting(sizeBytes int64) string {
	return fmt.Sprintf(`case "$1" in
info) printf '{"virtual-size": %d, "format": "qcow2"}\n'; exit 0 ;;
resize) exit 0 ;;
create) exit 0 ;;
*) echo "unexpected subcommand $1" >&2; exit 1 ;;
esac
`, sizeBytes)
}

func TestEnsure_DownloadsMissingBootDisk(t *testing.T) {
	p := testProfile(t)
	bin, logPath := fakeQemuImg(t, infoReporting(1024*1024*1024))

	fetched := 0
	pr := &Provisioner{
		qemuImg: bin,
		fetch: func(url, dest string) error {
			fetched++
			if url != p.ImageURL {
				t.Errorf("fetch URL = %q, want %q", url, p.ImageURL)
			}
			return os.WriteFile(dest, []byte("base-image"), 0o644)
		},
	}

	if err := pr.Ensure(p); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if fetched != 1 {
		t.Errorf("fetch called %d times, want 1", fetched)
	}
	if _, err := os.Stat(p.BootDisk); err != nil {
		t.Errorf("boot disk missing after Ensure: %v", err)
	}
	if _, err := os.Stat(p.SeedVolume); err != nil {
		t.Errorf("seed volume missing after Ensure: %v", err)
	}
	if strings.Contains(readLog(t, logPath), "resize") {
		t.Error("resize called although disk already at declared size")
	}
}

func TestEnsure_Idempotent(t *testing.T) {
	p := testProfile(t)
	bin, _ := fakeQemuImg(t, infoReporting(1024*1024*1024))

	pr := &Provisioner{
		qemuImg: bin,
		fetch: func(url, dest string) error {
			return os.WriteFile(dest, []byte("base-image"), 0o644)
		},
	}

	if err := pr.Ensure(p); err != nil {
		t.Fatalf("first Ensure failed: %v", err)
	}
	bootSum := fileSum(t, p.BootDisk)
	seedSum := fileSum(t, p.SeedVolume)

	// Second run must not re-fetch and must leave both artifacts
	// byte-identical.
	pr.fetch = func(url, dest string) error {
		t.Error("fetch called on second Ensure")
		return nil
	}
	if err := pr.Ensure(p); err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}
	if fileSum(t, p.BootDisk) != bootSum {
		t.Error("boot disk changed on second Ensure")
	}
	if fileSum(t, p.SeedVolume) != seedSum {
		t.Error("seed volume changed on second Ensure")
	}
}

func TestEnsure_SeedRegeneratedOnCredentialChange(t *testing.T) {
	p := testProfile(t)
	bin, _ := fakeQemuImg(t, infoReporting(1024*1024*1024))
	pr := &Provisioner{
		qemuImg: bin,
		fetch: func(url, dest string) error {
			return os.WriteFile(dest, []byte("base-image"), 0o644)
		},
	}

	if err := pr.Ensure(p); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	seedSum := fileSum(t, p.SeedVolume)

	p.Password = "different"
	if err := pr.Ensure(p); err != nil {
		t.Fatalf("Ensure after credential change failed: %v", err)
	}
	if fileSum(t, p.SeedVolume) == seedSum {
		t.Error("seed volume not regenerated after password change")
	}
}

func TestEnsure_GrowsUndersizedDisk(t *testing.T) {
	p := testProfile(t)
	// Report half the declared size.
	bin, logPath := fakeQemuImg(t, infoReporting(512*1024*1024))
	pr := &Provisioner{qemuImg: bin, fetch: func(string, string) error {
		t.Error("fetch called although boot disk exists")
		return nil
	}}

	if err := os.WriteFile(p.BootDisk, []byte("existing"), 0o644); err != nil {
		t.Fatalf("failed to seed boot disk: %v", err)
	}
	if err := pr.Ensure(p); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	calls := readLog(t, logPath)
	want := fmt.Sprintf("resize %s %d", p.BootDisk, int64(1024)*1024*1024)
	if !strings.Contains(calls, want) {
		t.Errorf("resize not invoked with declared size:\n%s", calls)
	}
}

func TestEnsure_RecreatesCorruptDisk(t *testing.T) {
	p := testProfile(t)
	body := `case "$1" in
info) echo "qemu-img: Could not open image: Image is not in qcow2 format" >&2; exit 1 ;;
create) shift; while [ "$#" -gt 1 ]; do target="$1"; shift; done
        echo recreated > "$target"; exit 0 ;;
*) exit 1 ;;
esac
`
	// The create branch receives "-f qcow2 <path> <size>"; the loop
	// leaves the second-to-last argument (the path) in target.
	bin, logPath := fakeQemuImg(t, body)
	pr := &Provisioner{qemuImg: bin, fetch: func(string, string) error { return nil }}

	if err := os.WriteFile(p.BootDisk, []byte("garbage-not-a-disk"), 0o644); err != nil {
		t.Fatalf("failed to write corrupt disk: %v", err)
	}
	if err := pr.Ensure(p); err != nil {
		t.Fatalf("Ensure failed on corrupt disk: %v", err)
	}

	data, err := os.ReadFile(p.BootDisk)
	if err != nil {
		t.Fatalf("boot disk missing after recreate: %v", err)
	}
	if strings.TrimSpace(string(data)) != "recreated" {
		t.Errorf("boot disk not recreated, content: %q", data)
	}
	if !strings.Contains(readLog(t, logPath), "create -f qcow2") {
		t.Error("create not invoked for corrupt disk")
	}
}

func TestEnsure_NonFormatInspectionErrorDoesNotRecreate(t *testing.T) {
	p := testProfile(t)
	body := `case "$1" in
info) echo "qemu-img: Could not open image: Permission denied" >&2; exit 1 ;;
*) exit 1 ;;
esac
`
	bin, logPath := fakeQemuImg(t, body)
	pr := &Provisioner{qemuImg: bin, fetch: func(string, string) error { return nil }}

	if err := os.WriteFile(p.BootDisk, []byte("valid-but-unreadable"), 0o644); err != nil {
		t.Fatalf("failed to write boot disk: %v", err)
	}

	err := pr.Ensure(p)
	var perr *ProvisioningError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProvisioningError, got %v", err)
	}
	// Match the full create invocation: the temp dir path embeds this
	// test's name, which itself contains the substring "create".
	if strings.Contains(readLog(t, logPath), "create -f qcow2") {
		t.Error("recreate ran on a non-format inspection failure")
	}
	data, _ := os.ReadFile(p.BootDisk)
	if string(data) != "valid-but-unreadable" {
		t.Error("boot disk modified on a non-format inspection failure")
	}
}

func TestEnsure_FetchFailureLeavesNoArtifact(t *testing.T) {
	p := testProfile(t)
	bin, _ := fakeQemuImg(t, infoReporting(1024*1024*1024))
	pr := &Provisioner{qemuImg: bin, fetch: func(string, string) error {
		return errors.New("connection reset")
	}}

	err := pr.Ensure(p)
	var perr *ProvisioningError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProvisioningError, got %v", err)
	}
	if _, err := os.Stat(p.BootDisk); !os.IsNotExist(err) {
		t.Error("partial boot disk left at final path after failed fetch")
	}
}

func TestResize_ShrinkRequiresConfirmation(t *testing.T) {
	p := testProfile(t)
	// Current size is double the declared 1G.
	bin, logPath := fakeQemuImg(t, infoReporting(2*1024*1024*1024))
	pr := &Provisioner{qemuImg: bin, fetch: func(string, string) error { return nil }}

	if err := os.WriteFile(p.BootDisk, []byte("disk"), 0o644); err != nil {
		t.Fatalf("failed to write boot disk: %v", err)
	}

	err := pr.Resize(p, false)
	var verr *profile.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError without confirmation, got %v", err)
	}
	if strings.Contains(readLog(t, logPath), "resize") {
		t.Error("shrink executed without confirmation")
	}

	if err := pr.Resize(p, true); err != nil {
		t.Fatalf("confirmed shrink failed: %v", err)
	}
	if !strings.Contains(readLog(t, logPath), "resize --shrink") {
		t.Error("confirmed shrink did not pass --shrink")
	}
}

func TestDeleteArtifacts(t *testing.T) {
	pr := NewProvisioner()
	p := testProfile(t)
	for _, path := range []string{p.BootDisk, p.SeedVolume, p.SeedVolume + seedHashSuffix} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}

	if err := pr.DeleteArtifacts(p); err != nil {
		t.Fatalf("DeleteArtifacts failed: %v", err)
	}
	for _, path := range []string{p.BootDisk, p.SeedVolume, p.SeedVolume + seedHashSuffix} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s still present after delete", path)
		}
	}

	// Deleting already-deleted artifacts is a no-op.
	if err := pr.DeleteArtifacts(p); err != nil {
		t.Errorf("second DeleteArtifacts failed: %v", err)
	}
}
