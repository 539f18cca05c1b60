// Package image ensures a VM's boot disk and cloud-init seed volume
// exist and match the declared size and identity. Every step is
// idempotent: repeated Ensure calls with an unchanged profile do no
// redundant work and leave the artifacts byte-identical.
package image

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tyuio302/idx-vps/internal/cloudinit"
	"github.com/tyuio302/idx-vps/internal/profile"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644

	// seedHashSuffix names the sidecar recording which seed content the
	// ISO was generated from; it is what makes seed regeneration skip
	// work when nothing changed.
	seedHashSuffix = ".sha256"
)

// ProvisioningError reports a download or seed-generation failure. It is
// fatal to the current operation and guarantees no partial artifact was
// left at a final path.
type ProvisioningError struct {
	Op  string
	Err error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning failed during %s: %v", e.Op, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// DefaultDir returns the default machine artifact directory,
// $XDG_DATA_HOME/idx-vps/machines.
func DefaultDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "idx-vps", "machines"), nil
}

// Provisioner materializes boot disks and seed volumes.
type Provisioner struct {
	// qemuImg is the qemu-img executable; tests point it at a stand-in.
	qemuImg string
	// fetch downloads a URL to a local file; see fetch.go.
	fetch func(url, dest string) error
}

// NewProvisioner creates a provisioner using the real qemu-img binary
// and HTTP downloads.
func NewProvisioner() *Provisioner {
	return &Provisioner{
		qemuImg: "qemu-img",
		fetch:   fetchURL,
	}
}

// Ensure makes the profile's boot disk and seed volume exist and match
// the declared configuration. Re-entrant: each step checks before it
// acts.
func (pr *Provisioner) Ensure(p *profile.Profile) error {
	if err := os.MkdirAll(filepath.Dir(p.BootDisk), dirPermissions); err != nil {
		return &ProvisioningError{Op: "prepare", Err: err}
	}

	if err := pr.ensureBootDisk(p); err != nil {
		return err
	}
	if err := pr.ensureSize(p); err != nil {
		return err
	}
	if err := pr.ensureSeed(p); err != nil {
		return err
	}
	return nil
}

// ensureBootDisk downloads the base image if the boot disk is absent.
func (pr *Provisioner) ensureBootDisk(p *profile.Profile) error {
	if _, err := os.Stat(p.BootDisk); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return &ProvisioningError{Op: "boot disk check", Err: err}
	}

	log.Printf("Fetching base image for %q from %s...", p.Name, p.ImageURL)
	if err := pr.fetch(p.ImageURL, p.BootDisk); err != nil {
		return &ProvisioningError{Op: "image download", Err: err}
	}
	return nil
}

// ensureSize grows the boot disk to the declared size. Shrinking is
// destructive and only happens through Resize with explicit
// confirmation; a declared size below the current one is left alone
// here. A disk that is not a valid image is recreated fresh; any other
// inspection failure is surfaced untouched so a permission problem can
// never destroy data.
func (pr *Provisioner) ensureSize(p *profile.Profile) error {
	declaredBytes := int64(p.DiskSizeMB()) * 1024 * 1024

	currentBytes, err := pr.virtualSize(p.BootDisk)
	if err != nil {
		if !isFormatError(err) {
			return &ProvisioningError{Op: "disk inspection", Err: err}
		}
		log.Printf("Boot disk for %q is not a valid disk image, recreating at %s...", p.Name, p.DiskSize)
		return pr.recreate(p.BootDisk, declaredBytes)
	}

	if currentBytes >= declaredBytes {
		return nil
	}

	if out, err := pr.runQemuImg("resize", p.BootDisk, fmt.Sprintf("%d", declaredBytes)); err != nil {
		return &ProvisioningError{Op: "disk resize", Err: fmt.Errorf("%w: %s", err, out)}
	}
	return nil
}

// Resize changes the boot disk to the declared size, including shrinks
// when the operator confirmed one. Shrinking is unchecked at the
// hypervisor level and may destroy guest data.
func (pr *Provisioner) Resize(p *profile.Profile, allowShrink bool) error {
	declaredBytes := int64(p.DiskSizeMB()) * 1024 * 1024

	currentBytes, err := pr.virtualSize(p.BootDisk)
	if err != nil {
		return &ProvisioningError{Op: "disk inspection", Err: err}
	}

	switch {
	case currentBytes == declaredBytes:
		return nil
	case declaredBytes < currentBytes && !allowShrink:
		return &profile.ValidationError{
			Field:  "disk-size",
			Reason: fmt.Sprintf("shrinking from %d to %d bytes requires explicit confirmation", currentBytes, declaredBytes),
		}
	case declaredBytes < currentBytes:
		if out, err := pr.runQemuImg("resize", "--shrink", p.BootDisk, fmt.Sprintf("%d", declaredBytes)); err != nil {
			return &ProvisioningError{Op: "disk shrink", Err: fmt.Errorf("%w: %s", err, out)}
		}
		return nil
	default:
		if out, err := pr.runQemuImg("resize", p.BootDisk, fmt.Sprintf("%d", declaredBytes)); err != nil {
			return &ProvisioningError{Op: "disk resize", Err: fmt.Errorf("%w: %s", err, out)}
		}
		return nil
	}
}

// recreate replaces the boot disk with a fresh empty image at the
// declared size. Recovery path for corrupt disks only.
func (pr *Provisioner) recreate(path string, sizeBytes int64) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &ProvisioningError{Op: "disk recreate", Err: err}
	}
	if out, err := pr.runQemuImg("create", "-f", "qcow2", path, fmt.Sprintf("%d", sizeBytes)); err != nil {
		return &ProvisioningError{Op: "disk recreate", Err: fmt.Errorf("%w: %s", err, out)}
	}
	return nil
}

// ensureSeed regenerates the seed ISO when its content would differ from
// what the current profile demands. The content hash sidecar is the
// comparison key: identity or credential mutations change the rendered
// documents and therefore the hash.
func (pr *Provisioner) ensureSeed(p *profile.Profile) error {
	userData, metaData, err := cloudinit.Documents(p)
	if err != nil {
		return &ProvisioningError{Op: "seed generation", Err: err}
	}

	sum := sha256.Sum256([]byte(userData + "\x00" + metaData))
	want := hex.EncodeToString(sum[:])

	hashPath := p.SeedVolume + seedHashSuffix
	if current, err := os.ReadFile(hashPath); err == nil && string(current) == want {
		if _, err := os.Stat(p.SeedVolume); err == nil {
			return nil
		}
	}

	isoData, err := cloudinit.GenerateISO(p)
	if err != nil {
		return &ProvisioningError{Op: "seed generation", Err: err}
	}

	if err := writeFileAtomic(p.SeedVolume, isoData); err != nil {
		return &ProvisioningError{Op: "seed write", Err: err}
	}
	if err := os.WriteFile(hashPath, []byte(want), filePermissions); err != nil {
		return &ProvisioningError{Op: "seed write", Err: err}
	}
	return nil
}

// DeleteArtifacts removes the boot disk, seed volume and seed sidecar.
// Callers remove the profile record only after this succeeds so a
// failure never leaves a record pointing at half-deleted artifacts.
func (pr *Provisioner) DeleteArtifacts(p *profile.Profile) error {
	for _, path := range []string{p.BootDisk, p.SeedVolume, p.SeedVolume + seedHashSuffix} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	// Drop the machine directory if it is now empty.
	if dir := filepath.Dir(p.BootDisk); dir != "" && dir != "." {
		_ = os.Remove(dir)
	}
	return nil
}

// virtualSize inspects a disk image and returns its virtual size.
func (pr *Provisioner) virtualSize(path string) (int64, error) {
	out, err := pr.runQemuImg("info", "-f", "qcow2", "--output=json", path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", err, out)
	}

	var info struct {
		VirtualSize int64  `json:"virtual-size"`
		Format      string `json:"format"`
	}
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return 0, fmt.Errorf("failed to parse qemu-img info output: %w", err)
	}
	return info.VirtualSize, nil
}

func (pr *Provisioner) runQemuImg(args ...string) (string, error) {
	cmd := exec.Command(pr.qemuImg, args...)
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// isFormatError reports whether a qemu-img failure is specifically a
// disk-format problem. Anything else (permissions, missing binary, I/O
// errors) must not trigger the recreate path.
func isFormatError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "not in qcow2 format") ||
		strings.Contains(msg, "Invalid qcow2") ||
		strings.Contains(msg, "could not read qcow2 header")
}

// writeFileAtomic writes data to a temporary file in the destination
// directory and renames it into place, so a crash mid-write never
// leaves a corrupt file at the final path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, filePermissions); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
