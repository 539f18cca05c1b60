// Package cloudinit generates the NoCloud seed content injected at first
// boot: user-data carrying hostname and login credentials, and meta-data
// carrying the instance identity.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/GehirnInc/crypt/sha512_crypt"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/tyuio302/idx-vps/internal/profile"
)

// UserData is the cloud-config user-data structure, marshaled to YAML
// behind the "#cloud-config" header.
type UserData struct {
	Hostname        string      `yaml:"hostname"`
	Users           []User      `yaml:"users"`
	SSHPasswordAuth bool        `yaml:"ssh_pwauth"`
	Chpasswd        *Chpasswd   `yaml:"chpasswd,omitempty"`
	Packages        []string    `yaml:"packages,omitempty"`
	WriteFiles      []WriteFile `yaml:"write_files,omitempty"`
}

// User is one entry of the cloud-config users list.
type User struct {
	Name              string   `yaml:"name"`
	Passwd            string   `yaml:"passwd,omitempty"`
	LockPasswd        bool     `yaml:"lock_passwd"`
	Shell             string   `yaml:"shell"`
	Sudo              string   `yaml:"sudo"`
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys,omitempty"`
}

// Chpasswd controls password expiry behaviour.
type Chpasswd struct {
	Expire bool `yaml:"expire"`
}

// WriteFile is a file materialized in the guest at first boot.
type WriteFile struct {
	Path        string `yaml:"path"`
	Permissions string `yaml:"permissions"`
	Content     string `yaml:"content"`
}

// MetaData is the NoCloud meta-data structure.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// xorgDummyConf is the guest-side dummy display configuration injected
// when GPU passthrough runs its display server inside the guest.
const xorgDummyConf = `Section "Device"
    Identifier "dummy"
    Driver "dummy"
    VideoRam 256000
EndSection

Section "Monitor"
    Identifier "dummy"
    HorizSync 5.0-1000.0
    VertRefresh 5.0-200.0
EndSection

Section "Screen"
    Identifier "dummy"
    Device "dummy"
    Monitor "dummy"
    DefaultDepth 24
    SubSection "Display"
        Depth 24
        Modes "1280x800"
    EndSubSection
EndSection
`

// HashPassword returns the sha512-crypt hash of a password. The salt is
// derived from the VM and user names so regenerating the seed for an
// unchanged profile emits identical bytes.
func HashPassword(password, vmName, username string) (string, error) {
	sum := sha256.Sum256([]byte(vmName + ":" + username))
	salt := hex.EncodeToString(sum[:8])

	c := sha512_crypt.New()
	hash, err := c.Generate([]byte(password), []byte(sha512_crypt.MagicPrefix+salt))
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// GenerateUserData renders the user-data document for a profile. The
// password enters the seed only in hashed form.
func GenerateUserData(p *profile.Profile) (string, error) {
	if p == nil {
		return "", fmt.Errorf("profile cannot be nil")
	}

	hash, err := HashPassword(p.Password, p.Name, p.Username)
	if err != nil {
		return "", err
	}

	userData := UserData{
		Hostname: p.Hostname,
		Users: []User{{
			Name:              p.Username,
			Passwd:            hash,
			LockPasswd:        false,
			Shell:             "/bin/bash",
			Sudo:              "ALL=(ALL) NOPASSWD:ALL",
			SSHAuthorizedKeys: p.SSHKeys,
		}},
		SSHPasswordAuth: true,
		Chpasswd:        &Chpasswd{Expire: false},
	}

	// GPU passthrough with a guest-side display server gets the dummy
	// display stack installed through the seed.
	if p.Perf.GPU && p.Perf.DisplayServer == profile.DisplayGuest {
		userData.Packages = []string{"xserver-xorg-video-dummy", "mesa-utils"}
		userData.WriteFiles = []WriteFile{{
			Path:        "/etc/X11/xorg.conf.d/10-dummy.conf",
			Permissions: "0644",
			Content:     xorgDummyConf,
		}}
	}

	yamlBytes, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data: %w", err)
	}

	return "#cloud-config\n" + string(yamlBytes), nil
}

// GenerateMetaData renders the meta-data document. The instance-id is a
// name-derived UUID: stable across regeneration for the same VM, changed
// when the VM is recreated under a new name, which is what makes
// cloud-init re-run after a destroy/recreate cycle.
func GenerateMetaData(p *profile.Profile) (string, error) {
	if p == nil {
		return "", fmt.Errorf("profile cannot be nil")
	}

	metaData := MetaData{
		InstanceID:    uuid.NewSHA1(uuid.NameSpaceDNS, []byte("idx-vps."+p.Name)).String(),
		LocalHostname: p.Hostname,
	}

	yamlBytes, err := yaml.Marshal(&metaData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data: %w", err)
	}
	return string(yamlBytes), nil
}
