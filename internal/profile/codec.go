package profile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// The stored record is a flat text format, one KEY="value" assignment per
// line. Unknown keys are ignored on load and missing keys are defaulted,
// so records written by older versions stay loadable without migration.
const (
	keyName          = "NAME"
	keyOSFamily      = "OS_FAMILY"
	keyOSVariant     = "OS_VARIANT"
	keyImageURL      = "IMAGE_URL"
	keyHostname      = "HOSTNAME"
	keyUsername      = "USERNAME"
	keyPassword      = "PASSWORD"
	keyDiskSize      = "DISK_SIZE"
	keyMemoryMB      = "MEMORY_MB"
	keyCPUs          = "CPUS"
	keySSHPort       = "SSH_PORT"
	keyBootDisk      = "BOOT_DISK"
	keySeedVolume    = "SEED_VOLUME"
	keyCreatedAt     = "CREATED_AT"
	keyPerfCache     = "PERF_CACHE"
	keyPerfIOThreads = "PERF_IO_THREADS"
	keyPerfNetDevice = "PERF_NET_DEVICE"
	keyPerfGPU       = "PERF_GPU"
	keyDisplayServer = "DISPLAY_SERVER"

	// Indexed keys: SSH_KEY_0, SSH_KEY_1, ... and FORWARD_0, FORWARD_1, ...
	keySSHKeyPrefix  = "SSH_KEY_"
	keyForwardPrefix = "FORWARD_"
)

// Encode serializes a profile to the flat record format. Key order is
// fixed so encoding is deterministic.
func Encode(p *Profile) []byte {
	var b strings.Builder
	writeKV := func(k, v string) {
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(escapeValue(v))
		b.WriteString("\"\n")
	}

	writeKV(keyName, p.Name)
	writeKV(keyOSFamily, p.OSFamily)
	writeKV(keyOSVariant, p.OSVariant)
	writeKV(keyImageURL, p.ImageURL)
	writeKV(keyHostname, p.Hostname)
	writeKV(keyUsername, p.Username)
	writeKV(keyPassword, p.Password)
	writeKV(keyDiskSize, p.DiskSize)
	writeKV(keyMemoryMB, strconv.Itoa(p.MemoryMB))
	writeKV(keyCPUs, strconv.Itoa(p.CPUs))
	writeKV(keySSHPort, strconv.Itoa(p.SSHPort))
	for i, fwd := range p.Forwards {
		writeKV(fmt.Sprintf("%s%d", keyForwardPrefix, i), fwd.String())
	}
	for i, key := range p.SSHKeys {
		writeKV(fmt.Sprintf("%s%d", keySSHKeyPrefix, i), key)
	}
	writeKV(keyBootDisk, p.BootDisk)
	writeKV(keySeedVolume, p.SeedVolume)
	writeKV(keyCreatedAt, p.CreatedAt.UTC().Format(time.RFC3339))
	writeKV(keyPerfCache, p.Perf.CacheMode)
	writeKV(keyPerfIOThreads, strconv.FormatBool(p.Perf.IOThreads))
	writeKV(keyPerfNetDevice, p.Perf.NetDevice)
	writeKV(keyPerfGPU, strconv.FormatBool(p.Perf.GPU))
	writeKV(keyDisplayServer, p.Perf.DisplayServer)

	return []byte(b.String())
}

// Decode parses a stored record. A malformed line fails with a ParseError
// and no partial profile is returned. Performance fields absent from the
// record are filled from DefaultPerfOptions.
func Decode(name string, data []byte) (*Profile, error) {
	p := &Profile{Perf: DefaultPerfOptions()}
	sshKeys := map[int]string{}
	forwards := map[int]PortForward{}

	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := parseLine(line)
		if !ok {
			return nil, &ParseError{Name: name, Line: i + 1, Text: line}
		}

		if err := applyField(p, sshKeys, forwards, key, value); err != nil {
			return nil, &ParseError{Name: name, Line: i + 1, Text: line}
		}
	}

	p.SSHKeys = collectIndexed(sshKeys)
	p.Forwards = collectForwards(forwards)
	return p, nil
}

// parseLine splits one KEY="value" assignment, unescaping the value.
func parseLine(line string) (key, value string, ok bool) {
	eq := strings.Index(line, "=")
	if eq <= 0 {
		return "", "", false
	}
	key = line[:eq]
	raw := line[eq+1:]
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return "", "", false
	}
	value, ok = unescapeValue(raw[1 : len(raw)-1])
	return key, value, ok
}

func applyField(p *Profile, sshKeys map[int]string, forwards map[int]PortForward, key, value string) error {
	switch key {
	case keyName:
		p.Name = value
	case keyOSFamily:
		p.OSFamily = value
	case keyOSVariant:
		p.OSVariant = value
	case keyImageURL:
		p.ImageURL = value
	case keyHostname:
		p.Hostname = value
	case keyUsername:
		p.Username = value
	case keyPassword:
		p.Password = value
	case keyDiskSize:
		p.DiskSize = value
	case keyMemoryMB:
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		p.MemoryMB = n
	case keyCPUs:
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		p.CPUs = n
	case keySSHPort:
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		p.SSHPort = n
	case keyBootDisk:
		p.BootDisk = value
	case keySeedVolume:
		p.SeedVolume = value
	case keyCreatedAt:
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return err
		}
		p.CreatedAt = t
	case keyPerfCache:
		p.Perf.CacheMode = value
	case keyPerfIOThreads:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		p.Perf.IOThreads = v
	case keyPerfNetDevice:
		p.Perf.NetDevice = value
	case keyPerfGPU:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		p.Perf.GPU = v
	case keyDisplayServer:
		p.Perf.DisplayServer = value
	default:
		switch {
		case strings.HasPrefix(key, keySSHKeyPrefix):
			idx, err := strconv.Atoi(strings.TrimPrefix(key, keySSHKeyPrefix))
			if err != nil {
				return err
			}
			sshKeys[idx] = value
		case strings.HasPrefix(key, keyForwardPrefix):
			idx, err := strconv.Atoi(strings.TrimPrefix(key, keyForwardPrefix))
			if err != nil {
				return err
			}
			fwd, err := ParsePortForward(value)
			if err != nil {
				return err
			}
			forwards[idx] = fwd
		default:
			// Unknown key: written by a newer version, ignore.
		}
	}
	return nil
}

func collectIndexed(m map[int]string) []string {
	if len(m) == 0 {
		return nil
	}
	idxs := make([]int, 0, len(m))
	for i := range m {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	out := make([]string, 0, len(m))
	for _, i := range idxs {
		out = append(out, m[i])
	}
	return out
}

func collectForwards(m map[int]PortForward) []PortForward {
	if len(m) == 0 {
		return nil
	}
	idxs := make([]int, 0, len(m))
	for i := range m {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	out := make([]PortForward, 0, len(m))
	for _, i := range idxs {
		out = append(out, m[i])
	}
	return out
}

// escapeValue makes any string safe for the one-line record format.
// Newlines must be escaped: a raw newline would split the value across
// lines and make the record unreadable.
func escapeValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	return s
}

func unescapeValue(s string) (string, bool) {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			switch r {
			case '\\', '"':
				b.WriteRune(r)
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			default:
				return "", false
			}
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if r == '"' {
			// Unescaped quote inside a value means a malformed line.
			return "", false
		}
		b.WriteRune(r)
	}
	if escaped {
		return "", false
	}
	return b.String(), true
}
