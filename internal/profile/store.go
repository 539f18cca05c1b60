package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	recordSuffix = ".conf"

	dirPermissions  = 0o755
	filePermissions = 0o600
)

// Store persists profiles as one flat record file per VM under a single
// directory.
type Store struct {
	dir string
}

// DefaultDir returns the default profile directory,
// $XDG_DATA_HOME/idx-vps/profiles (or ~/.local/share/idx-vps/profiles).
func DefaultDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "idx-vps", "profiles"), nil
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create profile directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) recordPath(name string) string {
	return filepath.Join(s.dir, name+recordSuffix)
}

// Load reads and decodes a profile. A missing record reports ErrNotFound;
// a malformed record reports a ParseError with no partial profile.
func (s *Store) Load(name string) (*Profile, error) {
	data, err := os.ReadFile(s.recordPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("profile %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read profile %q: %w", name, err)
	}
	return Decode(name, data)
}

// Save writes a profile record, overwriting any existing one. Used by
// edit flows; creation goes through Create so an existing record is never
// silently replaced.
func (s *Store) Save(p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := os.WriteFile(s.recordPath(p.Name), Encode(p), filePermissions); err != nil {
		return fmt.Errorf("failed to write profile %q: %w", p.Name, err)
	}
	return nil
}

// Create writes a new profile record. A name collision fails with a
// ConflictError and leaves the existing record untouched.
func (s *Store) Create(p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.recordPath(p.Name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePermissions)
	if err != nil {
		if os.IsExist(err) {
			return &ConflictError{Resource: "name", Detail: fmt.Sprintf("profile %q already exists", p.Name)}
		}
		return fmt.Errorf("failed to create profile %q: %w", p.Name, err)
	}
	_, werr := f.Write(Encode(p))
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("failed to write profile %q: %w", p.Name, werr)
	}
	if cerr != nil {
		return fmt.Errorf("failed to write profile %q: %w", p.Name, cerr)
	}
	return nil
}

// List returns the names of all stored profiles in lexicographic order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), recordSuffix))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a profile record. Deleting an absent record reports
// ErrNotFound.
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.recordPath(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("profile %q: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to delete profile %q: %w", name, err)
	}
	return nil
}
