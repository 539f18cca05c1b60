package profile

import (
	"fmt"
	"net"
)

// portProbe checks whether a host port can currently be bound. Replaced
// in tests.
var portProbe = func(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// CheckPortConflicts verifies that none of a profile's reserved host
// ports collide with another stored profile's reserved ports or with a
// port currently bound on the host. excludeName skips the profile's own
// record during edits.
func (s *Store) CheckPortConflicts(p *Profile, excludeName string) error {
	names, err := s.List()
	if err != nil {
		return err
	}

	reserved := map[int]string{}
	for _, name := range names {
		if name == excludeName {
			continue
		}
		other, err := s.Load(name)
		if err != nil {
			return fmt.Errorf("failed to load profile %q for conflict check: %w", name, err)
		}
		for _, port := range other.ReservedPorts() {
			reserved[port] = name
		}
	}

	for _, port := range p.ReservedPorts() {
		if owner, ok := reserved[port]; ok {
			return &ConflictError{Resource: "port", Detail: fmt.Sprintf("port %d is reserved by profile %q", port, owner)}
		}
		if !portProbe(port) {
			return &ConflictError{Resource: "port", Detail: fmt.Sprintf("port %d is already bound on the host", port)}
		}
	}
	return nil
}
