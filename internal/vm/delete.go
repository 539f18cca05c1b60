package vm

import "fmt"

// Delete stops a VM if needed, removes its disk artifacts and finally
// its profile record. The record goes last: if artifact removal fails
// the VM stays listed so the failure is visible and retryable.
func (m *Manager) Delete(name string) error {
	p, err := m.store.Load(name)
	if err != nil {
		return err
	}

	if _, err := m.procs.Stop(p); err != nil {
		return fmt.Errorf("failed to stop %s before delete: %w", name, err)
	}
	if err := m.images.DeleteArtifacts(p); err != nil {
		return fmt.Errorf("failed to remove artifacts for %s: %w", name, err)
	}
	return m.store.Delete(name)
}
