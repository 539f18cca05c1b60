package vm

import (
	"sort"

	"github.com/tyuio302/idx-vps/internal/profile"
	"github.com/tyuio302/idx-vps/internal/supervisor"
)

// mockStore is an in-memory ProfileStore. The shared ops log records
// call order across all mocks.
type mockStore struct {
	profiles    map[string]*profile.Profile
	conflictErr error
	createErr   error
	saveErr     error
	deleteErr   error
	ops         *[]string

	lastExclude string
}

func newMockStore() *mockStore {
	return &mockStore{profiles: map[string]*profile.Profile{}, ops: &[]string{}}
}

func (s *mockStore) log(op string) {
	*s.ops = append(*s.ops, op)
}

func (s *mockStore) Load(name string) (*profile.Profile, error) {
	p, ok := s.profiles[name]
	if !ok {
		return nil, profile.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *mockStore) Save(p *profile.Profile) error {
	s.log("store.save")
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *p
	s.profiles[p.Name] = &cp
	return nil
}

func (s *mockStore) Create(p *profile.Profile) error {
	s.log("store.create")
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.profiles[p.Name]; ok {
		return &profile.ConflictError{Resource: "profile", Detail: p.Name + " already exists"}
	}
	cp := *p
	s.profiles[p.Name] = &cp
	return nil
}

func (s *mockStore) List() ([]string, error) {
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *mockStore) Delete(name string) error {
	s.log("store.delete")
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.profiles, name)
	return nil
}

func (s *mockStore) CheckPortConflicts(p *profile.Profile, excludeName string) error {
	s.lastExclude = excludeName
	return s.conflictErr
}

type mockProvisioner struct {
	ensureErr error
	resizeErr error
	deleteErr error
	ops       *[]string

	ensured     []string
	resized     []string
	removed     []string
	allowShrink bool
}

func (pr *mockProvisioner) log(op string) {
	*pr.ops = append(*pr.ops, op)
}

func (pr *mockProvisioner) Ensure(p *profile.Profile) error {
	pr.log("images.ensure")
	if pr.ensureErr != nil {
		return pr.ensureErr
	}
	pr.ensured = append(pr.ensured, p.Name)
	return nil
}

func (pr *mockProvisioner) Resize(p *profile.Profile, allowShrink bool) error {
	pr.log("images.resize")
	if pr.resizeErr != nil {
		return pr.resizeErr
	}
	pr.resized = append(pr.resized, p.Name)
	pr.allowShrink = allowShrink
	return nil
}

func (pr *mockProvisioner) DeleteArtifacts(p *profile.Profile) error {
	pr.log("images.delete")
	if pr.deleteErr != nil {
		return pr.deleteErr
	}
	pr.removed = append(pr.removed, p.Name)
	return nil
}

type mockSupervisor struct {
	running  map[string]bool
	startErr error
	stopErr  error
	ops      *[]string

	started  []string
	lastWait bool
}

func newMockSupervisor() *mockSupervisor {
	return &mockSupervisor{running: map[string]bool{}, ops: &[]string{}}
}

func (sup *mockSupervisor) log(op string) {
	*sup.ops = append(*sup.ops, op)
}

func (sup *mockSupervisor) IsRunning(p *profile.Profile) bool {
	return sup.running[p.Name]
}

func (sup *mockSupervisor) StateOf(p *profile.Profile) supervisor.State {
	if sup.running[p.Name] {
		return supervisor.StateRunning
	}
	return supervisor.StateStopped
}

func (sup *mockSupervisor) Start(p *profile.Profile, opts supervisor.StartOptions) error {
	sup.log("procs.start")
	if sup.startErr != nil {
		return sup.startErr
	}
	sup.running[p.Name] = true
	sup.started = append(sup.started, p.Name)
	sup.lastWait = opts.Wait
	return nil
}

func (sup *mockSupervisor) Stop(p *profile.Profile) (bool, error) {
	sup.log("procs.stop")
	if sup.stopErr != nil {
		return false, sup.stopErr
	}
	wasRunning := sup.running[p.Name]
	sup.running[p.Name] = false
	return wasRunning, nil
}
