package profile

import (
	"context"
	"sync"
)

// MemoryStore implements Store with an in-process map.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	emails   map[string]string // email -> id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*Profile),
		emails:   make(map[string]string),
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.profiles[id]
	if !exists {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) List(_ context.Context, filter Filter) ([]Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		if filter.Match(p) {
			out = append(out, *p.Clone())
		}
	}
	SortProfiles(out)
	return out, nil
}

func (m *MemoryStore) Insert(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.emails[p.Email]; exists {
		return ErrEmailInUse
	}
	if _, exists := m.profiles[p.ID]; exists {
		return &StorageError{Op: "insert", Err: errDuplicateID}
	}
	m.profiles[p.ID] = p.Clone()
	m.emails[p.Email] = p.ID
	return nil
}

func (m *MemoryStore) Update(_ context.Context, id string, params UpdateParams) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.profiles[id]
	if !exists {
		return nil, ErrNotFound
	}

	next := current.Clone()
	params.Apply(next)
	if next.Email != current.Email {
		if owner, taken := m.emails[next.Email]; taken && owner != id {
			return nil, ErrEmailInUse
		}
		delete(m.emails, current.Email)
		m.emails[next.Email] = id
	}
	m.profiles[id] = next
	return next.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.profiles[id]
	if !exists {
		return nil, ErrNotFound
	}
	delete(m.profiles, id)
	delete(m.emails, p.Email)
	return p, nil
}

func (m *MemoryStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.emails[email]
	return exists, nil
}

// Len returns the number of stored profiles.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.profiles)
}

// Clear removes all profiles (useful for test cleanup).
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = make(map[string]*Profile)
	m.emails = make(map[string]string)
}

// Compile-time interface checks
var (
	_ Store   = (*MemoryStore)(nil)
	_ Service = (*ProfileService)(nil)
)
