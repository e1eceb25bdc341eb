// Package jsonfile keeps the whole profile collection in a single JSON
// document keyed by profile id.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/janisto/profile-api/internal/service/profile"
)

type filePreferences struct {
	Length    int  `json:"length"`
	Uppercase bool `json:"uppercase"`
	Lowercase bool `json:"lowercase"`
	Numbers   bool `json:"numbers"`
	Symbols   bool `json:"symbols"`
}

// fileProfile is the on-disk record. Documents written before timestamps
// existed decode with zero times.
type fileProfile struct {
	ID          string          `json:"id"`
	Name        string          `json:"nombre_perfil"`
	Email       string          `json:"email"`
	Age         *int            `json:"edad"`
	Preferences filePreferences `json:"preferencias"`
	History     []any           `json:"historial"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func toFile(p *profile.Profile) fileProfile {
	return fileProfile{
		ID:          p.ID,
		Name:        p.Name,
		Email:       p.Email,
		Age:         p.Age,
		Preferences: filePreferences(p.Preferences),
		History:     p.History,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (fp fileProfile) toProfile(id string) *profile.Profile {
	p := &profile.Profile{
		ID:          id,
		Name:        fp.Name,
		Email:       profile.NormalizeEmail(fp.Email),
		Age:         fp.Age,
		Preferences: profile.Preferences(fp.Preferences),
		History:     fp.History,
		CreatedAt:   fp.CreatedAt.UTC(),
		UpdatedAt:   fp.UpdatedAt.UTC(),
	}
	if p.History == nil {
		p.History = []any{}
	}
	return p
}

// Store implements profile.Store on a JSON file. The collection is held in
// memory; every write rewrites the file atomically and only then replaces
// the in-memory copy, so a failed write leaves no trace.
type Store struct {
	path string

	mu       sync.RWMutex
	profiles map[string]*profile.Profile
	emails   map[string]string // email -> id
}

// Open loads path. A missing or empty file is an empty collection; a file
// that is not valid JSON is an error so it is never silently overwritten.
func Open(path string) (*Store, error) {
	s := &Store{
		path:     path,
		profiles: make(map[string]*profile.Profile),
		emails:   make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}

	var records map[string]fileProfile
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for id, rec := range records {
		p := rec.toProfile(id)
		if owner, dup := s.emails[p.Email]; dup {
			return nil, fmt.Errorf("decode %s: email %q shared by %s and %s", path, p.Email, owner, id)
		}
		s.profiles[id] = p
		s.emails[p.Email] = id
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// persist writes profiles to a temp file next to the target and renames it into place.
func (s *Store) persist(profiles map[string]*profile.Profile) error {
	records := make(map[string]fileProfile, len(profiles))
	for id, p := range profiles {
		records[id] = toFile(p)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return err
	}

	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return err
	}
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, profile.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *Store) List(_ context.Context, filter profile.Filter) ([]profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]profile.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if filter.Match(p) {
			out = append(out, *p.Clone())
		}
	}
	profile.SortProfiles(out)
	return out, nil
}

func (s *Store) Insert(_ context.Context, p *profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emails[p.Email]; taken {
		return profile.ErrEmailInUse
	}
	if _, exists := s.profiles[p.ID]; exists {
		return profile.WrapStorage("file insert", fmt.Errorf("duplicate profile id %s", p.ID))
	}

	next := maps.Clone(s.profiles)
	next[p.ID] = p.Clone()
	if err := s.persist(next); err != nil {
		return profile.WrapStorage("file write", err)
	}

	s.profiles = next
	s.emails[p.Email] = p.ID
	return nil
}

func (s *Store) Update(_ context.Context, id string, params profile.UpdateParams) (*profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.profiles[id]
	if !ok {
		return nil, profile.ErrNotFound
	}

	updated := current.Clone()
	params.Apply(updated)
	emailChanged := updated.Email != current.Email
	if emailChanged {
		if owner, taken := s.emails[updated.Email]; taken && owner != id {
			return nil, profile.ErrEmailInUse
		}
	}

	next := maps.Clone(s.profiles)
	next[id] = updated
	if err := s.persist(next); err != nil {
		return nil, profile.WrapStorage("file write", err)
	}

	s.profiles = next
	if emailChanged {
		delete(s.emails, current.Email)
		s.emails[updated.Email] = id
	}
	return updated.Clone(), nil
}

func (s *Store) Delete(_ context.Context, id string) (*profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.profiles[id]
	if !ok {
		return nil, profile.ErrNotFound
	}

	next := maps.Clone(s.profiles)
	delete(next, id)
	if err := s.persist(next); err != nil {
		return nil, profile.WrapStorage("file write", err)
	}

	s.profiles = next
	delete(s.emails, current.Email)
	return current.Clone(), nil
}

func (s *Store) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.emails[email]
	return ok, nil
}

var _ profile.Store = (*Store)(nil)
