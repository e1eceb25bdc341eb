// Package redis stores profiles as JSON documents in Redis.
//
// Keys share one hash tag so every script touches a single cluster slot:
//
//	{profiles}:profile:<id>   profile document
//	{profiles}:email:<email>  id owning the email
//	{profiles}:ids            set of all ids
package redis

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/janisto/profile-api/internal/service/profile"
)

// DefaultKeyPrefix groups every key under one hash slot.
const DefaultKeyPrefix = "{profiles}"

// maxAttempts bounds read-modify-write retries when a document changes
// between the read and the conditional write.
const maxAttempts = 5

var (
	//go:embed insert.lua
	insertLua string
	//go:embed update.lua
	updateLua string
	//go:embed delete.lua
	deleteLua string

	insertScript = rueidis.NewLuaScript(insertLua)
	updateScript = rueidis.NewLuaScript(updateLua)
	deleteScript = rueidis.NewLuaScript(deleteLua)
)

// Script replies.
const (
	replyOK         = "ok"
	replyNotFound   = "not_found"
	replyEmailInUse = "email_in_use"
	replyDuplicate  = "duplicate_id"
	replyConflict   = "conflict"
)

var errTooManyConflicts = errors.New("document kept changing during update")

type preferencesDoc struct {
	Length    int  `json:"length"`
	Uppercase bool `json:"uppercase"`
	Lowercase bool `json:"lowercase"`
	Numbers   bool `json:"numbers"`
	Symbols   bool `json:"symbols"`
}

type document struct {
	ID          string         `json:"id"`
	Name        string         `json:"nombre_perfil"`
	Email       string         `json:"email"`
	Age         *int           `json:"edad"`
	Preferences preferencesDoc `json:"preferencias"`
	History     []any          `json:"historial"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func encode(p *profile.Profile) (string, error) {
	h := p.History
	if h == nil {
		h = []any{}
	}
	b, err := json.Marshal(document{
		ID:          p.ID,
		Name:        p.Name,
		Email:       p.Email,
		Age:         p.Age,
		Preferences: preferencesDoc(p.Preferences),
		History:     h,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(raw string) (*profile.Profile, error) {
	var d document
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, err
	}
	p := &profile.Profile{
		ID:          d.ID,
		Name:        d.Name,
		Email:       d.Email,
		Age:         d.Age,
		Preferences: profile.Preferences(d.Preferences),
		History:     d.History,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	if p.History == nil {
		p.History = []any{}
	}
	return p, nil
}

// Store implements profile.Store on Redis. Writes run as Lua scripts;
// updates and deletes are compare-and-set against the document the caller read.
type Store struct {
	client rueidis.Client
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix scopes all keys under prefix. Wrap it in braces to keep a
// hash tag on Redis Cluster.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if p := strings.TrimSuffix(strings.TrimSpace(prefix), ":"); p != "" {
			s.prefix = p
		}
	}
}

// New wraps an existing client.
func New(client rueidis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) profileKey(id string) string { return s.prefix + ":profile:" + id }
func (s *Store) emailKey(email string) string { return s.prefix + ":email:" + email }
func (s *Store) idsKey() string { return s.prefix + ":ids" }

// load returns the decoded profile along with the raw document for CAS.
func (s *Store) load(ctx context.Context, id string) (*profile.Profile, string, error) {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(s.profileKey(id)).Build()).ToString()
	if rueidis.IsRedisNil(err) {
		return nil, "", profile.ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	p, err := decode(raw)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", id, err)
	}
	return p, raw, nil
}

func (s *Store) Get(ctx context.Context, id string) (*profile.Profile, error) {
	p, _, err := s.load(ctx, id)
	if err != nil {
		return nil, profile.WrapStorage("redis get", err)
	}
	return p, nil
}

func (s *Store) List(ctx context.Context, filter profile.Filter) ([]profile.Profile, error) {
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.idsKey()).Build()).AsStrSlice()
	if err != nil {
		return nil, profile.WrapStorage("redis list", err)
	}
	if len(ids) == 0 {
		return []profile.Profile{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.profileKey(id)
	}
	msgs, err := s.client.Do(ctx, s.client.B().Mget().Key(keys...).Build()).ToArray()
	if err != nil {
		return nil, profile.WrapStorage("redis list", err)
	}

	out := make([]profile.Profile, 0, len(msgs))
	for i, msg := range msgs {
		raw, err := msg.ToString()
		if rueidis.IsRedisNil(err) {
			// deleted between SMEMBERS and MGET
			continue
		}
		if err != nil {
			return nil, profile.WrapStorage("redis list", err)
		}
		p, err := decode(raw)
		if err != nil {
			return nil, profile.WrapStorage("redis list", fmt.Errorf("decode %s: %w", ids[i], err))
		}
		if filter.Match(p) {
			out = append(out, *p)
		}
	}
	profile.SortProfiles(out)
	return out, nil
}

func (s *Store) Insert(ctx context.Context, p *profile.Profile) error {
	doc, err := encode(p)
	if err != nil {
		return profile.WrapStorage("redis insert", err)
	}

	reply, err := insertScript.Exec(ctx, s.client,
		[]string{s.profileKey(p.ID), s.emailKey(p.Email), s.idsKey()},
		[]string{p.ID, doc},
	).ToString()
	if err != nil {
		return profile.WrapStorage("redis insert", err)
	}

	switch reply {
	case replyOK:
		return nil
	case replyEmailInUse:
		return profile.ErrEmailInUse
	case replyDuplicate:
		return profile.WrapStorage("redis insert", fmt.Errorf("duplicate profile id %s", p.ID))
	default:
		return profile.WrapStorage("redis insert", fmt.Errorf("unexpected script reply %q", reply))
	}
}

func (s *Store) Update(ctx context.Context, id string, params profile.UpdateParams) (*profile.Profile, error) {
	for range maxAttempts {
		current, raw, err := s.load(ctx, id)
		if err != nil {
			return nil, profile.WrapStorage("redis update", err)
		}

		updated := current.Clone()
		params.Apply(updated)
		doc, err := encode(updated)
		if err != nil {
			return nil, profile.WrapStorage("redis update", err)
		}

		reply, err := updateScript.Exec(ctx, s.client,
			[]string{s.profileKey(id), s.emailKey(current.Email), s.emailKey(updated.Email)},
			[]string{id, raw, doc},
		).ToString()
		if err != nil {
			return nil, profile.WrapStorage("redis update", err)
		}

		switch reply {
		case replyOK:
			return updated, nil
		case replyNotFound:
			return nil, profile.ErrNotFound
		case replyEmailInUse:
			return nil, profile.ErrEmailInUse
		case replyConflict:
			continue
		default:
			return nil, profile.WrapStorage("redis update", fmt.Errorf("unexpected script reply %q", reply))
		}
	}
	return nil, profile.WrapStorage("redis update", errTooManyConflicts)
}

func (s *Store) Delete(ctx context.Context, id string) (*profile.Profile, error) {
	for range maxAttempts {
		current, raw, err := s.load(ctx, id)
		if err != nil {
			return nil, profile.WrapStorage("redis delete", err)
		}

		reply, err := deleteScript.Exec(ctx, s.client,
			[]string{s.profileKey(id), s.emailKey(current.Email), s.idsKey()},
			[]string{id, raw},
		).ToString()
		if err != nil {
			return nil, profile.WrapStorage("redis delete", err)
		}

		switch reply {
		case replyOK:
			return current, nil
		case replyNotFound:
			return nil, profile.ErrNotFound
		case replyConflict:
			continue
		default:
			return nil, profile.WrapStorage("redis delete", fmt.Errorf("unexpected script reply %q", reply))
		}
	}
	return nil, profile.WrapStorage("redis delete", errTooManyConflicts)
}

func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Exists().Key(s.emailKey(email)).Build()).AsInt64()
	if err != nil {
		return false, profile.WrapStorage("redis exists", err)
	}
	return n > 0, nil
}

// Clear removes every key under the store prefix.
func (s *Store) Clear(ctx context.Context) error {
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.idsKey()).Build()).AsStrSlice()
	if err != nil {
		return err
	}
	keys := []string{s.idsKey()}
	for _, id := range ids {
		p, _, err := s.load(ctx, id)
		if errors.Is(err, profile.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		keys = append(keys, s.profileKey(id), s.emailKey(p.Email))
	}
	return s.client.Do(ctx, s.client.B().Del().Key(keys...).Build()).Error()
}

var _ profile.Store = (*Store)(nil)
