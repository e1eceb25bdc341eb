package profile

import (
	"slices"
	"strings"
	"time"
)

// Default preference values assigned at creation.
const (
	DefaultLength    = 16
	DefaultUppercase = true
	DefaultLowercase = true
	DefaultNumbers   = true
	DefaultSymbols   = true
)

// Preferences is the password-generation settings bundle attached to a profile.
type Preferences struct {
	Length    int
	Uppercase bool
	Lowercase bool
	Numbers   bool
	Symbols   bool
}

// DefaultPreferences returns the preferences every new profile starts with.
func DefaultPreferences() Preferences {
	return Preferences{
		Length:    DefaultLength,
		Uppercase: DefaultUppercase,
		Lowercase: DefaultLowercase,
		Numbers:   DefaultNumbers,
		Symbols:   DefaultSymbols,
	}
}

// Profile represents stored profile data.
type Profile struct {
	ID          string
	Name        string
	Email       string
	Age         *int
	Preferences Preferences
	History     []any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a copy that shares no mutable state with p.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	if p.Age != nil {
		age := *p.Age
		c.Age = &age
	}
	c.History = cloneHistory(p.History)
	return &c
}

func cloneHistory(h []any) []any {
	if h == nil {
		return []any{}
	}
	return slices.Clone(h)
}

// CreateParams for creating a profile.
type CreateParams struct {
	Name  string
	Email string
	Age   *int
}

// PreferencesUpdate carries the preference keys present in an update payload.
type PreferencesUpdate struct {
	Length    *int
	Uppercase *bool
	Lowercase *bool
	Numbers   *bool
	Symbols   *bool
}

func (u *PreferencesUpdate) empty() bool {
	return u.Length == nil && u.Uppercase == nil && u.Lowercase == nil && u.Numbers == nil && u.Symbols == nil
}

func (u *PreferencesUpdate) apply(p *Preferences) {
	if u.Length != nil {
		p.Length = *u.Length
	}
	if u.Uppercase != nil {
		p.Uppercase = *u.Uppercase
	}
	if u.Lowercase != nil {
		p.Lowercase = *u.Lowercase
	}
	if u.Numbers != nil {
		p.Numbers = *u.Numbers
	}
	if u.Symbols != nil {
		p.Symbols = *u.Symbols
	}
}

// AgeUpdate distinguishes an absent age from an explicit null.
type AgeUpdate struct {
	Set   bool
	Value *int
}

// UpdateParams for updating a profile. Nil fields are left untouched.
type UpdateParams struct {
	Name        *string
	Email       *string
	Age         AgeUpdate
	Preferences *PreferencesUpdate
	History     *[]any

	at time.Time
}

func (u UpdateParams) withClock(at time.Time) UpdateParams {
	u.at = at
	return u
}

// Empty reports whether the update carries no field at all.
func (u UpdateParams) Empty() bool {
	return u.Name == nil &&
		u.Email == nil &&
		!u.Age.Set &&
		(u.Preferences == nil || u.Preferences.empty()) &&
		u.History == nil
}

// Apply writes the present fields over p and refreshes UpdatedAt.
func (u UpdateParams) Apply(p *Profile) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Email != nil {
		p.Email = *u.Email
	}
	if u.Age.Set {
		if u.Age.Value == nil {
			p.Age = nil
		} else {
			age := *u.Age.Value
			p.Age = &age
		}
	}
	if u.Preferences != nil {
		u.Preferences.apply(&p.Preferences)
	}
	if u.History != nil {
		p.History = cloneHistory(*u.History)
	}
	if u.at.IsZero() {
		p.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	} else {
		p.UpdatedAt = u.at
	}
}

// Filter selects profiles in List. Nil bounds are not applied.
type Filter struct {
	MinAge       *int
	MaxAge       *int
	NameContains string
}

// HasAgeBound reports whether either age bound is present.
func (f Filter) HasAgeBound() bool {
	return f.MinAge != nil || f.MaxAge != nil
}

// Match reports whether p satisfies every present filter.
// Profiles without an age never match when an age bound is given.
func (f Filter) Match(p *Profile) bool {
	if f.HasAgeBound() {
		if p.Age == nil {
			return false
		}
		if f.MinAge != nil && *p.Age < *f.MinAge {
			return false
		}
		if f.MaxAge != nil && *p.Age > *f.MaxAge {
			return false
		}
	}
	if f.NameContains != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.NameContains)) {
		return false
	}
	return true
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SortProfiles orders profiles by creation time, then id, giving a stable
// order for backends that have no natural one.
func SortProfiles(profiles []Profile) {
	slices.SortFunc(profiles, func(a, b Profile) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
