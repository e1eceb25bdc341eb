package profile

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	applog "github.com/janisto/profile-api/internal/platform/logging"
)

const resourceType = "profile"

// Validation messages returned to clients.
const (
	msgMissingFields = "Faltan los campos 'nombre_perfil' y 'email'"
	msgEmptyUpdate   = "No se proporcionaron datos para actualizar"
	msgEmptyName     = "El campo 'nombre_perfil' no puede estar vacío"
	msgEmptyEmail    = "El campo 'email' no puede estar vacío"
	msgNegativeAge   = "El campo 'edad' no puede ser negativo"
	msgBadLength     = "El campo 'preferencias.length' debe ser mayor que cero"
)

// Service defines profile operations.
//
// Implementations must normalize input data:
//   - Name: trim whitespace
//   - Email: lowercase and trim whitespace
type Service interface {
	Create(ctx context.Context, params CreateParams) (*Profile, error)
	List(ctx context.Context, filter Filter) ([]Profile, error)
	Get(ctx context.Context, id string) (*Profile, error)
	Update(ctx context.Context, id string, params UpdateParams) (*Profile, error)
	Delete(ctx context.Context, id string) (*Profile, error)
}

// Option configures a ProfileService.
type Option func(*ProfileService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *ProfileService) { s.now = now }
}

// WithIDGenerator overrides how profile ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(s *ProfileService) { s.newID = newID }
}

// ProfileService implements Service on top of a Store.
type ProfileService struct {
	store Store
	now   func() time.Time
	newID func() string
}

// NewService creates a profile service backed by store.
func NewService(store Store, opts ...Option) *ProfileService {
	s := &ProfileService{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp is truncated to microseconds so every backend round-trips it exactly.
func (s *ProfileService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Create validates params, rejects duplicate emails and stores a new profile
// with default preferences and an empty history.
func (s *ProfileService) Create(ctx context.Context, params CreateParams) (*Profile, error) {
	name := strings.TrimSpace(params.Name)
	email := NormalizeEmail(params.Email)

	var missing []string
	if name == "" {
		missing = append(missing, "nombre_perfil")
	}
	if email == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return nil, s.fail(ctx, "create", "", &ValidationError{Fields: missing, Message: msgMissingFields})
	}
	if params.Age != nil && *params.Age < 0 {
		return nil, s.fail(ctx, "create", "", &ValidationError{Fields: []string{"edad"}, Message: msgNegativeAge})
	}

	exists, err := s.store.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, s.fail(ctx, "create", "", WrapStorage("exists by email", err))
	}
	if exists {
		return nil, s.fail(ctx, "create", "", ErrEmailInUse)
	}

	now := s.timestamp()
	p := &Profile{
		ID:          s.newID(),
		Name:        name,
		Email:       email,
		Preferences: DefaultPreferences(),
		History:     []any{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if params.Age != nil {
		age := *params.Age
		p.Age = &age
	}

	if err := s.store.Insert(ctx, p.Clone()); err != nil {
		return nil, s.fail(ctx, "create", p.ID, WrapStorage("insert", err))
	}

	applog.LogAuditEvent(ctx, "create", resourceType, p.ID, "success", nil)
	return p, nil
}

// List returns every profile matching filter, or an empty slice.
func (s *ProfileService) List(ctx context.Context, filter Filter) ([]Profile, error) {
	profiles, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, WrapStorage("list", err)
	}
	if profiles == nil {
		profiles = []Profile{}
	}
	return profiles, nil
}

// Get retrieves a profile by id.
func (s *ProfileService) Get(ctx context.Context, id string) (*Profile, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, WrapStorage("get", err)
	}
	return p, nil
}

// Update applies the fields present in params over the stored profile.
func (s *ProfileService) Update(ctx context.Context, id string, params UpdateParams) (*Profile, error) {
	var (
		normalized UpdateParams
		err        error
	)
	if params.Empty() {
		err = &ValidationError{Message: msgEmptyUpdate}
	} else {
		normalized, err = normalizeUpdate(params)
	}
	if err != nil {
		// An unknown id is reported ahead of a bad payload.
		if _, getErr := s.store.Get(ctx, id); getErr != nil {
			return nil, s.fail(ctx, "update", id, WrapStorage("update", getErr))
		}
		return nil, s.fail(ctx, "update", id, err)
	}

	p, err := s.store.Update(ctx, id, normalized.withClock(s.timestamp()))
	if err != nil {
		return nil, s.fail(ctx, "update", id, WrapStorage("update", err))
	}

	applog.LogAuditEvent(ctx, "update", resourceType, id, "success", nil)
	return p, nil
}

// Delete removes a profile and returns the snapshot taken before removal.
func (s *ProfileService) Delete(ctx context.Context, id string) (*Profile, error) {
	p, err := s.store.Delete(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "delete", id, WrapStorage("delete", err))
	}

	applog.LogAuditEvent(ctx, "delete", resourceType, id, "success", nil)
	return p, nil
}

func (s *ProfileService) fail(ctx context.Context, action, id string, err error) error {
	applog.LogAuditEvent(ctx, action, resourceType, id, "failure",
		map[string]any{"error": categorizeError(err)})
	return err
}

// normalizeUpdate trims and validates the present fields. A present name or
// email must stay non-empty.
func normalizeUpdate(params UpdateParams) (UpdateParams, error) {
	out := params
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return out, &ValidationError{Fields: []string{"nombre_perfil"}, Message: msgEmptyName}
		}
		out.Name = &name
	}
	if params.Email != nil {
		email := NormalizeEmail(*params.Email)
		if email == "" {
			return out, &ValidationError{Fields: []string{"email"}, Message: msgEmptyEmail}
		}
		out.Email = &email
	}
	if params.Age.Set && params.Age.Value != nil && *params.Age.Value < 0 {
		return out, &ValidationError{Fields: []string{"edad"}, Message: msgNegativeAge}
	}
	if params.Preferences != nil && params.Preferences.Length != nil && *params.Preferences.Length <= 0 {
		return out, &ValidationError{Fields: []string{"preferencias.length"}, Message: msgBadLength}
	}
	return out, nil
}
