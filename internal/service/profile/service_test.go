package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)

func newTestService() (*ProfileService, *MemoryStore) {
	store := NewMemoryStore()
	seq := 0
	svc := NewService(store,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	)
	return svc, store
}

func intPtr(v int) *int { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool { return &v }
func historyPtr(v ...any) *[]any { return &v }

func TestCreate(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateParams{Name: "  Ana  ", Email: " Ana@X.com ", Age: intPtr(31)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.ID != "id-1" {
		t.Errorf("expected ID id-1, got %s", p.ID)
	}
	if p.Name != "Ana" {
		t.Errorf("expected trimmed name Ana, got %q", p.Name)
	}
	if p.Email != "ana@x.com" {
		t.Errorf("expected normalized email ana@x.com, got %q", p.Email)
	}
	if p.Age == nil || *p.Age != 31 {
		t.Errorf("expected age 31, got %v", p.Age)
	}
	if p.Preferences != DefaultPreferences() {
		t.Errorf("expected default preferences, got %+v", p.Preferences)
	}
	if p.History == nil || len(p.History) != 0 {
		t.Errorf("expected empty history, got %v", p.History)
	}
	want := fixedNow.Truncate(time.Microsecond)
	if !p.CreatedAt.Equal(want) || !p.UpdatedAt.Equal(want) {
		t.Errorf("expected timestamps %v, got %v / %v", want, p.CreatedAt, p.UpdatedAt)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 stored profile, got %d", store.Len())
	}
}

func TestCreateWithoutAge(t *testing.T) {
	svc, _ := newTestService()

	p, err := svc.Create(context.Background(), CreateParams{Name: "Ana", Email: "ana@x.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Age != nil {
		t.Errorf("expected nil age, got %d", *p.Age)
	}
}

func TestCreateMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		params CreateParams
		fields []string
	}{
		{"missing name", CreateParams{Email: "a@x.com"}, []string{"nombre_perfil"}},
		{"missing email", CreateParams{Name: "Ana"}, []string{"email"}},
		{"blank both", CreateParams{Name: "   ", Email: " "}, []string{"nombre_perfil", "email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService()
			_, err := svc.Create(context.Background(), tt.params)

			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("expected error to match ErrValidation")
			}
			if ve.Message != msgMissingFields {
				t.Errorf("expected message %q, got %q", msgMissingFields, ve.Message)
			}
			if fmt.Sprint(ve.Fields) != fmt.Sprint(tt.fields) {
				t.Errorf("expected fields %v, got %v", tt.fields, ve.Fields)
			}
			if store.Len() != 0 {
				t.Errorf("expected store untouched, got %d profiles", store.Len())
			}
		})
	}
}

func TestCreateNegativeAge(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), CreateParams{Name: "Ana", Email: "ana@x.com", Age: intPtr(-1)})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateParams{Name: "Ana", Email: "ana@x.com"}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	_, err := svc.Create(ctx, CreateParams{Name: "Otra", Email: "ANA@x.com"})
	if !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 stored profile, got %d", store.Len())
	}
}

func TestCreateConcurrentSameEmail(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)
	ctx := context.Background()

	const numGoroutines = 10
	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines)

	for range numGoroutines {
		wg.Go(func() {
			_, err := svc.Create(ctx, CreateParams{Name: "Ana", Email: "same@x.com"})
			errs <- err
		})
	}
	wg.Wait()
	close(errs)

	var success int
	for err := range errs {
		if err == nil {
			success++
		} else if !errors.Is(err, ErrEmailInUse) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Errorf("expected exactly one create to succeed, got %d", success)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 stored profile, got %d", store.Len())
	}
}

func TestListFilters(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, _ = svc.Create(ctx, CreateParams{Name: "Ana", Email: "ana@x.com", Age: intPtr(25)})
	_, _ = svc.Create(ctx, CreateParams{Name: "Bea", Email: "bea@x.com", Age: intPtr(35)})
	_, _ = svc.Create(ctx, CreateParams{Name: "Carla", Email: "carla@x.com"})
	_, _ = svc.Create(ctx, CreateParams{Name: "Dora", Email: "dora@x.com", Age: intPtr(0)})

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no filter", Filter{}, []string{"id-1", "id-2", "id-3", "id-4"}},
		{"min age", Filter{MinAge: intPtr(30)}, []string{"id-2"}},
		{"max age", Filter{MaxAge: intPtr(30)}, []string{"id-1", "id-4"}},
		{"zero min age excludes null ages", Filter{MinAge: intPtr(0)}, []string{"id-1", "id-2", "id-4"}},
		{"range", Filter{MinAge: intPtr(20), MaxAge: intPtr(30)}, []string{"id-1"}},
		{"empty range", Filter{MinAge: intPtr(40), MaxAge: intPtr(30)}, []string{}},
		{"name contains", Filter{NameContains: "AR"}, []string{"id-3"}},
		{"name and age", Filter{NameContains: "a", MinAge: intPtr(30)}, []string{"id-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == nil {
				t.Fatal("expected non-nil slice")
			}
			ids := make([]string, 0, len(got))
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, ids)
			}
		})
	}
}

func TestListEmpty(t *testing.T) {
	svc, _ := newTestService()

	got, err := svc.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}
}

func TestGetNotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Get(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePartial(t *testing.T) {
	store := NewMemoryStore()
	clock := fixedNow
	svc := NewService(store, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	created, _ := svc.Create(ctx, CreateParams{Name: "Ana", Email: "ana@x.com", Age: intPtr(30)})
	clock = clock.Add(time.Minute)

	updated, err := svc.Update(ctx, created.ID, UpdateParams{
		Preferences: &PreferencesUpdate{Length: intPtr(24), Symbols: boolPtr(false)},
		History:     historyPtr(map[string]any{"password": "abc"}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.Name != "Ana" || updated.Email != "ana@x.com" {
		t.Errorf("expected name and email unchanged, got %s %s", updated.Name, updated.Email)
	}
	if updated.Age == nil || *updated.Age != 30 {
		t.Errorf("expected age unchanged, got %v", updated.Age)
	}
	want := Preferences{Length: 24, Uppercase: true, Lowercase: true, Numbers: true, Symbols: false}
	if updated.Preferences != want {
		t.Errorf("expected merged preferences %+v, got %+v", want, updated.Preferences)
	}
	if len(updated.History) != 1 {
		t.Errorf("expected one history entry, got %v", updated.History)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("expected CreatedAt unchanged")
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Errorf("expected UpdatedAt to advance, got %v", updated.UpdatedAt)
	}

	stored, _ := svc.Get(ctx, created.ID)
	if stored.Preferences != want {
		t.Errorf("expected stored preferences %+v, got %+v", want, stored.Preferences)
	}
}

func TestUpdateAge(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	created, _ := svc.Create(ctx, CreateParams{Name: "Ana", Email: "ana@x.com", Age: intPtr(30)})

	updated, err := svc.Update(ctx, created.ID, UpdateParams{Age: AgeUpdate{Set: true, Value: intPtr(40)}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Age == nil || *updated.Age != 40 {
		t.Errorf("expected age 40, got %v", updated.Age)
	}

	cleared, err := svc.Update(ctx, created.ID, UpdateParams{Age: AgeUpdate{Set: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleared.Age != nil {
		t.Errorf("expected age cleared, got %d", *cleared.Age)
	}
}

func TestUpdateEmpty(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	created, _ := svc.Create(ctx, CreateParams{Name: "Ana", Email: "ana@x.com"})

	for _, params := range []UpdateParams{{}, {Preferences: &PreferencesUpdate{}}} {
		_, err := svc.Update(ctx, created.ID, params)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if ve.Message != msgEmptyUpdate {
			t.Errorf("expected message %q, got %q", msgEmptyUpdate, ve.Message)
		}
	}
}

func TestUpdateNotFoundBeforeValidation(t *testing.T) {
	tests := []struct {
		name   string
		params UpdateParams
	}{
		{"empty payload", UpdateParams{}},
		{"empty preferences", UpdateParams{Preferences: &PreferencesUpdate{}}},
		{"blank name", UpdateParams{Name: strPtr("")}},
		{"negative age", UpdateParams{Age: AgeUpdate{Set: true, Value: intPtr(-1)}}},
	}

	svc, store := newTestService()
	ctx := context.Background()
	created, _ := svc.Create(ctx, CreateParams{Name: "Ana", Email: "ana@x.com"})
	store.Clear()
	if store.Len() != 0 {
		t.Fatalf("expected empty store after Clear, got %d", store.Len())
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, id := range []string{"nonexistent", created.ID} {
				_, err := svc.Update(ctx, id, tt.params)
				if !errors.Is(err, ErrNotFound) {
					t.Fatalf("update %s: expected ErrNotFound, got %v", id, err)
				}
				if errors.Is(err, ErrValidation) {
					t.Fatalf("update %s: validation reported before lookup: %v", id, err)
				}
			}
		})
	}
}

func TestUpdateInvalidFields(t *testing.T) {
	tests := []struct {
		name   string
		params UpdateParams
	}{
		{"blank name", UpdateParams{Name: strPtr("  ")}},
		{"blank email", UpdateParams{Email: strPtr("")}},
		{"negative age", UpdateParams{Age: AgeUpdate{Set: true, Value: intPtr(-5)}}},
		{"zero length", UpdateParams{Preferences: &PreferencesUpdate{Length: intPtr(0)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService()
			ctx := context.Background()
			created, _ := svc.Create(ctx, CreateParams{Name: "Ana", Email: "ana@x.com", Age: intPtr(30)})

			_, err := svc.Update(ctx, created.ID, tt.params)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}

			stored, _ := svc.Get(ctx, created.ID)
			if stored.Name != "Ana" || stored.Email != "ana@x.com" || *stored.Age != 30 {
				t.Errorf("expected profile untouched, got %+v", stored)
			}
		})
	}
}

func TestUpdateNotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Update(context.Background(), "nonexistent", UpdateParams{Name: strPtr("X")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateEmailConflict(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	ana, _ := svc.Create(ctx, CreateParams{Name: "Ana", Email: "ana@x.com"})
	_, _ = svc.Create(ctx, CreateParams{Name: "Bea", Email: "bea@x.com"})

	_, err := svc.Update(ctx, ana.ID, UpdateParams{Email: strPtr(" BEA@x.com")})
	if !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}

	// Re-submitting the current email is not a conflict.
	same, err := svc.Update(ctx, ana.ID, UpdateParams{Email: strPtr("Ana@X.com")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if same.Email != "ana@x.com" {
		t.Errorf("expected email ana@x.com, got %s", same.Email)
	}
}

func TestUpdateEmailFreesOldAddress(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	ana, _ := svc.Create(ctx, CreateParams{Name: "Ana", Email: "ana@x.com"})

	if _, err := svc.Update(ctx, ana.ID, UpdateParams{Email: strPtr("ana@y.com")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Create(ctx, CreateParams{Name: "Nueva", Email: "ana@x.com"}); err != nil {
		t.Fatalf("expected old email to be reusable, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	created, _ := svc.Create(ctx, CreateParams{Name: "Ana", Email: "ana@x.com"})

	deleted, err := svc.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted.ID != created.ID || deleted.Email != "ana@x.com" {
		t.Errorf("expected snapshot of deleted profile, got %+v", deleted)
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d", store.Len())
	}

	if _, err := svc.Delete(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateParams{Name: "Ana", Email: "ana@x.com"}); err != nil {
		t.Fatalf("expected email to be reusable after delete, got %v", err)
	}
}

type failingStore struct {
	err error
}

func (f *failingStore) Get(context.Context, string) (*Profile, error) { return nil, f.err }
func (f *failingStore) List(context.Context, Filter) ([]Profile, error) { return nil, f.err }
func (f *failingStore) Insert(context.Context, *Profile) error { return f.err }
func (f *failingStore) Delete(context.Context, string) (*Profile, error) { return nil, f.err }
func (f *failingStore) ExistsByEmail(context.Context, string) (bool, error) { return false, nil }
func (f *failingStore) Update(context.Context, string, UpdateParams) (*Profile, error) {
	return nil, f.err
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	cause := errors.New("disk full")
	svc := NewService(&failingStore{err: cause})
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["create"] = svc.Create(ctx, CreateParams{Name: "Ana", Email: "ana@x.com"})
	_, checks["list"] = svc.List(ctx, Filter{})
	_, checks["get"] = svc.Get(ctx, "id")
	_, checks["update"] = svc.Update(ctx, "id", UpdateParams{Name: strPtr("X")})
	_, checks["delete"] = svc.Delete(ctx, "id")

	for op, err := range checks {
		var se *StorageError
		if !errors.As(err, &se) {
			t.Errorf("%s: expected StorageError, got %v", op, err)
			continue
		}
		if !errors.Is(err, cause) {
			t.Errorf("%s: expected cause to be preserved, got %v", op, err)
		}
	}
}

func TestWrapStoragePassesServiceErrors(t *testing.T) {
	if err := WrapStorage("op", ErrNotFound); err != ErrNotFound {
		t.Errorf("expected ErrNotFound unchanged, got %v", err)
	}
	if err := WrapStorage("op", ErrEmailInUse); err != ErrEmailInUse {
		t.Errorf("expected ErrEmailInUse unchanged, got %v", err)
	}
	if err := WrapStorage("op", nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	inner := &StorageError{Op: "inner", Err: errors.New("x")}
	if err := WrapStorage("outer", inner); err != inner {
		t.Errorf("expected StorageError not to be double wrapped, got %v", err)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrEmailInUse, "email_in_use"},
		{ErrNotFound, "not_found"},
		{&ValidationError{Message: "x"}, "invalid"},
		{&StorageError{Op: "x", Err: errors.New("y")}, "storage_error"},
		{errors.New("other"), "internal_error"},
	}
	for _, tt := range tests {
		if got := categorizeError(tt.err); got != tt.want {
			t.Errorf("categorizeError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
