// Package firestore stores profiles as Firestore documents.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/janisto/profile-api/internal/service/profile"
)

const (
	profilesCollection = "profiles"
	// emailsCollection reserves each email so uniqueness can be checked
	// inside the same transaction as the profile write.
	emailsCollection = "profile_emails"
)

type firestorePreferences struct {
	Length    int64 `firestore:"length"`
	Uppercase bool  `firestore:"uppercase"`
	Lowercase bool  `firestore:"lowercase"`
	Numbers   bool  `firestore:"numbers"`
	Symbols   bool  `firestore:"symbols"`
}

// firestoreProfile maps to Firestore document structure.
type firestoreProfile struct {
	Name        string               `firestore:"nombre_perfil"`
	Email       string               `firestore:"email"`
	Age         *int64               `firestore:"edad"`
	Preferences firestorePreferences `firestore:"preferencias"`
	History     []any                `firestore:"historial"`
	CreatedAt   time.Time            `firestore:"created_at"`
	UpdatedAt   time.Time            `firestore:"updated_at"`
}

type emailReservation struct {
	ProfileID string `firestore:"profile_id"`
}

func toFirestore(p *profile.Profile) firestoreProfile {
	fp := firestoreProfile{
		Name:  p.Name,
		Email: p.Email,
		Preferences: firestorePreferences{
			Length:    int64(p.Preferences.Length),
			Uppercase: p.Preferences.Uppercase,
			Lowercase: p.Preferences.Lowercase,
			Numbers:   p.Preferences.Numbers,
			Symbols:   p.Preferences.Symbols,
		},
		History:   p.History,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if fp.History == nil {
		fp.History = []any{}
	}
	if p.Age != nil {
		age := int64(*p.Age)
		fp.Age = &age
	}
	return fp
}

func (fp firestoreProfile) toProfile(id string) *profile.Profile {
	p := &profile.Profile{
		ID:    id,
		Name:  fp.Name,
		Email: fp.Email,
		Preferences: profile.Preferences{
			Length:    int(fp.Preferences.Length),
			Uppercase: fp.Preferences.Uppercase,
			Lowercase: fp.Preferences.Lowercase,
			Numbers:   fp.Preferences.Numbers,
			Symbols:   fp.Preferences.Symbols,
		},
		History:   fp.History,
		CreatedAt: fp.CreatedAt.UTC(),
		UpdatedAt: fp.UpdatedAt.UTC(),
	}
	if p.History == nil {
		p.History = []any{}
	}
	if fp.Age != nil {
		age := int(*fp.Age)
		p.Age = &age
	}
	return p
}

// Store implements profile.Store using Firestore with transactions.
type Store struct {
	client *firestore.Client
}

// New creates a new Firestore-backed store.
func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) profileRef(id string) *firestore.DocumentRef {
	return s.client.Collection(profilesCollection).Doc(id)
}

// emailRef keys reservations by a digest since emails may contain '/'.
func (s *Store) emailRef(email string) *firestore.DocumentRef {
	sum := sha256.Sum256([]byte(email))
	return s.client.Collection(emailsCollection).Doc(hex.EncodeToString(sum[:]))
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// Get retrieves a profile by id.
func (s *Store) Get(ctx context.Context, id string) (*profile.Profile, error) {
	doc, err := s.profileRef(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, profile.ErrNotFound
		}
		return nil, profile.WrapStorage("firestore get", err)
	}

	var fp firestoreProfile
	if err := doc.DataTo(&fp); err != nil {
		return nil, profile.WrapStorage("firestore decode", err)
	}
	return fp.toProfile(id), nil
}

// List pushes the age bounds down to Firestore and applies the name filter
// client-side. Null ages never satisfy a range filter.
func (s *Store) List(ctx context.Context, filter profile.Filter) ([]profile.Profile, error) {
	q := s.client.Collection(profilesCollection).Query
	if filter.MinAge != nil {
		q = q.Where("edad", ">=", *filter.MinAge)
	}
	if filter.MaxAge != nil {
		q = q.Where("edad", "<=", *filter.MaxAge)
	}

	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, profile.WrapStorage("firestore list", err)
	}

	out := make([]profile.Profile, 0, len(docs))
	for _, doc := range docs {
		var fp firestoreProfile
		if err := doc.DataTo(&fp); err != nil {
			return nil, profile.WrapStorage("firestore decode", err)
		}
		p := fp.toProfile(doc.Ref.ID)
		if filter.Match(p) {
			out = append(out, *p)
		}
	}
	profile.SortProfiles(out)
	return out, nil
}

// Insert creates the profile and its email reservation in one transaction.
func (s *Store) Insert(ctx context.Context, p *profile.Profile) error {
	docRef := s.profileRef(p.ID)
	emailRef := s.emailRef(p.Email)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(emailRef)
		if err == nil && doc.Exists() {
			return profile.ErrEmailInUse
		}
		if err != nil && !isNotFound(err) {
			return err
		}

		if err := tx.Create(docRef, toFirestore(p)); err != nil {
			return err
		}
		return tx.Create(emailRef, emailReservation{ProfileID: p.ID})
	})
	if status.Code(err) == codes.AlreadyExists {
		return profile.ErrEmailInUse
	}
	return profile.WrapStorage("firestore insert", err)
}

// Update applies params inside a transaction, moving the email reservation
// when the email changes.
func (s *Store) Update(ctx context.Context, id string, params profile.UpdateParams) (*profile.Profile, error) {
	docRef := s.profileRef(id)

	var result *profile.Profile

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if isNotFound(err) {
				return profile.ErrNotFound
			}
			return err
		}

		var fp firestoreProfile
		if err := doc.DataTo(&fp); err != nil {
			return err
		}
		current := fp.toProfile(id)
		next := current.Clone()
		params.Apply(next)

		emailChanged := next.Email != current.Email
		if emailChanged {
			taken, err := tx.Get(s.emailRef(next.Email))
			if err == nil && taken.Exists() {
				var r emailReservation
				if err := taken.DataTo(&r); err != nil {
					return err
				}
				if r.ProfileID != id {
					return profile.ErrEmailInUse
				}
			} else if err != nil && !isNotFound(err) {
				return err
			}
		}

		// All reads happen before the first write.
		if emailChanged {
			if err := tx.Delete(s.emailRef(current.Email)); err != nil {
				return err
			}
			if err := tx.Set(s.emailRef(next.Email), emailReservation{ProfileID: id}); err != nil {
				return err
			}
		}
		if err := tx.Set(docRef, toFirestore(next)); err != nil {
			return err
		}

		result = next
		return nil
	})
	if err != nil {
		return nil, profile.WrapStorage("firestore update", err)
	}
	return result, nil
}

// Delete removes the profile and releases its email.
func (s *Store) Delete(ctx context.Context, id string) (*profile.Profile, error) {
	docRef := s.profileRef(id)

	var snapshot *profile.Profile

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if isNotFound(err) {
				return profile.ErrNotFound
			}
			return err
		}

		var fp firestoreProfile
		if err := doc.DataTo(&fp); err != nil {
			return err
		}
		snapshot = fp.toProfile(id)

		if err := tx.Delete(docRef); err != nil {
			return err
		}
		return tx.Delete(s.emailRef(snapshot.Email))
	})
	if err != nil {
		return nil, profile.WrapStorage("firestore delete", err)
	}
	return snapshot, nil
}

// ExistsByEmail checks the email reservation collection.
func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	doc, err := s.emailRef(email).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, profile.WrapStorage("firestore exists by email", err)
	}
	return doc.Exists(), nil
}

// Compile-time interface check
var _ profile.Store = (*Store)(nil)
