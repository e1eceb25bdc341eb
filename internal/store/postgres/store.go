// Package postgres stores profiles in a PostgreSQL table through bob.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/stephenafamo/scan"

	"github.com/janisto/profile-api/internal/service/profile"
)

// DefaultTable is the table used by the server.
const DefaultTable = "profiles"

const uniqueViolation = "23505"

var columns = []any{"id", "name", "email", "age", "preferences", "history", "created_at", "updated_at"}

type profileRow struct {
	ID          string        `db:"id"`
	Name        string        `db:"name"`
	Email       string        `db:"email"`
	Age         sql.NullInt64 `db:"age"`
	Preferences []byte        `db:"preferences"`
	History     []byte        `db:"history"`
	CreatedAt   time.Time     `db:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}

type preferencesDoc struct {
	Length    int  `json:"length"`
	Uppercase bool `json:"uppercase"`
	Lowercase bool `json:"lowercase"`
	Numbers   bool `json:"numbers"`
	Symbols   bool `json:"symbols"`
}

func (r profileRow) toProfile() (*profile.Profile, error) {
	var prefs preferencesDoc
	if err := json.Unmarshal(r.Preferences, &prefs); err != nil {
		return nil, fmt.Errorf("decode preferences of %s: %w", r.ID, err)
	}
	history := []any{}
	if len(r.History) > 0 {
		if err := json.Unmarshal(r.History, &history); err != nil {
			return nil, fmt.Errorf("decode history of %s: %w", r.ID, err)
		}
		if history == nil {
			history = []any{}
		}
	}

	p := &profile.Profile{
		ID:          r.ID,
		Name:        r.Name,
		Email:       r.Email,
		Preferences: profile.Preferences(prefs),
		History:     history,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.Age.Valid {
		age := int(r.Age.Int64)
		p.Age = &age
	}
	return p, nil
}

// encodeDocs renders the jsonb columns of p.
func encodeDocs(p *profile.Profile) (prefs, history string, err error) {
	pb, err := json.Marshal(preferencesDoc(p.Preferences))
	if err != nil {
		return "", "", err
	}
	h := p.History
	if h == nil {
		h = []any{}
	}
	hb, err := json.Marshal(h)
	if err != nil {
		return "", "", err
	}
	return string(pb), string(hb), nil
}

// Store implements profile.Store on PostgreSQL. Email uniqueness is a
// table constraint; updates lock the row for the read-modify-write.
type Store struct {
	db    bob.DB
	table string
}

// Open returns a Store on table, creating the table when it does not exist.
func Open(ctx context.Context, db bob.DB, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	s := &Store{db: db, table: table}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) emailConstraint() string {
	return s.table + "_email_key"
}

func (s *Store) migrate(ctx context.Context) error {
	table := pgx.Identifier{s.table}.Sanitize()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          text        PRIMARY KEY,
	name        text        NOT NULL,
	email       text        NOT NULL,
	age         bigint,
	preferences jsonb       NOT NULL,
	history     jsonb       NOT NULL DEFAULT '[]'::jsonb,
	created_at  timestamptz NOT NULL,
	updated_at  timestamptz NOT NULL,
	CONSTRAINT %s UNIQUE (email)
)`, table, pgx.Identifier{s.emailConstraint()}.Sanitize()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (created_at, id)`,
			pgx.Identifier{s.table + "_created_at_idx"}.Sanitize(), table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.table, err)
		}
	}
	return nil
}

// wrapError maps driver errors onto profile errors.
func (s *Store) wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return profile.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == s.emailConstraint() {
		return profile.ErrEmailInUse
	}
	return profile.WrapStorage(op, err)
}

func (s *Store) Get(ctx context.Context, id string) (*profile.Profile, error) {
	query := psql.Select(
		sm.Columns(columns...),
		sm.From(s.table),
		sm.Where(psql.Quote("id").EQ(psql.Arg(id))),
	)

	row, err := bob.One(ctx, s.db, query, scan.StructMapper[profileRow]())
	if err != nil {
		return nil, s.wrapError("postgres get", err)
	}
	p, err := row.toProfile()
	if err != nil {
		return nil, profile.WrapStorage("postgres get", err)
	}
	return p, nil
}

func (s *Store) List(ctx context.Context, filter profile.Filter) ([]profile.Profile, error) {
	query := psql.Select(
		sm.Columns(columns...),
		sm.From(s.table),
		sm.OrderBy("created_at").Asc(),
		sm.OrderBy("id").Asc(),
	)
	if filter.HasAgeBound() {
		query.Apply(sm.Where(psql.Quote("age").IsNotNull()))
	}
	if filter.MinAge != nil {
		query.Apply(sm.Where(psql.Quote("age").GTE(psql.Arg(*filter.MinAge))))
	}
	if filter.MaxAge != nil {
		query.Apply(sm.Where(psql.Quote("age").LTE(psql.Arg(*filter.MaxAge))))
	}
	if filter.NameContains != "" {
		query.Apply(sm.Where(psql.Raw("strpos(lower(name), lower(?)) > 0", filter.NameContains)))
	}

	rows, err := bob.All(ctx, s.db, query, scan.StructMapper[profileRow]())
	if err != nil {
		return nil, s.wrapError("postgres list", err)
	}

	out := make([]profile.Profile, 0, len(rows))
	for _, row := range rows {
		p, err := row.toProfile()
		if err != nil {
			return nil, profile.WrapStorage("postgres list", err)
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, p *profile.Profile) error {
	prefs, history, err := encodeDocs(p)
	if err != nil {
		return profile.WrapStorage("postgres insert", err)
	}

	query := psql.Insert(
		im.Into(s.table, "id", "name", "email", "age", "preferences", "history", "created_at", "updated_at"),
		im.Values(
			psql.Arg(p.ID),
			psql.Arg(p.Name),
			psql.Arg(p.Email),
			psql.Arg(p.Age),
			psql.Arg(prefs),
			psql.Arg(history),
			psql.Arg(p.CreatedAt),
			psql.Arg(p.UpdatedAt),
		),
	)
	if _, err := bob.Exec(ctx, s.db, query); err != nil {
		return s.wrapError("postgres insert", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, id string, params profile.UpdateParams) (*profile.Profile, error) {
	var updated *profile.Profile
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, exec bob.Executor) error {
		lock := psql.Select(
			sm.Columns(columns...),
			sm.From(s.table),
			sm.Where(psql.Quote("id").EQ(psql.Arg(id))),
			sm.ForUpdate(),
		)
		row, err := bob.One(ctx, exec, lock, scan.StructMapper[profileRow]())
		if err != nil {
			return s.wrapError("postgres update", err)
		}
		p, err := row.toProfile()
		if err != nil {
			return profile.WrapStorage("postgres update", err)
		}

		params.Apply(p)
		prefs, history, err := encodeDocs(p)
		if err != nil {
			return profile.WrapStorage("postgres update", err)
		}

		query := psql.Update(
			um.Table(s.table),
			um.SetCol("name").To(psql.Arg(p.Name)),
			um.SetCol("email").To(psql.Arg(p.Email)),
			um.SetCol("age").To(psql.Arg(p.Age)),
			um.SetCol("preferences").To(psql.Arg(prefs)),
			um.SetCol("history").To(psql.Arg(history)),
			um.SetCol("updated_at").To(psql.Arg(p.UpdatedAt)),
			um.Where(psql.Quote("id").EQ(psql.Arg(id))),
		)
		if _, err := bob.Exec(ctx, exec, query); err != nil {
			return s.wrapError("postgres update", err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, s.wrapError("postgres update", err)
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, id string) (*profile.Profile, error) {
	query := psql.Delete(
		dm.From(s.table),
		dm.Where(psql.Quote("id").EQ(psql.Arg(id))),
		dm.Returning(columns...),
	)

	row, err := bob.One(ctx, s.db, query, scan.StructMapper[profileRow]())
	if err != nil {
		return nil, s.wrapError("postgres delete", err)
	}
	p, err := row.toProfile()
	if err != nil {
		return nil, profile.WrapStorage("postgres delete", err)
	}
	return p, nil
}

func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := psql.Select(
		sm.Columns("1"),
		sm.From(s.table),
		sm.Where(psql.Quote("email").EQ(psql.Arg(email))),
		sm.Limit(1),
	)

	_, err := bob.One(ctx, s.db, query, scan.SingleColumnMapper[int])
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, profile.WrapStorage("postgres exists", err)
	}
	return true, nil
}

var _ profile.Store = (*Store)(nil)
