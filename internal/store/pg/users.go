package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/rbac"
	"gatehouse.dev/internal/users"
)

var (
	_ auth.UserStore = (*Store)(nil)
	_ users.Store    = (*Store)(nil)
)

const userColumns = `id, email, name, password_hash, role, is_active, refresh_tokens, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var (
		u      auth.User
		role   string
		tokens []byte
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.Active, &tokens, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return auth.User{}, err
	}
	u.Role = rbac.Role(role)
	if len(tokens) > 0 {
		if err := json.Unmarshal(tokens, &u.RefreshTokens); err != nil {
			return auth.User{}, fmt.Errorf("decode refresh tokens: %w", err)
		}
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, name, password_hash, role, is_active)
		values ($1, $2, $3, $4, $5, $6)
		returning `+userColumns,
		u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role), u.Active)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.User{}, auth.ErrEmailTaken
		}
		return auth.User{}, err
	}
	return created, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (auth.User, error) {
	return s.userWhere(ctx, `id = $1`, id)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.userWhere(ctx, `email = $1`, email)
}

func (s *Store) userWhere(ctx context.Context, cond string, arg any) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errors.New("database connection unavailable")
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where `+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return u, nil
}

// AppendRefreshToken rewrites only the token list, in one statement: expired
// entries are dropped and tok is appended.
func (s *Store) AppendRefreshToken(ctx context.Context, userID string, tok auth.RefreshToken, now time.Time) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	entry, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode refresh token: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set refresh_tokens = coalesce((
			select jsonb_agg(t)
			from jsonb_array_elements(refresh_tokens) t
			where (t->>'expires_at')::timestamptz > $2
		), '[]'::jsonb) || jsonb_build_array($3::jsonb)
		where id = $1
	`, userID, now, string(entry))
	if err != nil {
		return err
	}
	return expectRow(res, auth.ErrNotFound)
}

func (s *Store) RemoveRefreshToken(ctx context.Context, userID, token string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set refresh_tokens = coalesce((
			select jsonb_agg(t)
			from jsonb_array_elements(refresh_tokens) t
			where t->>'token' <> $2
		), '[]'::jsonb)
		where id = $1
	`, userID, token)
	if err != nil {
		return err
	}
	return expectRow(res, auth.ErrNotFound)
}

func (s *Store) ListUsers(ctx context.Context, f users.Filter) ([]auth.User, int, error) {
	if s.db == nil {
		return nil, 0, errors.New("database connection unavailable")
	}
	var w where
	if f.Role != "" {
		w.add("role = $%d", string(f.Role))
	}
	if f.Active != nil {
		w.add("is_active = $%d", *f.Active)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, args := w.page(f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users`+w.String()+` order by created_at desc, id desc`+limit, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// UpdateUser never touches refresh_tokens.
func (s *Store) UpdateUser(ctx context.Context, id string, upd users.Update, now time.Time) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Email != nil {
		set("email", *upd.Email)
	}
	if upd.Role != nil {
		set("role", string(*upd.Role))
	}
	if upd.Active != nil {
		set("is_active", *upd.Active)
	}
	if len(sets) == 0 {
		return s.UserByID(ctx, id)
	}
	set("updated_at", now)
	args = append(args, id)
	query := fmt.Sprintf(`update users set %s where id = $%d returning `+userColumns, strings.Join(sets, ", "), len(args))

	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return auth.User{}, auth.ErrEmailTaken
		}
		return auth.User{}, err
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(res, auth.ErrNotFound)
}

func expectRow(res sql.Result, notFound error) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return notFound
	}
	return nil
}
