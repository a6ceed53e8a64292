package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"gatehouse.dev/internal/posts"
)

var _ posts.Store = (*Store)(nil)

const postColumns = `id, title, content, author_id, status, tags, created_at, updated_at`

func scanPost(row rowScanner) (posts.Post, error) {
	var (
		p      posts.Post
		status string
		tags   []byte
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.AuthorID, &status, &tags, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return posts.Post{}, err
	}
	p.Status = posts.Status(status)
	p.Tags = []string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &p.Tags); err != nil {
			return posts.Post{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	return p, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func (s *Store) CreatePost(ctx context.Context, p posts.Post) (posts.Post, error) {
	if s.db == nil {
		return posts.Post{}, errors.New("database connection unavailable")
	}
	tags, err := encodeTags(p.Tags)
	if err != nil {
		return posts.Post{}, err
	}
	created, err := scanPost(s.db.QueryRowContext(ctx, `
		insert into posts (id, title, content, author_id, status, tags, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6::jsonb, $7, $7)
		returning `+postColumns,
		p.ID, p.Title, p.Content, p.AuthorID, string(p.Status), tags, p.CreatedAt))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return posts.Post{}, fmt.Errorf("%w: author does not exist", posts.ErrInvalidInput)
		}
		return posts.Post{}, err
	}
	return created, nil
}

func (s *Store) PostByID(ctx context.Context, id string) (posts.Post, error) {
	if s.db == nil {
		return posts.Post{}, errors.New("database connection unavailable")
	}
	p, err := scanPost(s.db.QueryRowContext(ctx, `select `+postColumns+` from posts where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return posts.Post{}, posts.ErrNotFound
	}
	if err != nil {
		return posts.Post{}, err
	}
	return p, nil
}

// ListPosts applies the author scope in SQL, so both the page and the total
// only ever cover rows the caller may read.
func (s *Store) ListPosts(ctx context.Context, f posts.Filter) ([]posts.Post, int, error) {
	if s.db == nil {
		return nil, 0, errors.New("database connection unavailable")
	}
	var w where
	if f.AuthorID != "" {
		w.add("author_id = $%d", f.AuthorID)
	}
	if f.Status != "" {
		w.add("status = $%d", string(f.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from posts`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, args := w.page(f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx,
		`select `+postColumns+` from posts`+w.String()+` order by created_at desc, id desc`+limit, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []posts.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *Store) UpdatePost(ctx context.Context, id string, upd posts.Update, now time.Time) (posts.Post, error) {
	if s.db == nil {
		return posts.Post{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
	)
	set := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}
	if upd.Title != nil {
		set("title = $%d", *upd.Title)
	}
	if upd.Content != nil {
		set("content = $%d", *upd.Content)
	}
	if upd.Status != nil {
		set("status = $%d", string(*upd.Status))
	}
	if upd.Tags != nil {
		tags, err := encodeTags(*upd.Tags)
		if err != nil {
			return posts.Post{}, err
		}
		set("tags = $%d::jsonb", tags)
	}
	if len(sets) == 0 {
		return s.PostByID(ctx, id)
	}
	set("updated_at = $%d", now)
	args = append(args, id)
	query := fmt.Sprintf(`update posts set %s where id = $%d returning `+postColumns, strings.Join(sets, ", "), len(args))

	p, err := scanPost(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return posts.Post{}, posts.ErrNotFound
	}
	if err != nil {
		return posts.Post{}, err
	}
	return p, nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from posts where id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(res, posts.ErrNotFound)
}
