package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"shortlink/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate short code or original url")
)

const uniqueViolation = "23505"

const selectMapping = `SELECT short_code, original_url, created_at, click_count, last_accessed_at FROM url_mappings`

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMapping(row scanner) (*model.URLMapping, error) {
	var m model.URLMapping
	var lastAccess sql.NullTime
	if err := row.Scan(&m.ShortCode, &m.OriginalURL, &m.CreatedAt, &m.ClickCount, &lastAccess); err != nil {
		return nil, err
	}
	if lastAccess.Valid {
		t := lastAccess.Time
		m.LastAccessedAt = &t
	}
	return &m, nil
}

func (r *Repo) getOne(ctx context.Context, q string, arg string) (*model.URLMapping, error) {
	m, err := scanMapping(r.DB.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *Repo) GetByShortCode(ctx context.Context, code string) (*model.URLMapping, error) {
	return r.getOne(ctx, selectMapping+` WHERE short_code = $1`, code)
}

func (r *Repo) GetByOriginalURL(ctx context.Context, original string) (*model.URLMapping, error) {
	return r.getOne(ctx, selectMapping+` WHERE original_url = $1`, original)
}

// Create inserts a new mapping. Both columns are unique; a violation on either is ErrDuplicate.
func (r *Repo) Create(ctx context.Context, code, original string) (*model.URLMapping, error) {
	q := `INSERT INTO url_mappings (short_code, original_url) VALUES ($1, $2) RETURNING created_at`
	m := &model.URLMapping{ShortCode: code, OriginalURL: original}
	err := r.DB.QueryRowContext(ctx, q, code, original).Scan(&m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		}
		return nil, err
	}
	return m, nil
}

// IncrementClickBy runs on a dedicated connection taken from the pool and returned when done,
// so background callers never share a request's connection.
func (r *Repo) IncrementClickBy(ctx context.Context, code string, delta int64) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	q := `
		UPDATE url_mappings
		SET click_count = click_count + $2, last_accessed_at = now()
		WHERE short_code = $1
	`
	res, err := conn.ExecContext(ctx, q, code, delta)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordClick counts a single resolution.
func (r *Repo) RecordClick(ctx context.Context, code string) error {
	return r.IncrementClickBy(ctx, code, 1)
}

func (r *Repo) List(ctx context.Context, offset, limit int) ([]model.URLMapping, error) {
	if offset < 0 || limit < 1 {
		return []model.URLMapping{}, nil
	}
	q := selectMapping + ` ORDER BY created_at DESC, short_code LIMIT $1 OFFSET $2`
	rows, err := r.DB.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make([]model.URLMapping, 0, limit)
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *m)
	}
	return res, rows.Err()
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

func (r *Repo) Close() error {
	return r.DB.Close()
}
