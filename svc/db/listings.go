package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"pastry/pkg/domain"
)

// listingFilter restricts every listing to public, unexpired pastes
// whose author (if any) is not suspended.
const listingFilter = `
	p.status = 1
	AND (p.expire_time IS NULL OR p.expire_time > ?)
	AND (p.user_id IS NULL OR u.status != 2)
`

const summaryColumns = `p.title, p.syntax, p.slug, p.created_at, p.expire_time, p.views, p.encrypted, p.password_hash`

// TrendingRange bounds a trending query to pastes created inside it.
type TrendingRange struct {
	From time.Time
	To   time.Time
}

func (s *SQLite) querySummaries(ctx context.Context, q string, args ...any) ([]domain.Summary, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(queryCtx, q, args...)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "list pastes")
	}
	defer rows.Close()

	out := make([]domain.Summary, 0, 16)
	for rows.Next() {
		var (
			sum          domain.Summary
			expireTime   sql.NullTime
			passwordHash string
		)
		if err := rows.Scan(&sum.Title, &sum.Syntax, &sum.Slug, &sum.CreatedAt,
			&expireTime, &sum.Views, &sum.Encrypted, &passwordHash); err != nil {
			return nil, errors.Wrap(err, "scan paste summary")
		}
		if expireTime.Valid {
			t := expireTime.Time
			sum.ExpireTime = &t
		}
		sum.PasswordProtected = passwordHash != ""
		out = append(out, sum)
	}
	return out, errors.Wrap(rows.Err(), "iterate paste summaries")
}

func (s *SQLite) Index(ctx context.Context, now time.Time, limit, offset int) ([]domain.Summary, error) {
	q := `
	SELECT ` + summaryColumns + `
	FROM pastes p LEFT JOIN users u ON u.id = p.user_id
	WHERE ` + listingFilter + `
	ORDER BY p.created_at DESC
	LIMIT ? OFFSET ?
	`
	return s.querySummaries(ctx, q, now, limit, offset)
}

func (s *SQLite) Search(ctx context.Context, term string, now time.Time, limit, offset int) ([]domain.Summary, error) {
	q := `
	SELECT ` + summaryColumns + `
	FROM pastes p LEFT JOIN users u ON u.id = p.user_id
	WHERE ` + listingFilter + `
	AND (p.title LIKE ? OR p.content LIKE ? OR p.syntax LIKE ?)
	ORDER BY p.created_at DESC
	LIMIT ? OFFSET ?
	`
	pattern := "%" + term + "%"
	return s.querySummaries(ctx, q, now, pattern, pattern, pattern, limit, offset)
}

func (s *SQLite) Archive(ctx context.Context, syntax string, now time.Time, limit, offset int) ([]domain.Summary, error) {
	q := `
	SELECT ` + summaryColumns + `
	FROM pastes p LEFT JOIN users u ON u.id = p.user_id
	WHERE ` + listingFilter + `
	AND p.syntax = ?
	ORDER BY p.created_at DESC
	LIMIT ? OFFSET ?
	`
	return s.querySummaries(ctx, q, now, syntax, limit, offset)
}

// SyntaxList returns the distinct syntaxes of listable pastes for the
// archive landing page.
func (s *SQLite) SyntaxList(ctx context.Context, now time.Time) ([]string, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT DISTINCT p.syntax
	FROM pastes p LEFT JOIN users u ON u.id = p.user_id
	WHERE ` + listingFilter + `
	ORDER BY p.syntax ASC
	`
	rows, err := s.db.QueryContext(queryCtx, q, now)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "list syntaxes")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var syntax string
		if err := rows.Scan(&syntax); err != nil {
			return nil, errors.Wrap(err, "scan syntax")
		}
		out = append(out, syntax)
	}
	return out, errors.Wrap(rows.Err(), "iterate syntaxes")
}

func (s *SQLite) Trending(ctx context.Context, r TrendingRange, now time.Time, limit int) ([]domain.Summary, error) {
	q := `
	SELECT ` + summaryColumns + `
	FROM pastes p LEFT JOIN users u ON u.id = p.user_id
	WHERE ` + listingFilter + `
	AND p.created_at >= ? AND p.created_at < ?
	ORDER BY p.views DESC, p.created_at DESC
	LIMIT ?
	`
	return s.querySummaries(ctx, q, now, r.From, r.To, limit)
}

// ExpiredPaste carries the fields the janitor needs to release storage
// before deleting the row.
type ExpiredPaste struct {
	ID          int64
	Slug        string
	StorageMode domain.StorageMode
	Content     string
}

func (s *SQLite) ExpiredBatch(ctx context.Context, now time.Time, limit int) ([]ExpiredPaste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, slug, storage, content
	FROM pastes
	WHERE expire_time IS NOT NULL AND expire_time <= ?
	LIMIT ?
	`
	rows, err := s.db.QueryContext(queryCtx, q, now, limit)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "query expired pastes")
	}
	defer rows.Close()

	var out []ExpiredPaste
	for rows.Next() {
		var e ExpiredPaste
		if err := rows.Scan(&e.ID, &e.Slug, &e.StorageMode, &e.Content); err != nil {
			return nil, errors.Wrap(err, "scan expired paste")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate expired pastes")
}
