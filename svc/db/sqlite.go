package db

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"pastry/pkg/domain"
)

var ErrCircuitOpen = errors.New("database circuit breaker open")

const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
	maxFailures     = 5
	cooldownSeconds = 30
)

const (
	defaultMaxOpenConns = 50
	defaultMaxIdleConns = 10
	defaultQueryTimeout = 5 * time.Second
)

type SQLite struct {
	db            *sql.DB
	failures      int32
	circuitState  int32
	circuitOpened int64
	queryTimeout  time.Duration
}

func (s *SQLite) DB() *sql.DB {
	return s.db
}

func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(path, defaultMaxOpenConns, defaultMaxIdleConns, defaultQueryTimeout)
}

func NewSQLiteWithConfig(path string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping db")
	}
	s := &SQLite{
		db:           db,
		queryTimeout: queryTimeout,
	}
	if err := s.migrate(); err != nil {
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}

func (s *SQLite) checkCircuit() error {
	state := atomic.LoadInt32(&s.circuitState)
	switch state {
	case circuitClosed, circuitHalfOpen:
		return nil
	case circuitOpen:
		opened := atomic.LoadInt64(&s.circuitOpened)
		if time.Now().Unix()-opened >= cooldownSeconds {
			if atomic.CompareAndSwapInt32(&s.circuitState, circuitOpen, circuitHalfOpen) {
				return nil
			}
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (s *SQLite) recordError(err error) {
	if err == nil {
		atomic.StoreInt32(&s.failures, 0)
		atomic.StoreInt32(&s.circuitState, circuitClosed)
		return
	}
	if errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return
	}
	failures := atomic.AddInt32(&s.failures, 1)
	if atomic.LoadInt32(&s.circuitState) == circuitHalfOpen {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
		atomic.StoreInt32(&s.failures, 0)
		return
	}
	if failures >= maxFailures && atomic.LoadInt32(&s.circuitState) == circuitClosed {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
	}
}

func (s *SQLite) migrate() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return errors.Wrap(err, "enable WAL mode")
	}
	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return errors.Wrap(err, "set busy timeout")
	}
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return errors.Wrap(err, "enable foreign keys")
	}
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		avatar TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		status INTEGER NOT NULL DEFAULT 0,
		role INTEGER NOT NULL DEFAULT 0,
		api_token TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS pastes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		syntax TEXT NOT NULL DEFAULT 'text',
		status INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		expire_time DATETIME,
		self_destruct INTEGER NOT NULL DEFAULT 0,
		views INTEGER NOT NULL DEFAULT 0,
		password_hash TEXT NOT NULL DEFAULT '',
		encrypted INTEGER NOT NULL DEFAULT 0,
		storage INTEGER NOT NULL DEFAULT 1,
		user_id INTEGER REFERENCES users(id),
		ip_address TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paste_id INTEGER NOT NULL REFERENCES pastes(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id),
		reason TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pastes_expire ON pastes(expire_time);
	CREATE INDEX IF NOT EXISTS idx_pastes_user_created ON pastes(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_pastes_ip_created ON pastes(ip_address, created_at);
	CREATE INDEX IF NOT EXISTS idx_pastes_syntax ON pastes(syntax);
	CREATE INDEX IF NOT EXISTS idx_users_token ON users(api_token);
	`
	_, err := s.db.Exec(query)
	return err
}

const pasteColumns = `id, slug, title, content, syntax, status, created_at, expire_time, self_destruct, views, password_hash, encrypted, storage, user_id, ip_address`

func scanPaste(row interface{ Scan(...any) error }) (*domain.Paste, error) {
	var (
		p          domain.Paste
		expireTime sql.NullTime
		userID     sql.NullInt64
	)
	err := row.Scan(
		&p.ID, &p.Slug, &p.Title, &p.Content, &p.Syntax, &p.Status,
		&p.CreatedAt, &expireTime, &p.SelfDestruct, &p.Views,
		&p.PasswordHash, &p.Encrypted, &p.StorageMode, &userID, &p.IPAddress,
	)
	if err != nil {
		return nil, err
	}
	if expireTime.Valid {
		t := expireTime.Time
		p.ExpireTime = &t
	}
	if userID.Valid {
		id := userID.Int64
		p.UserID = &id
	}
	return &p, nil
}

func (s *SQLite) CreatePaste(ctx context.Context, p *domain.Paste) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO pastes (slug, title, content, syntax, status, created_at, expire_time, self_destruct, views, password_hash, encrypted, storage, user_id, ip_address)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var expireTime any
	if p.ExpireTime != nil {
		expireTime = *p.ExpireTime
	}
	var userID any
	if p.UserID != nil {
		userID = *p.UserID
	}
	res, err := s.db.ExecContext(queryCtx, q,
		p.Slug, p.Title, p.Content, p.Syntax, p.Status, p.CreatedAt, expireTime,
		p.SelfDestruct, p.Views, p.PasswordHash, p.Encrypted, p.StorageMode, userID, p.IPAddress,
	)
	s.recordError(err)
	if err != nil {
		return errors.Wrap(err, "create paste")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "paste insert id")
	}
	p.ID = id
	return nil
}

func (s *SQLite) GetBySlug(ctx context.Context, slug string) (*domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `SELECT ` + pasteColumns + ` FROM pastes WHERE slug = ?`
	p, err := scanPaste(s.db.QueryRowContext(queryCtx, q, slug))
	if err == sql.ErrNoRows {
		return nil, domain.ErrPasteNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "get paste")
	}
	return p, nil
}

// GetOwned fetches a paste only when it belongs to userID; missing and
// not-owned are indistinguishable by design.
func (s *SQLite) GetOwned(ctx context.Context, slug string, userID int64) (*domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `SELECT ` + pasteColumns + ` FROM pastes WHERE slug = ? AND user_id = ?`
	p, err := scanPaste(s.db.QueryRowContext(queryCtx, q, slug, userID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrPasteNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "get owned paste")
	}
	return p, nil
}

// UpdatePaste rewrites the mutable columns in one statement so readers
// never observe a partial update.
func (s *SQLite) UpdatePaste(ctx context.Context, p *domain.Paste) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	UPDATE pastes
	SET title = ?, content = ?, syntax = ?, status = ?, password_hash = ?, encrypted = ?, storage = ?
	WHERE id = ?
	`
	_, err := s.db.ExecContext(queryCtx, q,
		p.Title, p.Content, p.Syntax, p.Status, p.PasswordHash, p.Encrypted, p.StorageMode, p.ID,
	)
	s.recordError(err)
	return errors.Wrap(err, "update paste")
}

func (s *SQLite) DeletePaste(ctx context.Context, id int64) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(queryCtx, `DELETE FROM pastes WHERE id = ?`, id)
	s.recordError(err)
	return errors.Wrap(err, "delete paste")
}

func (s *SQLite) SlugExists(ctx context.Context, slug string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var exists int
	err := s.db.QueryRowContext(queryCtx, `SELECT 1 FROM pastes WHERE slug = ? LIMIT 1`, slug).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "slug exists check")
	}
	return exists == 1, nil
}

func (s *SQLite) IncrViews(ctx context.Context, id int64) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(queryCtx, `UPDATE pastes SET views = views + 1 WHERE id = ?`, id)
	s.recordError(err)
	return errors.Wrap(err, "incr views")
}

// SetExpireTime stamps an expiry only when none exists; the transition
// is one-way at the SQL level too.
func (s *SQLite) SetExpireTime(ctx context.Context, id int64, t time.Time) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(queryCtx,
		`UPDATE pastes SET expire_time = ? WHERE id = ? AND expire_time IS NULL`, t, id)
	s.recordError(err)
	return errors.Wrap(err, "set expire time")
}

func (s *SQLite) CountUserPastesBetween(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	return s.countPastes(ctx,
		`SELECT COUNT(*) FROM pastes WHERE user_id = ? AND created_at >= ? AND created_at < ?`,
		userID, from, to)
}

func (s *SQLite) CountIPPastesBetween(ctx context.Context, ip string, from, to time.Time) (int, error) {
	return s.countPastes(ctx,
		`SELECT COUNT(*) FROM pastes WHERE ip_address = ? AND created_at >= ? AND created_at < ?`,
		ip, from, to)
}

func (s *SQLite) countPastes(ctx context.Context, q string, args ...any) (int, error) {
	if err := s.checkCircuit(); err != nil {
		return 0, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var n int
	err := s.db.QueryRowContext(queryCtx, q, args...).Scan(&n)
	s.recordError(err)
	if err != nil {
		return 0, errors.Wrap(err, "count pastes")
	}
	return n, nil
}

func (s *SQLite) LastUserPaste(ctx context.Context, userID int64) (*time.Time, error) {
	return s.lastPaste(ctx,
		`SELECT created_at FROM pastes WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`, userID)
}

func (s *SQLite) LastIPPaste(ctx context.Context, ip string) (*time.Time, error) {
	return s.lastPaste(ctx,
		`SELECT created_at FROM pastes WHERE ip_address = ? ORDER BY created_at DESC LIMIT 1`, ip)
}

func (s *SQLite) lastPaste(ctx context.Context, q string, args ...any) (*time.Time, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var t time.Time
	err := s.db.QueryRowContext(queryCtx, q, args...).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "last paste")
	}
	return &t, nil
}

func (s *SQLite) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var u domain.User
	err := s.db.QueryRowContext(queryCtx,
		`SELECT id, name, avatar, url, status, role FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Avatar, &u.URL, &u.Status, &u.Role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	return &u, nil
}

func (s *SQLite) GetUserByToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, nil
	}
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var u domain.User
	err := s.db.QueryRowContext(queryCtx,
		`SELECT id, name, avatar, url, status, role FROM users WHERE api_token = ?`, token).
		Scan(&u.ID, &u.Name, &u.Avatar, &u.URL, &u.Status, &u.Role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "get user by token")
	}
	return &u, nil
}

// UpsertUser exists for wiring and tests; account management proper
// lives outside this service.
func (s *SQLite) UpsertUser(ctx context.Context, u *domain.User, apiToken string) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO users (name, avatar, url, status, role, api_token)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET avatar=excluded.avatar, url=excluded.url, status=excluded.status, role=excluded.role, api_token=excluded.api_token
	`
	res, err := s.db.ExecContext(queryCtx, q, u.Name, u.Avatar, u.URL, u.Status, u.Role, apiToken)
	s.recordError(err)
	if err != nil {
		return errors.Wrap(err, "upsert user")
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		u.ID = id
	}
	return nil
}

func (s *SQLite) CreateReport(ctx context.Context, r *domain.Report) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(queryCtx,
		`INSERT INTO reports (paste_id, user_id, reason, created_at) VALUES (?, ?, ?, ?)`,
		r.PasteID, r.UserID, r.Reason, time.Now())
	s.recordError(err)
	if err != nil {
		return errors.Wrap(err, "create report")
	}
	if id, err := res.LastInsertId(); err == nil {
		r.ID = id
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
