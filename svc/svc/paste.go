package svc

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"pastry/cfg"
	"pastry/metrics"
	"pastry/pkg/domain"
	"pastry/pkg/secrets"
	"pastry/svc/access"
	"pastry/svc/auth"
	"pastry/svc/cache"
	"pastry/svc/db"
	"pastry/svc/expiry"
	"pastry/svc/lim"
	"pastry/svc/session"
	"pastry/svc/storage"
	"pastry/svc/util"
	"pastry/svc/views"
)

const (
	maxTitleLength    = 80
	maxPasswordLength = 50
	contentCacheTTL   = 10 * time.Minute
)

type Paste struct {
	db       *db.SQLite
	rdb      *db.Redis
	lru      *cache.LRU
	inline   storage.Inline
	file     *storage.File
	backend  storage.Backend
	gate     *access.Gate
	quota    *lim.Quota
	recorder *views.Recorder
	sessions session.Store
	hasher   *auth.Hasher
	box      *secrets.Box
	cfg      *cfg.Cfg
	now      func() time.Time
}

// NewPaste wires the orchestrator. rdb may be nil when Redis is not
// configured; every other dependency is required.
func NewPaste(sqlDB *db.SQLite, rdb *db.Redis, lru *cache.LRU, file *storage.File,
	gate *access.Gate, quota *lim.Quota, sessions session.Store,
	h *auth.Hasher, box *secrets.Box, c *cfg.Cfg) *Paste {
	if sqlDB == nil || lru == nil || file == nil || gate == nil || quota == nil ||
		sessions == nil || h == nil || box == nil || c == nil {
		panic("paste service: nil dependency")
	}
	p := &Paste{
		db:       sqlDB,
		rdb:      rdb,
		lru:      lru,
		file:     file,
		gate:     gate,
		quota:    quota,
		recorder: views.NewRecorder(sqlDB, c.SelfDestroyAfterViews),
		sessions: sessions,
		hasher:   h,
		box:      box,
		cfg:      c,
		now:      time.Now,
	}
	if c.PasteStorage == cfg.StorageFile {
		p.backend = file
	} else {
		p.backend = p.inline
	}
	return p
}

// backendFor selects by the paste's own storage mode so pastes written
// under a previous storage configuration stay readable.
func (p *Paste) backendFor(mode domain.StorageMode) storage.Backend {
	if mode == domain.StorageFile {
		return p.file
	}
	return p.inline
}

func (p *Paste) Create(ctx context.Context, req domain.Requester, params domain.CreateParams) (*domain.CreateResult, error) {
	if err := p.validate(params.Title, params.Content, params.Password); err != nil {
		return nil, err
	}
	allowed, err := p.gate.CanCreate(req)
	if err != nil {
		return nil, err
	}
	if !access.StatusAllowed(params.Status, allowed) {
		return nil, domain.ErrInvalidStatus
	}
	now := p.now()
	if err := p.quota.Check(ctx, req, now); err != nil {
		return nil, err
	}
	code, err := expiry.Parse(params.Expire)
	if err != nil {
		return nil, err
	}
	decision := expiry.Compute(code, now)

	slug, err := util.GenSlug(p.cfg.SlugLength, func(s string) (bool, error) {
		return p.db.SlugExists(ctx, s)
	})
	if err != nil {
		return nil, errors.Wrap(err, "generate slug")
	}

	stored, err := p.transform(params.Content, params.Encrypted)
	if err != nil {
		return nil, err
	}

	paste := &domain.Paste{
		Slug:         slug,
		Title:        strings.TrimSpace(params.Title),
		Syntax:       p.syntaxOrDefault(params.Syntax),
		Status:       params.Status,
		CreatedAt:    now,
		ExpireTime:   decision.ExpireTime,
		SelfDestruct: decision.SelfDestruct,
		Encrypted:    params.Encrypted,
		StorageMode:  p.backend.Mode(),
		IPAddress:    req.IP,
	}
	if req.Authenticated {
		uid := req.UserID
		paste.UserID = &uid
	}
	if params.Password != "" {
		hash, err := p.hasher.Hash(params.Password)
		if err != nil {
			return nil, errors.Wrap(err, "hash password")
		}
		paste.PasswordHash = hash
	}

	if p.backend.Mode() == domain.StorageFile {
		locator, err := p.backend.Store(ctx, slug, p.authorName(req), []byte(stored))
		if err != nil {
			return nil, errors.Wrap(err, "store paste body")
		}
		paste.Content = locator
	} else {
		paste.Content = stored
	}

	if err := p.db.CreatePaste(ctx, paste); err != nil {
		if paste.StorageMode == domain.StorageFile {
			if derr := p.file.Delete(ctx, paste.Content); derr != nil {
				util.Warn().Err(derr).Str("slug", slug).Msg("orphaned paste file after failed insert")
			}
		}
		return nil, err
	}
	metrics.PasteCreated.Inc()
	util.Info().
		Str("slug", slug).
		Bool("encrypted", paste.Encrypted).
		Int("storage", int(paste.StorageMode)).
		Msg("paste created")
	return &domain.CreateResult{
		Slug: slug,
		URL:  p.pasteURL(slug),
	}, nil
}

// Read gates, counts the view once per session and returns the full
// projection.
func (p *Paste) Read(ctx context.Context, req domain.Requester, slug, password, sessionID string) (*domain.Projection, error) {
	paste, err := p.db.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	owner, err := p.owner(ctx, paste)
	if err != nil {
		return nil, err
	}
	now := p.now()
	if err := p.gate.CanRead(paste, owner, req, password, now); err != nil {
		return nil, err
	}

	seen, err := p.sessions.Seen(ctx, sessionID)
	if err != nil {
		util.Warn().Err(err).Msg("viewer session load failed, counting view")
		seen = views.Set{}
	}
	_, incremented, err := p.recorder.Record(ctx, paste, seen)
	if err != nil {
		return nil, err
	}
	if incremented {
		if err := p.sessions.MarkSeen(ctx, sessionID, paste.ID); err != nil {
			util.Warn().Err(err).Msg("viewer session save failed")
		}
	}

	content, err := p.materialize(ctx, paste)
	if err != nil {
		return nil, err
	}
	metrics.PasteRetrieved.Inc()
	return p.project(paste, owner, content), nil
}

func (p *Paste) Update(ctx context.Context, req domain.Requester, slug string, params domain.UpdateParams) (*domain.CreateResult, error) {
	if !req.Authenticated {
		return nil, domain.ErrPasteNotFound
	}
	paste, err := p.db.GetOwned(ctx, slug, req.UserID)
	if err != nil {
		return nil, err
	}
	if err := p.gate.CanWrite(paste, req, p.now()); err != nil {
		return nil, err
	}
	if err := p.validate(params.Title, params.Content, params.Password); err != nil {
		return nil, err
	}
	if !params.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	stored, err := p.transform(params.Content, params.Encrypted)
	if err != nil {
		return nil, err
	}
	oldMode := paste.StorageMode
	oldLocator := paste.Content

	paste.Title = strings.TrimSpace(params.Title)
	paste.Syntax = p.syntaxOrDefault(params.Syntax)
	paste.Status = params.Status
	paste.Encrypted = params.Encrypted
	paste.StorageMode = p.backend.Mode()
	if params.Password != "" {
		hash, err := p.hasher.Hash(params.Password)
		if err != nil {
			return nil, errors.Wrap(err, "hash password")
		}
		paste.PasswordHash = hash
	}

	if paste.StorageMode == domain.StorageFile {
		locator, err := p.backend.Store(ctx, paste.Slug, p.authorName(req), []byte(stored))
		if err != nil {
			return nil, errors.Wrap(err, "store paste body")
		}
		paste.Content = locator
	} else {
		paste.Content = stored
	}

	if err := p.db.UpdatePaste(ctx, paste); err != nil {
		return nil, err
	}
	// Release the old file only after the row points at the new body.
	if oldMode == domain.StorageFile && (paste.StorageMode != domain.StorageFile || oldLocator != paste.Content) {
		if err := p.file.Delete(ctx, oldLocator); err != nil {
			util.Warn().Err(err).Str("slug", slug).Msg("stale paste file not removed")
		}
	}
	p.invalidate(ctx, slug)
	metrics.PasteUpdated.Inc()
	return &domain.CreateResult{Slug: slug, URL: p.pasteURL(slug)}, nil
}

func (p *Paste) Delete(ctx context.Context, req domain.Requester, slug string) error {
	if !req.Authenticated {
		return domain.ErrPasteNotFound
	}
	paste, err := p.db.GetOwned(ctx, slug, req.UserID)
	if err != nil {
		return err
	}
	if err := p.gate.CanDelete(paste, req); err != nil {
		return err
	}
	if paste.StorageMode == domain.StorageFile {
		if err := p.file.Delete(ctx, paste.Content); err != nil {
			util.Warn().Err(err).Str("slug", slug).Msg("paste file not removed")
		}
	}
	if err := p.db.DeletePaste(ctx, paste.ID); err != nil {
		return err
	}
	p.invalidate(ctx, slug)
	metrics.PasteDeleted.Inc()
	util.Info().Str("slug", slug).Msg("paste deleted")
	return nil
}

func (p *Paste) Report(ctx context.Context, req domain.Requester, slug, reason string) error {
	if !p.cfg.ReportFeature {
		return domain.ErrFeatureDisabled
	}
	if !req.Authenticated {
		return domain.ErrForbidden
	}
	reason = strings.TrimSpace(reason)
	if len(reason) < 10 || len(reason) > 1000 {
		return domain.ValidationErr(map[string]string{
			"reason": "must be between 10 and 1000 characters",
		})
	}
	paste, err := p.db.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}
	return p.db.CreateReport(ctx, &domain.Report{
		PasteID: paste.ID,
		UserID:  req.UserID,
		Reason:  reason,
	})
}

func (p *Paste) validate(title, content, password string) error {
	fields := map[string]string{}
	if strings.TrimSpace(content) == "" {
		fields["content"] = "must not be empty"
	}
	if int64(len(content)) > p.cfg.MaxContentSizeKB*1024 {
		return domain.ErrContentTooLarge
	}
	if p.cfg.PasteTitleRequired && strings.TrimSpace(title) == "" {
		fields["title"] = "is required"
	}
	if len(title) > maxTitleLength {
		fields["title"] = fmt.Sprintf("must be at most %d characters", maxTitleLength)
	}
	if len(password) > maxPasswordLength {
		fields["password"] = fmt.Sprintf("must be at most %d characters", maxPasswordLength)
	}
	if len(fields) > 0 {
		return domain.ValidationErr(fields)
	}
	return nil
}

// transform produces the stored body: ciphertext for encrypted pastes,
// entity-escaped text otherwise. materialize is the exact inverse.
func (p *Paste) transform(content string, encrypted bool) (string, error) {
	if encrypted {
		sealed, err := p.box.Seal(content)
		if err != nil {
			return "", errors.Wrap(err, "seal content")
		}
		return sealed, nil
	}
	return html.EscapeString(content), nil
}

func (p *Paste) materialize(ctx context.Context, paste *domain.Paste) (string, error) {
	if content, ok := p.lru.Get(ctx, paste.Slug); ok {
		metrics.CacheHits.Inc()
		return content, nil
	}
	if p.rdb != nil {
		if content, ok, err := p.rdb.GetContent(ctx, paste.Slug); err == nil && ok {
			metrics.CacheHits.Inc()
			p.lru.Set(paste.Slug, content, contentCacheTTL)
			return content, nil
		}
	}
	metrics.CacheMisses.Inc()

	raw, err := p.backendFor(paste.StorageMode).Retrieve(ctx, paste.Content)
	if err != nil {
		return "", err
	}
	var content string
	if paste.Encrypted {
		content, err = p.box.Open(string(raw))
		if err != nil {
			return "", errors.Wrap(err, "open content")
		}
	} else {
		content = html.UnescapeString(string(raw))
	}
	p.lru.Set(paste.Slug, content, contentCacheTTL)
	if p.rdb != nil {
		if err := p.rdb.CacheContent(ctx, paste.Slug, content, contentCacheTTL); err != nil {
			util.Debug().Err(err).Str("slug", paste.Slug).Msg("redis content cache write failed")
		}
	}
	return content, nil
}

func (p *Paste) invalidate(ctx context.Context, slug string) {
	p.lru.Delete(slug)
	if p.rdb != nil {
		if err := p.rdb.DeleteContent(ctx, slug); err != nil {
			util.Debug().Err(err).Str("slug", slug).Msg("redis content invalidation failed")
		}
	}
}

func (p *Paste) owner(ctx context.Context, paste *domain.Paste) (*domain.User, error) {
	if paste.UserID == nil {
		return nil, nil
	}
	owner, err := p.db.GetUser(ctx, *paste.UserID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, domain.ErrPasteNotFound
	}
	return owner, nil
}

func (p *Paste) project(paste *domain.Paste, owner *domain.User, content string) *domain.Projection {
	description := ""
	if !paste.PasswordProtected() {
		description = Describe(content)
	}
	return &domain.Projection{
		Title:       paste.Title,
		Slug:        paste.Slug,
		Syntax:      paste.Syntax,
		ExpireTime:  paste.ExpireTime,
		Status:      paste.Status,
		Views:       paste.Views,
		Description: description,
		Encrypted:   paste.Encrypted,
		Extension:   ExtensionFor(paste.Syntax),
		CreatedAt:   paste.CreatedAt,
		URL:         p.pasteURL(paste.Slug),
		Content:     content,
		User:        owner.Projection(),
	}
}

func (p *Paste) authorName(req domain.Requester) string {
	if req.Authenticated {
		return req.Name
	}
	return ""
}

func (p *Paste) syntaxOrDefault(syntax string) string {
	syntax = strings.TrimSpace(syntax)
	if syntax == "" {
		return p.cfg.DefaultSyntax
	}
	return syntax
}

func (p *Paste) pasteURL(slug string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + "/" + slug
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

const descriptionLimit = 200

// Describe builds the plain-text preview: tags stripped, whitespace
// collapsed, truncated with an ellipsis.
func Describe(content string) string {
	s := tagPattern.ReplaceAllString(content, "")
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > descriptionLimit {
		s = string(runes[:descriptionLimit]) + "..."
	}
	return s
}

var syntaxExtensions = map[string]string{
	"text":       "txt",
	"plaintext":  "txt",
	"bash":       "sh",
	"c":          "c",
	"cpp":        "cpp",
	"csharp":     "cs",
	"css":        "css",
	"go":         "go",
	"html":       "html",
	"java":       "java",
	"javascript": "js",
	"json":       "json",
	"kotlin":     "kt",
	"lua":        "lua",
	"markdown":   "md",
	"perl":       "pl",
	"php":        "php",
	"python":     "py",
	"ruby":       "rb",
	"rust":       "rs",
	"sql":        "sql",
	"swift":      "swift",
	"typescript": "ts",
	"xml":        "xml",
	"yaml":       "yml",
}

// ExtensionFor maps a syntax to a download extension, defaulting to
// txt for anything unknown.
func ExtensionFor(syntax string) string {
	if ext, ok := syntaxExtensions[strings.ToLower(syntax)]; ok {
		return ext
	}
	return "txt"
}
