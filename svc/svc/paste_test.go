package svc

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"

	"pastry/cfg"
	"pastry/pkg/domain"
	"pastry/pkg/secrets"
	"pastry/svc/access"
	"pastry/svc/auth"
	"pastry/svc/cache"
	"pastry/svc/db"
	"pastry/svc/lim"
	"pastry/svc/session"
	"pastry/svc/storage"
)

func testCfg(t *testing.T, storageMode string) *cfg.Cfg {
	t.Helper()
	return &cfg.Cfg{
		BaseURL:               "http://paste.test",
		PublicPaste:           true,
		UserPaste:             true,
		PasteStorage:          storageMode,
		StorageRoot:           t.TempDir(),
		MaxContentSizeKB:      64,
		DefaultSyntax:         "text",
		SelfDestroyAfterViews: 2,
		SlugLength:            8,
		DailyPasteLimitAuth:   100,
		DailyPasteLimitUnauth: 100,
		Location:              time.UTC,
		SearchPage:            true,
		ArchivePage:           true,
		TrendingPage:          true,
		ReportFeature:         true,
		PastesPerPage:         20,
		TrendingLimit:         10,
		LRUCacheSize:          64,
	}
}

func testService(t *testing.T, c *cfg.Cfg) (*Paste, *db.SQLite) {
	t.Helper()
	sqlDB, err := db.NewSQLite(filepath.Join(t.TempDir(), "pastry.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	hasher, err := auth.NewHasher(1, 8*1024, 1, bytes.Repeat([]byte{0x33}, 32))
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	box, err := secrets.NewBoxWithKey(bytes.Repeat([]byte{0x44}, 32))
	if err != nil {
		t.Fatalf("NewBoxWithKey failed: %v", err)
	}
	lru, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		t.Fatalf("NewLRU failed: %v", err)
	}
	p := NewPaste(
		sqlDB, nil, lru,
		storage.NewFile(c.StorageRoot),
		access.NewGate(c, hasher),
		lim.NewQuota(sqlDB, c),
		session.NewMemoryStore(time.Hour),
		hasher, box, c,
	)
	return p, sqlDB
}

func testUser(t *testing.T, sqlDB *db.SQLite, name string) domain.Requester {
	t.Helper()
	u := &domain.User{Name: name, Status: domain.UserStatusActive}
	if err := sqlDB.UpsertUser(context.Background(), u, name+"-token"); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	return domain.Requester{
		UserID:        u.ID,
		Name:          name,
		Authenticated: true,
		IP:            "127.0.0.1",
	}
}

func anon(ip string) domain.Requester {
	return domain.Requester{IP: ip}
}

func TestCreateAndReadInline(t *testing.T) {
	svc, _ := testService(t, testCfg(t, cfg.StorageInline))
	ctx := context.Background()

	result, err := svc.Create(ctx, anon("203.0.113.1"), domain.CreateParams{
		Title:   "hello",
		Content: "fmt.Println(\"<b>hi</b>\")",
		Syntax:  "go",
		Status:  domain.StatusPublic,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(result.Slug) != 8 {
		t.Errorf("slug length = %d; want 8", len(result.Slug))
	}
	if result.URL != "http://paste.test/"+result.Slug {
		t.Errorf("URL = %q", result.URL)
	}

	proj, err := svc.Read(ctx, anon("203.0.113.2"), result.Slug, "", "sess-1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if proj.Content != "fmt.Println(\"<b>hi</b>\")" {
		t.Errorf("Content = %q; want original body", proj.Content)
	}
	if proj.Views != 1 {
		t.Errorf("Views = %d; want 1", proj.Views)
	}
	if proj.Syntax != "go" || proj.Extension != "go" {
		t.Errorf("Syntax/Extension = %q/%q", proj.Syntax, proj.Extension)
	}
	if proj.Description == "" {
		t.Error("empty description on readable paste")
	}
	if proj.User != nil {
		t.Error("anonymous paste has a user projection")
	}
}

func TestViewDeduplication(t *testing.T) {
	svc, _ := testService(t, testCfg(t, cfg.StorageInline))
	ctx := context.Background()

	result, err := svc.Create(ctx, anon("203.0.113.1"), domain.CreateParams{
		Title: "t", Content: "body", Status: domain.StatusPublic,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		proj, err := svc.Read(ctx, anon("203.0.113.2"), result.Slug, "", "same-session")
		if err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
		if proj.Views != 1 {
			t.Errorf("Views after repeat read = %d; want 1", proj.Views)
		}
	}
	proj, err := svc.Read(ctx, anon("203.0.113.3"), result.Slug, "", "other-session")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if proj.Views != 2 {
		t.Errorf("Views from second session = %d; want 2", proj.Views)
	}
}

func TestEncryptedRoundTrip(t *testing.T) {
	svc, sqlDB := testService(t, testCfg(t, cfg.StorageInline))
	ctx := context.Background()

	result, err := svc.Create(ctx, anon("203.0.113.1"), domain.CreateParams{
		Title: "t", Content: "top secret", Status: domain.StatusUnlisted, Encrypted: true,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	row, err := sqlDB.GetBySlug(ctx, result.Slug)
	if err != nil {
		t.Fatalf("GetBySlug failed: %v", err)
	}
	if row.Content == "top secret" {
		t.Error("stored content is plaintext")
	}
	proj, err := svc.Read(ctx, anon("203.0.113.2"), result.Slug, "", "s1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if proj.Content != "top secret" {
		t.Errorf("Content = %q; want decrypted plaintext", proj.Content)
	}
	if !proj.Encrypted {
		t.Error("projection lost the encrypted flag")
	}
}

func TestFileStorageLifecycle(t *testing.T) {
	c := testCfg(t, cfg.StorageFile)
	svc, sqlDB := testService(t, c)
	ctx := context.Background()
	alice := testUser(t, sqlDB, "alice")

	result, err := svc.Create(ctx, alice, domain.CreateParams{
		Title: "t", Content: "file body", Status: domain.StatusPublic,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	row, err := sqlDB.GetBySlug(ctx, result.Slug)
	if err != nil {
		t.Fatalf("GetBySlug failed: %v", err)
	}
	if row.StorageMode != domain.StorageFile {
		t.Fatalf("StorageMode = %v; want StorageFile", row.StorageMode)
	}
	if _, err := os.Stat(row.Content); err != nil {
		t.Fatalf("paste file missing: %v", err)
	}
	if filepath.Dir(row.Content) != filepath.Join(c.StorageRoot, "users", "alice") {
		t.Errorf("file stored in %q; want user namespace", filepath.Dir(row.Content))
	}

	proj, err := svc.Read(ctx, anon("203.0.113.2"), result.Slug, "", "s1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if proj.Content != "file body" {
		t.Errorf("Content = %q; want %q", proj.Content, "file body")
	}

	if err := svc.Delete(ctx, alice, result.Slug); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(row.Content); !os.IsNotExist(err) {
		t.Error("paste file survived Delete")
	}
	if _, err := svc.Read(ctx, anon("203.0.113.2"), result.Slug, "", "s2"); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Errorf("Read after Delete = %v; want ErrPasteNotFound", err)
	}
}

func TestFileStorageMissingArtifact(t *testing.T) {
	svc, sqlDB := testService(t, testCfg(t, cfg.StorageFile))
	ctx := context.Background()

	result, err := svc.Create(ctx, anon("203.0.113.1"), domain.CreateParams{
		Title: "t", Content: "body", Status: domain.StatusPublic,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	row, err := sqlDB.GetBySlug(ctx, result.Slug)
	if err != nil {
		t.Fatalf("GetBySlug failed: %v", err)
	}
	if err := os.Remove(row.Content); err != nil {
		t.Fatalf("remove artifact: %v", err)
	}
	if _, err := svc.Read(ctx, anon("203.0.113.2"), result.Slug, "", "s1"); !errors.Is(err, domain.ErrStorageMissing) {
		t.Errorf("Read = %v; want ErrStorageMissing", err)
	}
}

func TestTimedExpiry(t *testing.T) {
	svc, _ := testService(t, testCfg(t, cfg.StorageInline))
	ctx := context.Background()
	created := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return created }

	result, err := svc.Create(ctx, anon("203.0.113.1"), domain.CreateParams{
		Title: "t", Content: "body", Status: domain.StatusPublic, Expire: "1H",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	svc.now = func() time.Time { return created.Add(59 * time.Minute) }
	if _, err := svc.Read(ctx, anon("203.0.113.2"), result.Slug, "", "s1"); err != nil {
		t.Errorf("Read before expiry = %v; want nil", err)
	}

	svc.now = func() time.Time { return created.Add(61 * time.Minute) }
	if _, err := svc.Read(ctx, anon("203.0.113.2"), result.Slug, "", "s2"); !errors.Is(err, domain.ErrPasteExpired) {
		t.Errorf("Read after expiry = %v; want ErrPasteExpired", err)
	}
}

func TestSelfDestruct(t *testing.T) {
	// Threshold 2: the third distinct view trips the destruct, the
	// fourth sees an expired paste.
	svc, _ := testService(t, testCfg(t, cfg.StorageInline))
	ctx := context.Background()

	result, err := svc.Create(ctx, anon("203.0.113.1"), domain.CreateParams{
		Title: "t", Content: "burn after reading", Status: domain.StatusUnlisted, Expire: "SD",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	sessions := []string{"v1", "v2", "v3"}
	for i, sess := range sessions {
		if _, err := svc.Read(ctx, anon("203.0.113.2"), result.Slug, "", sess); err != nil {
			t.Fatalf("Read %d = %v; want nil", i+1, err)
		}
	}
	if _, err := svc.Read(ctx, anon("203.0.113.2"), result.Slug, "", "v4"); !errors.Is(err, domain.ErrPasteExpired) {
		t.Errorf("Read after self-destruct = %v; want ErrPasteExpired", err)
	}
}

func TestPasswordFlow(t *testing.T) {
	svc, _ := testService(t, testCfg(t, cfg.StorageInline))
	ctx := context.Background()

	result, err := svc.Create(ctx, anon("203.0.113.1"), domain.CreateParams{
		Title: "t", Content: "guarded", Status: domain.StatusPublic, Password: "letmein",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Read(ctx, anon("203.0.113.2"), result.Slug, "", "s1"); !errors.Is(err, domain.ErrPasswordRequired) {
		t.Errorf("Read without password = %v; want ErrPasswordRequired", err)
	}
	if _, err := svc.Read(ctx, anon("203.0.113.2"), result.Slug, "nope", "s1"); !errors.Is(err, domain.ErrPasswordMismatch) {
		t.Errorf("Read with wrong password = %v; want ErrPasswordMismatch", err)
	}
	proj, err := svc.Read(ctx, anon("203.0.113.2"), result.Slug, "letmein", "s1")
	if err != nil {
		t.Fatalf("Read with password failed: %v", err)
	}
	if proj.Content != "guarded" {
		t.Errorf("Content = %q", proj.Content)
	}
	if proj.Description != "" {
		t.Error("password-protected paste leaked a description")
	}
}

func TestPrivatePaste(t *testing.T) {
	svc, sqlDB := testService(t, testCfg(t, cfg.StorageInline))
	ctx := context.Background()
	alice := testUser(t, sqlDB, "alice")
	bob := testUser(t, sqlDB, "bob")

	result, err := svc.Create(ctx, alice, domain.CreateParams{
		Title: "t", Content: "mine", Status: domain.StatusPrivate,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Read(ctx, anon("203.0.113.2"), result.Slug, "", "s1"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("anonymous Read = %v; want ErrForbidden", err)
	}
	if _, err := svc.Read(ctx, bob, result.Slug, "", "s2"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("stranger Read = %v; want ErrForbidden", err)
	}
	proj, err := svc.Read(ctx, alice, result.Slug, "", "s3")
	if err != nil {
		t.Fatalf("owner Read failed: %v", err)
	}
	if proj.User == nil || proj.User.Name != "alice" {
		t.Errorf("User projection = %+v; want alice", proj.User)
	}
}

func TestAnonymousCannotCreatePrivate(t *testing.T) {
	svc, _ := testService(t, testCfg(t, cfg.StorageInline))
	_, err := svc.Create(context.Background(), anon("203.0.113.1"), domain.CreateParams{
		Title: "t", Content: "x", Status: domain.StatusPrivate,
	})
	if !errors.Is(err, domain.ErrInvalidStatus) {
		t.Errorf("Create = %v; want ErrInvalidStatus", err)
	}
}

func TestCreateValidation(t *testing.T) {
	c := testCfg(t, cfg.StorageInline)
	c.PasteTitleRequired = true
	svc, _ := testService(t, c)
	ctx := context.Background()

	cases := []struct {
		name   string
		params domain.CreateParams
		want   error
	}{
		{"missing title", domain.CreateParams{Content: "x", Status: domain.StatusPublic}, domain.ErrValidationFailed},
		{"empty content", domain.CreateParams{Title: "t", Status: domain.StatusPublic}, domain.ErrValidationFailed},
		{"unknown expire code", domain.CreateParams{Title: "t", Content: "x", Status: domain.StatusPublic, Expire: "2H"}, domain.ErrInvalidExpiry},
		{"oversized content", domain.CreateParams{Title: "t", Content: string(bytes.Repeat([]byte{'a'}, 65*1024)), Status: domain.StatusPublic}, domain.ErrContentTooLarge},
	}
	for _, tc := range cases {
		if _, err := svc.Create(ctx, anon("203.0.113.1"), tc.params); !errors.Is(err, tc.want) {
			t.Errorf("%s: Create = %v; want %v", tc.name, err, tc.want)
		}
	}
}

func TestDailyQuota(t *testing.T) {
	c := testCfg(t, cfg.StorageInline)
	c.DailyPasteLimitUnauth = 2
	svc, _ := testService(t, c)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Create(ctx, anon("203.0.113.1"), domain.CreateParams{
			Title: "t", Content: "x", Status: domain.StatusPublic,
		}); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}
	_, err := svc.Create(ctx, anon("203.0.113.1"), domain.CreateParams{
		Title: "t", Content: "x", Status: domain.StatusPublic,
	})
	if !errors.Is(err, domain.ErrDailyLimitReached) {
		t.Errorf("third Create = %v; want ErrDailyLimitReached", err)
	}
	// A different address still has quota.
	if _, err := svc.Create(ctx, anon("203.0.113.99"), domain.CreateParams{
		Title: "t", Content: "x", Status: domain.StatusPublic,
	}); err != nil {
		t.Errorf("Create from other address = %v; want nil", err)
	}
}

func TestQuotaCountsAuthoredPastesFromSameAddress(t *testing.T) {
	c := testCfg(t, cfg.StorageInline)
	c.DailyPasteLimitUnauth = 1
	svc, sqlDB := testService(t, c)
	ctx := context.Background()
	alice := testUser(t, sqlDB, "alice")
	alice.IP = "203.0.113.50"

	if _, err := svc.Create(ctx, alice, domain.CreateParams{
		Title: "t", Content: "x", Status: domain.StatusPublic,
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// The address ceiling counts every paste from the address,
	// authored or anonymous.
	_, err := svc.Create(ctx, anon("203.0.113.50"), domain.CreateParams{
		Title: "t", Content: "x", Status: domain.StatusPublic,
	})
	if !errors.Is(err, domain.ErrDailyLimitReached) {
		t.Errorf("anonymous Create = %v; want ErrDailyLimitReached", err)
	}
}

func TestUpdate(t *testing.T) {
	svc, sqlDB := testService(t, testCfg(t, cfg.StorageInline))
	ctx := context.Background()
	alice := testUser(t, sqlDB, "alice")
	bob := testUser(t, sqlDB, "bob")

	result, err := svc.Create(ctx, alice, domain.CreateParams{
		Title: "before", Content: "v1", Status: domain.StatusPublic,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Update(ctx, bob, result.Slug, domain.UpdateParams{
		Title: "hijack", Content: "evil", Status: domain.StatusPublic,
	}); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Errorf("stranger Update = %v; want ErrPasteNotFound", err)
	}
	if _, err := svc.Update(ctx, alice, result.Slug, domain.UpdateParams{
		Title: "after", Content: "v2", Status: domain.StatusUnlisted,
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	proj, err := svc.Read(ctx, alice, result.Slug, "", "s1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if proj.Title != "after" || proj.Content != "v2" || proj.Status != domain.StatusUnlisted {
		t.Errorf("projection after update = %q/%q/%v", proj.Title, proj.Content, proj.Status)
	}
}

func TestReport(t *testing.T) {
	svc, sqlDB := testService(t, testCfg(t, cfg.StorageInline))
	ctx := context.Background()
	alice := testUser(t, sqlDB, "alice")

	result, err := svc.Create(ctx, anon("203.0.113.1"), domain.CreateParams{
		Title: "t", Content: "spam", Status: domain.StatusPublic,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := svc.Report(ctx, anon("203.0.113.2"), result.Slug, "this paste is spam content"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("anonymous Report = %v; want ErrForbidden", err)
	}
	if err := svc.Report(ctx, alice, result.Slug, "too short"); !errors.Is(err, domain.ErrValidationFailed) {
		t.Errorf("short reason Report = %v; want ErrValidationFailed", err)
	}
	if err := svc.Report(ctx, alice, result.Slug, "this paste is spam content"); err != nil {
		t.Errorf("Report = %v; want nil", err)
	}
}

func TestListings(t *testing.T) {
	svc, _ := testService(t, testCfg(t, cfg.StorageInline))
	ctx := context.Background()

	pub, err := svc.Create(ctx, anon("203.0.113.1"), domain.CreateParams{
		Title: "needle title", Content: "x", Syntax: "go", Status: domain.StatusPublic,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	unlisted, err := svc.Create(ctx, anon("203.0.113.1"), domain.CreateParams{
		Title: "hidden", Content: "x", Status: domain.StatusUnlisted,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sums, err := svc.Index(ctx, 1)
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if !hasSlug(sums, pub.Slug) {
		t.Error("index missing public paste")
	}
	if hasSlug(sums, unlisted.Slug) {
		t.Error("index contains unlisted paste")
	}

	body, err := svc.Create(ctx, anon("203.0.113.1"), domain.CreateParams{
		Title: "other", Content: "buried needlebody phrase", Syntax: "python", Status: domain.StatusPublic,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sums, err = svc.Search(ctx, "needle", 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !hasSlug(sums, pub.Slug) {
		t.Error("search missed matching title")
	}
	sums, err = svc.Search(ctx, "needlebody phrase", 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !hasSlug(sums, body.Slug) {
		t.Error("search missed matching content")
	}
	sums, err = svc.Search(ctx, "python", 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !hasSlug(sums, body.Slug) {
		t.Error("search missed matching syntax")
	}
	if _, err := svc.Search(ctx, "ok", 1); err != nil {
		t.Errorf("two-character Search = %v; want nil", err)
	}
	if _, err := svc.Search(ctx, "a", 1); !errors.Is(err, domain.ErrValidationFailed) {
		t.Errorf("short term Search = %v; want ErrValidationFailed", err)
	}

	syntaxes, err := svc.ArchiveSyntaxes(ctx)
	if err != nil {
		t.Fatalf("ArchiveSyntaxes failed: %v", err)
	}
	if !containsString(syntaxes, "go") {
		t.Errorf("syntaxes = %v; want go", syntaxes)
	}
	sums, err = svc.Archive(ctx, "go", 1)
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if !hasSlug(sums, pub.Slug) {
		t.Error("archive missing go paste")
	}

	sums, err = svc.Trending(ctx, "today")
	if err != nil {
		t.Fatalf("Trending failed: %v", err)
	}
	if !hasSlug(sums, pub.Slug) {
		t.Error("trending missing fresh public paste")
	}
	if _, err := svc.Trending(ctx, "decade"); !errors.Is(err, domain.ErrValidationFailed) {
		t.Errorf("bad range Trending = %v; want ErrValidationFailed", err)
	}
}

func TestTrendingRangeWindows(t *testing.T) {
	svc, _ := testService(t, testCfg(t, cfg.StorageInline))
	// Thursday, March 5th.
	svc.now = func() time.Time {
		return time.Date(2026, time.March, 5, 15, 30, 0, 0, time.UTC)
	}

	cases := []struct {
		name string
		from time.Time
	}{
		{"today", time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)},
		{"week", time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)},
		{"month", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)},
		{"year", time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		r, err := svc.trendingRange(tc.name)
		if err != nil {
			t.Fatalf("trendingRange(%q) failed: %v", tc.name, err)
		}
		if !r.From.Equal(tc.from) {
			t.Errorf("trendingRange(%q).From = %v; want %v", tc.name, r.From, tc.from)
		}
	}

	// A Sunday sits at the end of its Monday-start week.
	svc.now = func() time.Time {
		return time.Date(2026, time.March, 8, 9, 0, 0, 0, time.UTC)
	}
	r, err := svc.trendingRange("week")
	if err != nil {
		t.Fatalf("trendingRange(week) failed: %v", err)
	}
	if want := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC); !r.From.Equal(want) {
		t.Errorf("sunday week From = %v; want %v", r.From, want)
	}
}

func TestListingTogglesOff(t *testing.T) {
	c := testCfg(t, cfg.StorageInline)
	c.SearchPage = false
	c.ArchivePage = false
	c.TrendingPage = false
	c.ReportFeature = false
	svc, sqlDB := testService(t, c)
	ctx := context.Background()
	alice := testUser(t, sqlDB, "alice")

	if _, err := svc.Search(ctx, "anything", 1); !errors.Is(err, domain.ErrFeatureDisabled) {
		t.Errorf("Search = %v; want ErrFeatureDisabled", err)
	}
	if _, err := svc.Archive(ctx, "go", 1); !errors.Is(err, domain.ErrFeatureDisabled) {
		t.Errorf("Archive = %v; want ErrFeatureDisabled", err)
	}
	if _, err := svc.Trending(ctx, "today"); !errors.Is(err, domain.ErrFeatureDisabled) {
		t.Errorf("Trending = %v; want ErrFeatureDisabled", err)
	}
	if err := svc.Report(ctx, alice, "whatever", "long enough reason here"); !errors.Is(err, domain.ErrFeatureDisabled) {
		t.Errorf("Report = %v; want ErrFeatureDisabled", err)
	}
}

func TestExpiredPasteHiddenFromListings(t *testing.T) {
	svc, _ := testService(t, testCfg(t, cfg.StorageInline))
	ctx := context.Background()
	created := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return created }

	result, err := svc.Create(ctx, anon("203.0.113.1"), domain.CreateParams{
		Title: "t", Content: "x", Status: domain.StatusPublic, Expire: "10M",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	svc.now = func() time.Time { return created.Add(time.Hour) }
	sums, err := svc.Index(ctx, 1)
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if hasSlug(sums, result.Slug) {
		t.Error("expired paste still listed")
	}
}

func TestJanitorPrunes(t *testing.T) {
	c := testCfg(t, cfg.StorageFile)
	svc, sqlDB := testService(t, c)
	ctx := context.Background()
	created := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return created }

	result, err := svc.Create(ctx, anon("203.0.113.1"), domain.CreateParams{
		Title: "t", Content: "x", Status: domain.StatusPublic, Expire: "10M",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	row, err := sqlDB.GetBySlug(ctx, result.Slug)
	if err != nil {
		t.Fatalf("GetBySlug failed: %v", err)
	}

	svc.now = func() time.Time { return created.Add(time.Hour) }
	pruned, err := svc.pruneExpired(ctx)
	if err != nil {
		t.Fatalf("pruneExpired failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d; want 1", pruned)
	}
	if _, err := os.Stat(row.Content); !os.IsNotExist(err) {
		t.Error("file artifact survived pruning")
	}
	if _, err := sqlDB.GetBySlug(ctx, result.Slug); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Errorf("GetBySlug after prune = %v; want ErrPasteNotFound", err)
	}
}

func hasSlug(sums []domain.Summary, slug string) bool {
	for _, s := range sums {
		if s.Slug == slug {
			return true
		}
	}
	return false
}

func containsString(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
