package cfg

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}
func (s Secret) String() string {
	return "***REDACTED***"
}

const (
	StorageInline = "inline"
	StorageFile   = "file"
)

type Cfg struct {
	Port         string
	Environment  string
	LogLevel     string
	BaseURL      string
	DatabasePath string

	RedisURL      string
	RedisTLS      bool
	RedisUsername string
	RedisPassword Secret
	RedisTimeout  time.Duration

	LRUCacheSize int

	Argon2Time        uint32
	Argon2Memory      uint32
	Argon2Parallelism uint8
	Pepper            Secret
	PepperFromSecrets bool

	// Paste policy.
	PublicPaste           bool
	UserPaste             bool
	PasteStorage          string
	StorageRoot           string
	MaxContentSizeKB      int64
	DefaultSyntax         string
	SelfDestroyAfterViews int64
	PasteTitleRequired    bool
	SlugLength            int

	// Per-identity quotas.
	DailyPasteLimitAuth     int
	DailyPasteLimitUnauth   int
	PasteTimeRestrictAuth   time.Duration
	PasteTimeRestrictUnauth time.Duration
	Timezone                string
	Location                *time.Location

	// Listing pages.
	SearchPage    bool
	ArchivePage   bool
	TrendingPage  bool
	ReportFeature bool
	PastesPerPage int
	TrendingLimit int

	Throttle ThrottleCfg

	TrustedProxies []string
	AllowedOrigins []string
	ContextTimeout time.Duration

	MetricsUser string
	MetricsPass Secret

	DBMaxOpenConns int
	DBMaxIdleConns int
	DBQueryTimeout time.Duration

	SessionTTL time.Duration
}

type ThrottleCfg struct {
	RPM   int
	Burst int
}

func Load() (*Cfg, error) {
	c := &Cfg{}
	c.Port = getEnv("PORT", "8080")
	c.Environment = getEnv("ENVIRONMENT", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.BaseURL = getEnv("BASE_URL", "http://localhost:8080")
	c.DatabasePath = getEnv("DATABASE_PATH", "pastry.db")
	c.RedisURL = getEnv("REDIS_URL", "")
	c.RedisTLS = getEnv("REDIS_TLS", "false") == "true"
	c.RedisUsername = getEnv("REDIS_USERNAME", "")
	c.RedisPassword = NewSecret(getEnv("REDIS_PASSWORD", ""))
	var err error
	c.RedisTimeout, err = getDuration("REDIS_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.LRUCacheSize, err = getInt("LRU_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	c.Argon2Time, err = getUint32("ARGON2_TIME", 2)
	if err != nil {
		return nil, err
	}
	c.Argon2Memory, err = getUint32("ARGON2_MEMORY", 64*1024)
	if err != nil {
		return nil, err
	}
	p, err := getUint32("ARGON2_PARALLELISM", 2)
	if err != nil {
		return nil, err
	}
	if p > 255 {
		return nil, errors.New("ARGON2_PARALLELISM must be <= 255")
	}
	c.Argon2Parallelism = uint8(p)
	c.Pepper = NewSecret(getEnv("PEPPER", ""))
	c.PepperFromSecrets = getEnv("PEPPER_FROM_SECRETS", "false") == "true"

	c.PublicPaste = getEnv("PUBLIC_PASTE", "true") == "true"
	c.UserPaste = getEnv("USER_PASTE", "true") == "true"
	c.PasteStorage = getEnv("PASTE_STORAGE", StorageInline)
	c.StorageRoot = getEnv("STORAGE_ROOT", "uploads")
	c.MaxContentSizeKB, err = getInt64("MAX_CONTENT_SIZE_KB", 64)
	if err != nil {
		return nil, err
	}
	c.DefaultSyntax = getEnv("DEFAULT_SYNTAX", "text")
	c.SelfDestroyAfterViews, err = getInt64("SELF_DESTROY_AFTER_VIEWS", 1)
	if err != nil {
		return nil, err
	}
	c.PasteTitleRequired = getEnv("PASTE_TITLE_REQUIRED", "false") == "true"
	c.SlugLength, err = getInt("SLUG_LENGTH", 10)
	if err != nil {
		return nil, err
	}

	c.DailyPasteLimitAuth, err = getInt("DAILY_PASTE_LIMIT_AUTH", 50)
	if err != nil {
		return nil, err
	}
	c.DailyPasteLimitUnauth, err = getInt("DAILY_PASTE_LIMIT_UNAUTH", 10)
	if err != nil {
		return nil, err
	}
	restrictAuth, err := getInt("PASTE_TIME_RESTRICT_AUTH", 30)
	if err != nil {
		return nil, err
	}
	c.PasteTimeRestrictAuth = time.Duration(restrictAuth) * time.Second
	restrictUnauth, err := getInt("PASTE_TIME_RESTRICT_UNAUTH", 120)
	if err != nil {
		return nil, err
	}
	c.PasteTimeRestrictUnauth = time.Duration(restrictUnauth) * time.Second
	c.Timezone = getEnv("TIMEZONE", "UTC")
	c.Location, err = time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}

	c.SearchPage = getEnv("SEARCH_PAGE", "true") == "true"
	c.ArchivePage = getEnv("ARCHIVE_PAGE", "true") == "true"
	c.TrendingPage = getEnv("TRENDING_PAGE", "true") == "true"
	c.ReportFeature = getEnv("FEATURE_REPORT", "true") == "true"
	c.PastesPerPage, err = getInt("PASTES_PER_PAGE", 25)
	if err != nil {
		return nil, err
	}
	c.TrendingLimit, err = getInt("TRENDING_PASTES_LIMIT", 15)
	if err != nil {
		return nil, err
	}

	c.Throttle.RPM, err = getInt("THROTTLE_RPM", 60)
	if err != nil {
		return nil, err
	}
	c.Throttle.Burst, err = getInt("THROTTLE_BURST", 10)
	if err != nil {
		return nil, err
	}

	c.TrustedProxies = getSlice("TRUSTED_PROXIES", []string{})
	c.AllowedOrigins = getSlice("ALLOWED_ORIGINS", []string{})
	c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))
	c.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 50)
	if err != nil {
		return nil, err
	}
	c.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, err
	}
	c.DBQueryTimeout, err = getDuration("DB_QUERY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.SessionTTL, err = getDuration("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	if c.DatabasePath == "" {
		return errors.New("DATABASE_PATH is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid BASE_URL: %w", err)
	}
	if c.PasteStorage != StorageInline && c.PasteStorage != StorageFile {
		return fmt.Errorf("PASTE_STORAGE must be %q or %q", StorageInline, StorageFile)
	}
	if c.PasteStorage == StorageFile && c.StorageRoot == "" {
		return errors.New("STORAGE_ROOT is required when PASTE_STORAGE=file")
	}
	if c.RedisURL != "" {
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
		if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
			return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
		}
	}
	if c.LRUCacheSize <= 0 {
		return errors.New("LRU_CACHE_SIZE must be positive")
	}
	if c.Argon2Time < 1 {
		return errors.New("ARGON2_TIME must be >= 1")
	}
	if c.Argon2Memory < 8*1024 {
		return errors.New("ARGON2_MEMORY must be >= 8192 KiB")
	}
	if c.Argon2Parallelism < 1 {
		return errors.New("ARGON2_PARALLELISM must be at least 1")
	}
	if c.MaxContentSizeKB <= 0 {
		return errors.New("MAX_CONTENT_SIZE_KB must be positive")
	}
	if c.MaxContentSizeKB > 10*1024 {
		return errors.New("MAX_CONTENT_SIZE_KB cannot exceed 10240 (10MB)")
	}
	if c.SelfDestroyAfterViews < 0 {
		return errors.New("SELF_DESTROY_AFTER_VIEWS must not be negative")
	}
	if c.SlugLength < 6 || c.SlugLength > 32 {
		return errors.New("SLUG_LENGTH must be between 6 and 32")
	}
	if c.DailyPasteLimitAuth <= 0 || c.DailyPasteLimitUnauth <= 0 {
		return errors.New("daily paste limits must be positive")
	}
	if c.PasteTimeRestrictAuth < 0 || c.PasteTimeRestrictUnauth < 0 {
		return errors.New("paste time restrictions must not be negative")
	}
	if c.PastesPerPage <= 0 || c.PastesPerPage > 100 {
		return errors.New("PASTES_PER_PAGE must be between 1 and 100")
	}
	if c.TrendingLimit <= 0 || c.TrendingLimit > 100 {
		return errors.New("TRENDING_PASTES_LIMIT must be between 1 and 100")
	}
	if c.Throttle.RPM <= 0 {
		return errors.New("THROTTLE_RPM must be positive")
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid CIDR in TRUSTED_PROXIES: %s", proxy)
			}
		} else {
			if net.ParseIP(proxy) == nil {
				return fmt.Errorf("invalid IP in TRUSTED_PROXIES: %s", proxy)
			}
		}
	}
	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
	}
	if !c.PepperFromSecrets {
		if len(c.Pepper.Value()) == 0 {
			return errors.New("PEPPER is required if PEPPER_FROM_SECRETS is false")
		}
		if len(c.Pepper.Value()) < 32 {
			return errors.New("PEPPER must be at least 32 bytes")
		}
	}
	return nil
}

func (c *Cfg) Wipe() {
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
	c.Pepper.Wipe()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getInt64(key string, fallback int64) (int64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getUint32(key string, fallback uint32) (uint32, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid uint32 for %s: %w", key, err)
	}
	return uint32(v), nil
}
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
func getSlice(key string, fallback []string) []string {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
