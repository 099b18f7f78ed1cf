package domain

import (
	"time"
)

type Status int

const (
	StatusPublic   Status = 1
	StatusUnlisted Status = 2
	StatusPrivate  Status = 3
)

func (s Status) Valid() bool {
	return s == StatusPublic || s == StatusUnlisted || s == StatusPrivate
}

type StorageMode int

const (
	StorageInline StorageMode = 1
	StorageFile   StorageMode = 2
)

// Paste is the persisted entity. Content holds the inline body, the
// base64 ciphertext, or a file locator depending on StorageMode and
// Encrypted.
type Paste struct {
	ID           int64
	Slug         string
	Title        string
	Content      string
	Syntax       string
	Status       Status
	CreatedAt    time.Time
	ExpireTime   *time.Time
	SelfDestruct bool
	Views        int64
	PasswordHash string
	Encrypted    bool
	StorageMode  StorageMode
	UserID       *int64
	IPAddress    string
}

func (p *Paste) PasswordProtected() bool {
	return p.PasswordHash != ""
}

type CreateParams struct {
	Title     string
	Content   string
	Syntax    string
	Status    Status
	Expire    string
	Password  string
	Encrypted bool
}

type UpdateParams struct {
	Title     string
	Content   string
	Syntax    string
	Status    Status
	Password  string
	Encrypted bool
}

type CreateResult struct {
	Slug string `json:"slug"`
	URL  string `json:"paste_url"`
}

// Projection is the read-only view returned to a reader. It never
// carries the password hash.
type Projection struct {
	Title       string          `json:"title"`
	Slug        string          `json:"slug"`
	Syntax      string          `json:"syntax"`
	ExpireTime  *time.Time      `json:"expire_time"`
	Status      Status          `json:"status"`
	Views       int64           `json:"views"`
	Description string          `json:"description"`
	Encrypted   bool            `json:"encrypted"`
	Extension   string          `json:"extension"`
	CreatedAt   time.Time       `json:"created_at"`
	URL         string          `json:"url"`
	Content     string          `json:"content"`
	User        *UserProjection `json:"user"`
}

// Summary is the listing row used by index, search, archive and
// trending pages.
type Summary struct {
	Title             string     `json:"title"`
	Syntax            string     `json:"syntax"`
	Slug              string     `json:"slug"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpireTime        *time.Time `json:"expire_time"`
	Views             int64      `json:"views"`
	Encrypted         bool       `json:"encrypted"`
	PasswordProtected bool       `json:"password_protected"`
	URL               string     `json:"url"`
}
