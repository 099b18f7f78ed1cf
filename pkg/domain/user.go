package domain

const (
	UserStatusActive    = 0
	UserStatusVerified  = 1
	UserStatusSuspended = 2

	RoleAdmin = 1
)

// User is the read-only projection the core needs. Account management
// lives outside this service.
type User struct {
	ID     int64
	Name   string
	Avatar string
	URL    string
	Status int
	Role   int
}

func (u *User) Suspended() bool {
	return u.Status == UserStatusSuspended
}

type UserProjection struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	URL    string `json:"url"`
}

func (u *User) Projection() *UserProjection {
	if u == nil {
		return nil
	}
	return &UserProjection{Name: u.Name, Avatar: u.Avatar, URL: u.URL}
}

// Requester is the resolved per-request identity. Zero value means an
// anonymous caller.
type Requester struct {
	UserID        int64
	Name          string
	Role          int
	Authenticated bool
	IP            string
}

func (r Requester) Admin() bool {
	return r.Authenticated && r.Role == RoleAdmin
}

func (r Requester) Owns(p *Paste) bool {
	return r.Authenticated && p.UserID != nil && *p.UserID == r.UserID
}

// Report is an append-only abuse report against a paste.
type Report struct {
	ID      int64
	PasteID int64
	UserID  int64
	Reason  string
}
