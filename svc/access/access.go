package access

import (
	"time"

	"pastry/cfg"
	"pastry/pkg/domain"
	"pastry/svc/auth"
	"pastry/svc/expiry"
)

// Gate resolves whether a request may read, write, delete or create
// pastes. It owns no state beyond config toggles and the password
// hasher.
type Gate struct {
	cfg    *cfg.Cfg
	hasher *auth.Hasher
}

func NewGate(c *cfg.Cfg, h *auth.Hasher) *Gate {
	if c == nil || h == nil {
		panic("access gate: nil dependency")
	}
	return &Gate{cfg: c, hasher: h}
}

// CanRead applies the read rules in order: owner visibility, private
// gating, liveness, password. owner may be nil for anonymous pastes.
func (g *Gate) CanRead(p *domain.Paste, owner *domain.User, req domain.Requester, password string, now time.Time) error {
	if p == nil {
		return domain.ErrPasteNotFound
	}
	if p.UserID != nil && (owner == nil || owner.Suspended()) {
		return domain.ErrPasteNotFound
	}
	if p.Status == domain.StatusPrivate && !req.Owns(p) {
		return domain.ErrForbidden
	}
	if !expiry.IsLive(p, now) {
		return domain.ErrPasteExpired
	}
	if p.PasswordProtected() {
		if password == "" {
			return domain.ErrPasswordRequired
		}
		match, err := g.hasher.Verify(password, p.PasswordHash)
		if err != nil {
			return err
		}
		if !match {
			return domain.ErrPasswordMismatch
		}
	}
	return nil
}

// CanWrite allows the owner to update a paste that has not expired.
func (g *Gate) CanWrite(p *domain.Paste, req domain.Requester, now time.Time) error {
	if p == nil || !req.Owns(p) {
		return domain.ErrPasteNotFound
	}
	if !expiry.IsLive(p, now) {
		return domain.ErrPasteExpired
	}
	return nil
}

func (g *Gate) CanDelete(p *domain.Paste, req domain.Requester) error {
	if p == nil || !req.Owns(p) {
		return domain.ErrPasteNotFound
	}
	return nil
}

// CanCreate returns the visibility statuses the requester may use.
// Anonymous callers get public/unlisted behind the public_paste
// toggle; authenticated users add private behind user_paste; admins
// bypass both toggles.
func (g *Gate) CanCreate(req domain.Requester) ([]domain.Status, error) {
	if req.Admin() {
		return []domain.Status{domain.StatusPublic, domain.StatusUnlisted, domain.StatusPrivate}, nil
	}
	if req.Authenticated {
		if !g.cfg.UserPaste {
			return nil, domain.ErrFeatureDisabled
		}
		return []domain.Status{domain.StatusPublic, domain.StatusUnlisted, domain.StatusPrivate}, nil
	}
	if !g.cfg.PublicPaste {
		return nil, domain.ErrFeatureDisabled
	}
	return []domain.Status{domain.StatusPublic, domain.StatusUnlisted}, nil
}

// StatusAllowed reports whether status is in the allowed set.
func StatusAllowed(status domain.Status, allowed []domain.Status) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}
