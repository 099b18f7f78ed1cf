package expiry

import (
	"time"

	"pastry/pkg/domain"
)

// Code is a relative expiry chosen at creation time.
type Code string

const (
	CodeNone         Code = "N"
	Code10Minutes    Code = "10M"
	Code1Hour        Code = "1H"
	Code1Day         Code = "1D"
	Code1Week        Code = "1W"
	Code2Weeks       Code = "2W"
	Code1Month       Code = "1M"
	Code6Months      Code = "6M"
	Code1Year        Code = "1Y"
	CodeSelfDestruct Code = "SD"
)

// offsets maps each timed code to its absolute-expiry computation.
// Calendar codes use AddDate so a month means a month, not 30 days.
var offsets = map[Code]func(time.Time) time.Time{
	Code10Minutes: func(t time.Time) time.Time { return t.Add(10 * time.Minute) },
	Code1Hour:     func(t time.Time) time.Time { return t.Add(1 * time.Hour) },
	Code1Day:      func(t time.Time) time.Time { return t.AddDate(0, 0, 1) },
	Code1Week:     func(t time.Time) time.Time { return t.AddDate(0, 0, 7) },
	Code2Weeks:    func(t time.Time) time.Time { return t.AddDate(0, 0, 14) },
	Code1Month:    func(t time.Time) time.Time { return t.AddDate(0, 1, 0) },
	Code6Months:   func(t time.Time) time.Time { return t.AddDate(0, 6, 0) },
	Code1Year:     func(t time.Time) time.Time { return t.AddDate(1, 0, 0) },
}

// Parse validates an expire code. The empty string means "never";
// anything outside the closed set is rejected rather than silently
// treated as permanent.
func Parse(s string) (Code, error) {
	if s == "" {
		return CodeNone, nil
	}
	c := Code(s)
	if c == CodeNone || c == CodeSelfDestruct {
		return c, nil
	}
	if _, ok := offsets[c]; ok {
		return c, nil
	}
	return "", domain.ErrInvalidExpiry
}

// Decision is the computed expiry for a new paste: an absolute
// timestamp, a self-destruct marker, or neither (never expires).
type Decision struct {
	ExpireTime   *time.Time
	SelfDestruct bool
}

func Compute(code Code, now time.Time) Decision {
	if code == CodeSelfDestruct {
		return Decision{SelfDestruct: true}
	}
	if offset, ok := offsets[code]; ok {
		t := offset(now)
		return Decision{ExpireTime: &t}
	}
	return Decision{}
}

// IsLive reports whether the paste is readable at now. Self-destruct
// pastes stay live until the view trigger stamps an expiry.
func IsLive(p *domain.Paste, now time.Time) bool {
	if p.ExpireTime == nil {
		return true
	}
	return p.ExpireTime.After(now)
}

// MaybeTriggerSelfDestruct stamps ExpireTime=now once a self-destruct
// paste has been viewed more than threshold times. The transition is
// one-way: an existing expiry is never touched. Returns whether it
// fired.
func MaybeTriggerSelfDestruct(p *domain.Paste, now time.Time, threshold int64) bool {
	if !p.SelfDestruct || p.ExpireTime != nil {
		return false
	}
	if p.Views <= threshold {
		return false
	}
	t := now
	p.ExpireTime = &t
	return true
}
