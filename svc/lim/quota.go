package lim

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"pastry/cfg"
	"pastry/metrics"
	"pastry/pkg/domain"
)

// QuotaStore is the persistence slice the quota check reads.
type QuotaStore interface {
	CountUserPastesBetween(ctx context.Context, userID int64, from, to time.Time) (int, error)
	CountIPPastesBetween(ctx context.Context, ip string, from, to time.Time) (int, error)
	LastUserPaste(ctx context.Context, userID int64) (*time.Time, error)
	LastIPPaste(ctx context.Context, ip string) (*time.Time, error)
}

// Quota enforces the per-identity daily ceiling and minimum
// inter-paste interval. Authenticated users key on user id, anonymous
// callers on source address, with independent limits.
//
// The count query and the subsequent insert are not serialized across
// requests; concurrent submissions from one identity can overshoot
// the ceiling by a request or two, matching the original behavior.
type Quota struct {
	store QuotaStore
	loc   *time.Location

	authLimit      int
	unauthLimit    int
	authInterval   time.Duration
	unauthInterval time.Duration
}

func NewQuota(store QuotaStore, c *cfg.Cfg) *Quota {
	if store == nil || c == nil {
		panic("quota: nil dependency")
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Quota{
		store:          store,
		loc:            loc,
		authLimit:      c.DailyPasteLimitAuth,
		unauthLimit:    c.DailyPasteLimitUnauth,
		authInterval:   c.PasteTimeRestrictAuth,
		unauthInterval: c.PasteTimeRestrictUnauth,
	}
}

// Check gates a create request at now. Daily count is pastes created
// on now's calendar day in the service timezone.
func (q *Quota) Check(ctx context.Context, req domain.Requester, now time.Time) error {
	dayStart, dayEnd := dayBounds(now, q.loc)

	var (
		count    int
		last     *time.Time
		err      error
		limit    int
		interval time.Duration
	)
	if req.Authenticated {
		limit, interval = q.authLimit, q.authInterval
		count, err = q.store.CountUserPastesBetween(ctx, req.UserID, dayStart, dayEnd)
		if err != nil {
			return errors.Wrap(err, "count daily pastes")
		}
		last, err = q.store.LastUserPaste(ctx, req.UserID)
	} else {
		limit, interval = q.unauthLimit, q.unauthInterval
		count, err = q.store.CountIPPastesBetween(ctx, req.IP, dayStart, dayEnd)
		if err != nil {
			return errors.Wrap(err, "count daily pastes")
		}
		last, err = q.store.LastIPPaste(ctx, req.IP)
	}
	if err != nil {
		return errors.Wrap(err, "last paste lookup")
	}

	if count >= limit {
		metrics.QuotaRejections.WithLabelValues("daily_limit").Inc()
		return domain.ErrDailyLimitReached
	}
	if last != nil && interval > 0 {
		nextAllowed := last.Add(interval)
		if nextAllowed.After(now) {
			metrics.QuotaRejections.WithLabelValues("too_soon").Inc()
			remaining := int(nextAllowed.Sub(now).Round(time.Second).Seconds())
			if remaining < 1 {
				remaining = 1
			}
			return domain.TooSoonErr(remaining)
		}
	}
	return nil
}

func dayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
