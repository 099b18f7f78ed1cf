package svc

import (
	"context"
	"strings"
	"time"

	"pastry/pkg/domain"
	"pastry/svc/db"
)

const minSearchTermLength = 2

func (p *Paste) Index(ctx context.Context, page int) ([]domain.Summary, error) {
	limit, offset := p.pageBounds(page)
	sums, err := p.db.Index(ctx, p.now(), limit, offset)
	if err != nil {
		return nil, err
	}
	return p.fillURLs(sums), nil
}

func (p *Paste) Search(ctx context.Context, term string, page int) ([]domain.Summary, error) {
	if !p.cfg.SearchPage {
		return nil, domain.ErrFeatureDisabled
	}
	term = strings.TrimSpace(term)
	if len(term) < minSearchTermLength {
		return nil, domain.ValidationErr(map[string]string{
			"q": "must be at least 2 characters",
		})
	}
	limit, offset := p.pageBounds(page)
	sums, err := p.db.Search(ctx, term, p.now(), limit, offset)
	if err != nil {
		return nil, err
	}
	return p.fillURLs(sums), nil
}

func (p *Paste) Archive(ctx context.Context, syntax string, page int) ([]domain.Summary, error) {
	if !p.cfg.ArchivePage {
		return nil, domain.ErrFeatureDisabled
	}
	limit, offset := p.pageBounds(page)
	sums, err := p.db.Archive(ctx, syntax, p.now(), limit, offset)
	if err != nil {
		return nil, err
	}
	return p.fillURLs(sums), nil
}

func (p *Paste) ArchiveSyntaxes(ctx context.Context) ([]string, error) {
	if !p.cfg.ArchivePage {
		return nil, domain.ErrFeatureDisabled
	}
	return p.db.SyntaxList(ctx, p.now())
}

// Trending ranks by view count within the requested creation window.
func (p *Paste) Trending(ctx context.Context, rangeName string) ([]domain.Summary, error) {
	if !p.cfg.TrendingPage {
		return nil, domain.ErrFeatureDisabled
	}
	r, err := p.trendingRange(rangeName)
	if err != nil {
		return nil, err
	}
	sums, err := p.db.Trending(ctx, r, p.now(), p.cfg.TrendingLimit)
	if err != nil {
		return nil, err
	}
	return p.fillURLs(sums), nil
}

// trendingRange maps a range token to its calendar window: the
// current day, Monday-start week, month or year.
func (p *Paste) trendingRange(name string) (db.TrendingRange, error) {
	now := p.now().In(p.cfg.Location)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.cfg.Location)
	var from time.Time
	switch name {
	case "", "today":
		from = startOfDay
	case "week":
		sinceMonday := (int(now.Weekday()) + 6) % 7
		from = startOfDay.AddDate(0, 0, -sinceMonday)
	case "month":
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, p.cfg.Location)
	case "year":
		from = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, p.cfg.Location)
	default:
		return db.TrendingRange{}, domain.ValidationErr(map[string]string{
			"range": "must be one of today, week, month, year",
		})
	}
	return db.TrendingRange{From: from, To: now}, nil
}

func (p *Paste) pageBounds(page int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	limit = p.cfg.PastesPerPage
	offset = (page - 1) * limit
	return limit, offset
}

func (p *Paste) fillURLs(sums []domain.Summary) []domain.Summary {
	for i := range sums {
		sums[i].URL = p.pasteURL(sums[i].Slug)
	}
	return sums
}
