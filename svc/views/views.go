package views

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"pastry/metrics"
	"pastry/pkg/domain"
	"pastry/svc/expiry"
)

// Set is the collection of paste ids a viewer session has already
// seen. It is owned by the caller's session store; Record takes it as
// an explicit parameter and returns the updated value.
type Set map[int64]struct{}

func (s Set) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s Set) Clone() Set {
	out := make(Set, len(s)+1)
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Store is the persistence slice the recorder needs.
type Store interface {
	IncrViews(ctx context.Context, id int64) error
	SetExpireTime(ctx context.Context, id int64, t time.Time) error
}

// Recorder counts views once per session per paste and fires the
// self-destruct expiry once the count crosses the threshold.
type Recorder struct {
	store     Store
	threshold int64
	now       func() time.Time
}

func NewRecorder(store Store, threshold int64) *Recorder {
	if store == nil {
		panic("view recorder: nil store")
	}
	return &Recorder{store: store, threshold: threshold, now: time.Now}
}

// Record returns the updated seen set and whether the count was
// incremented. Two concurrent readers sharing a fresh set can both
// increment; the DB increment itself is atomic so the count only ever
// moves forward.
func (r *Recorder) Record(ctx context.Context, p *domain.Paste, seen Set) (Set, bool, error) {
	incremented := false
	if !seen.Has(p.ID) {
		if err := r.store.IncrViews(ctx, p.ID); err != nil {
			return seen, false, errors.Wrap(err, "increment views")
		}
		p.Views++
		seen = seen.Clone()
		seen[p.ID] = struct{}{}
		incremented = true
		metrics.ViewsRecorded.Inc()
	}
	if expiry.MaybeTriggerSelfDestruct(p, r.now(), r.threshold) {
		if err := r.store.SetExpireTime(ctx, p.ID, *p.ExpireTime); err != nil {
			return seen, incremented, errors.Wrap(err, "persist self-destruct expiry")
		}
		metrics.SelfDestructs.Inc()
	}
	return seen, incremented, nil
}
