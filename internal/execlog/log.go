// Package execlog is the append-only log of plan executions and the two
// latest-usage queries over it.
package execlog

import (
	"sort"
	"sync"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"lineage/internal/core"
	"lineage/internal/entitystore"
	"lineage/internal/logger"
	"lineage/internal/metrics"
)

const activitiesIndexName = "activities"

var ErrDuplicateActivity = errors.New("activity already recorded")

// PathChecksum is the latest recorded content of a path.
type PathChecksum struct {
	Path       string
	Checksum   string
	Order      int64
	ActivityID string
}

type Options struct {
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Log records activities in a strictly increasing order.
//
// Both queries are answered from grouped-max indexes kept up to date on Add,
// keyed by plan id and by generated path.
type Log struct {
	activities *entitystore.Index[*core.Activity]
	log        *logger.Logger
	metrics    *metrics.Metrics

	mu           sync.RWMutex
	loaded       bool
	byOrder      *btree.BTreeG[*core.Activity]
	last         int64
	latestByPlan map[string]*core.Activity
	latestByPath map[string]PathChecksum
}

func activityID(a *core.Activity) string { return a.ID }

func byOrderLess(a, b *core.Activity) bool { return a.Order < b.Order }

func New(db *entitystore.Database, opts Options) (*Log, error) {
	ix, err := entitystore.OpenIndex(db, activitiesIndexName, activityID)
	if err != nil {
		return nil, errors.Wrap(err, "open activities index")
	}
	return &Log{
		activities: ix,
		log:        logger.OrNop(opts.Logger).With("component", "execlog"),
		metrics:    opts.Metrics,
	}, nil
}

// Reset drops the in-memory indexes; they are rebuilt from the store on next
// use.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = false
	l.byOrder = nil
}

func (l *Log) load() error {
	l.mu.RLock()
	loaded := l.loaded
	l.mu.RUnlock()
	if loaded {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return nil
	}
	l.byOrder = btree.NewG(32, byOrderLess)
	l.last = 0
	l.latestByPlan = make(map[string]*core.Activity)
	l.latestByPath = make(map[string]PathChecksum)
	for a, err := range l.activities.Values() {
		if err != nil {
			return errors.Wrap(err, "load activities")
		}
		if prev, dup := l.byOrder.ReplaceOrInsert(a); dup {
			l.log.Warn("activities share an order", "order", a.Order, "kept", a.ID, "dropped", prev.ID)
		}
		l.indexLocked(a)
	}
	l.loaded = true
	return nil
}

// Add appends activities in the given order, assigning each the next order
// value. Nothing is recorded unless every activity is valid and new.
func (l *Log) Add(activities ...*core.Activity) error {
	if err := l.load(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	batch := make(map[string]struct{}, len(activities))
	for _, a := range activities {
		if a == nil {
			return errors.Wrap(core.ErrInvalidActivity, "nil activity")
		}
		if err := a.Validate(); err != nil {
			return err
		}
		_, seen := batch[a.ID]
		if seen || l.activities.Contains(a.ID) {
			return errors.Wrapf(ErrDuplicateActivity, "%s", a.ID)
		}
		batch[a.ID] = struct{}{}
	}

	for _, a := range activities {
		a.Order = l.last + 1
		if err := l.activities.Add(a); err != nil {
			return errors.Wrapf(err, "add activity %s", a.ID)
		}
		l.byOrder.ReplaceOrInsert(a)
		l.indexLocked(a)
		l.metrics.ActivityAppended()
		l.log.Debug("activity recorded", "id", a.ID, "plan", a.PlanID, "order", a.Order)
	}
	return nil
}

// indexLocked folds a into the grouped-max indexes.
func (l *Log) indexLocked(a *core.Activity) {
	if a.Order > l.last {
		l.last = a.Order
	}
	if cur, ok := l.latestByPlan[a.PlanID]; !ok || a.Order > cur.Order {
		l.latestByPlan[a.PlanID] = a
	}
	for _, g := range a.Generations {
		if cur, ok := l.latestByPath[g.Path]; !ok || a.Order >= cur.Order {
			l.latestByPath[g.Path] = PathChecksum{Path: g.Path, Checksum: g.Checksum, Order: a.Order, ActivityID: a.ID}
		}
	}
}

// Activities returns every activity by ascending order.
func (l *Log) Activities() ([]*core.Activity, error) {
	if err := l.load(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*core.Activity, 0, l.byOrder.Len())
	l.byOrder.Ascend(func(a *core.Activity) bool {
		out = append(out, a)
		return true
	})
	return out, nil
}

func (l *Log) Len() (int, error) {
	if err := l.load(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byOrder.Len(), nil
}

// LatestActivity returns the execution of planID with the highest order.
func (l *Log) LatestActivity(planID string) (*core.Activity, bool, error) {
	if err := l.load(); err != nil {
		return nil, false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.latestByPlan[planID]
	return a, ok, nil
}

// LatestPlanUsages returns the usages of the latest execution of every plan,
// sorted by plan id then path.
func (l *Log) LatestPlanUsages() ([]core.PlanUsage, error) {
	if err := l.load(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.PlanUsage, 0)
	for planID, a := range l.latestByPlan {
		for _, u := range a.Usages {
			out = append(out, core.PlanUsage{PlanID: planID, Path: u.Path, Checksum: u.Checksum})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlanID != out[j].PlanID {
			return out[i].PlanID < out[j].PlanID
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// LatestPathChecksums returns, for every generated path, the checksum written
// by the activity with the highest order. This is the recorded state; the
// working tree may differ.
func (l *Log) LatestPathChecksums() (map[string]PathChecksum, error) {
	if err := l.load(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]PathChecksum, len(l.latestByPath))
	for p, c := range l.latestByPath {
		out[p] = c
	}
	return out, nil
}
