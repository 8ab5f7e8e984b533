package datasets

import (
	"time"

	"github.com/pkg/errors"

	"lineage/internal/core"
	"lineage/internal/entitystore"
	"lineage/internal/logger"
	"lineage/internal/metrics"
)

const (
	currentIndexName = "datasets"
	tailsIndexName   = "datasets-provenance-tails"
)

var ErrDanglingDerivation = errors.New("derived_from references an unknown dataset")

type Options struct {
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Registry is the dataset provenance registry.
//
// Writers must be serialized by the caller. Nothing is persisted until the
// underlying database is committed.
type Registry struct {
	db      *entitystore.Database
	current *entitystore.Index[*core.Dataset]
	tails   *entitystore.Index[*core.Dataset]

	now     func() time.Time
	log     *logger.Logger
	metrics *metrics.Metrics
}

func byName(d *core.Dataset) string { return d.Name }
func byID(d *core.Dataset) string   { return d.ID }

func New(db *entitystore.Database, opts Options) (*Registry, error) {
	current, err := entitystore.OpenIndex(db, currentIndexName, byName)
	if err != nil {
		return nil, errors.Wrap(err, "open datasets index")
	}
	tails, err := entitystore.OpenIndex(db, tailsIndexName, byID)
	if err != nil {
		return nil, errors.Wrap(err, "open provenance tails index")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		db:      db,
		current: current,
		tails:   tails,
		now:     now,
		log:     logger.OrNop(opts.Logger).With("component", "datasets"),
		metrics: opts.Metrics,
	}, nil
}

// AddOrUpdate stores ds as the current snapshot of its name.
//
// When a snapshot with the same name exists, ds is rebuilt against it
// (file records reused or tombstoned) and always gets a fresh identifier
// derived from it. ds is mutated in place.
func (r *Registry) AddOrUpdate(ds *core.Dataset, creator *core.Person) ([]Warning, error) {
	if err := r.checkIncoming(ds); err != nil {
		return nil, err
	}
	cur, found, err := r.current.Get(ds.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "load current dataset %s", ds.Name)
	}
	if found && cur == ds {
		return nil, errors.Wrapf(core.ErrImmutable, "dataset %s: update a copy of the current snapshot", ds.Name)
	}

	var warnings []Warning
	now := r.now()
	if found {
		if cur.IsRemoved() {
			warnings = append(warnings, r.warn(WarnUpdateRemoved, ds, "updating a removed dataset"))
		}
		if err := ds.UpdateFilesFrom(cur, now); err != nil {
			return nil, err
		}
		if err := ds.DeriveFrom(cur, creator, now); err != nil {
			return nil, err
		}
	} else {
		w, err := r.startChain(ds)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, w...)
	}

	if err := r.current.Add(ds); err != nil {
		return nil, err
	}
	if err := r.updateTails(ds); err != nil {
		return nil, err
	}
	if found {
		cur.Freeze()
	}
	r.metrics.DatasetMutated("add_or_update")
	r.log.Debug("dataset updated", "name", ds.Name, "identifier", ds.Identifier, "derived_from", ds.DerivedFrom)
	return warnings, nil
}

// AddOrReplace copies metadata and files of ds onto the current snapshot
// without starting a new chain link. The current snapshot must not have been
// committed yet.
func (r *Registry) AddOrReplace(ds *core.Dataset) ([]Warning, error) {
	if err := r.checkIncoming(ds); err != nil {
		return nil, err
	}
	cur, found, err := r.current.Get(ds.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "load current dataset %s", ds.Name)
	}

	var warnings []Warning
	target := ds
	if found && cur != ds {
		if cur.Immutable() {
			return nil, errors.Wrapf(core.ErrImmutable, "dataset %s:%s", cur.Name, cur.Identifier)
		}
		if err := ds.UpdateFilesFrom(cur, r.now()); err != nil {
			return nil, err
		}
		if err := cur.UpdateMetadata(core.Metadata{
			Creators:    ds.Creators,
			Description: ds.Description,
			Keywords:    ds.Keywords,
			Title:       ds.Title,
		}); err != nil {
			return nil, err
		}
		cur.Files = ds.Files
		target = cur
	} else if !found {
		if warnings, err = r.startChain(ds); err != nil {
			return nil, err
		}
	}

	if err := r.current.Add(target); err != nil {
		return nil, err
	}
	if err := r.updateTails(target); err != nil {
		return nil, err
	}
	r.metrics.DatasetMutated("add_or_replace")
	r.log.Debug("dataset replaced", "name", target.Name, "identifier", target.Identifier)
	return warnings, nil
}

// Remove tombstones the dataset called ds.Name. The tombstone is a new
// snapshot derived from the current one; it leaves the current index and
// becomes the tail of its chain.
func (r *Registry) Remove(ds *core.Dataset, creator *core.Person) ([]Warning, error) {
	if err := r.checkIncoming(ds); err != nil {
		return nil, err
	}
	cur, found, err := r.current.Get(ds.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "load current dataset %s", ds.Name)
	}
	if found && cur == ds {
		return nil, errors.Wrapf(core.ErrImmutable, "dataset %s: remove a copy of the current snapshot", ds.Name)
	}

	var warnings []Warning
	now := r.now()
	if found {
		if _, _, err := r.current.Pop(ds.Name); err != nil {
			return nil, err
		}
		if cur.IsRemoved() {
			warnings = append(warnings, r.warn(WarnRemoveRemoved, ds, "removing an already removed dataset"))
		}
		if err := ds.DeriveFrom(cur, creator, now); err != nil {
			return nil, err
		}
	} else {
		replaced, err := r.startChain(ds)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, r.warn(WarnRemoveMissing, ds, "removing a dataset that does not exist"))
		warnings = append(warnings, replaced...)
	}

	if err := ds.Remove(now); err != nil {
		return nil, err
	}
	if err := r.updateTails(ds); err != nil {
		return nil, err
	}
	if found {
		cur.Freeze()
	}
	r.metrics.DatasetMutated("remove")
	r.log.Debug("dataset removed", "name", ds.Name, "identifier", ds.Identifier)
	return warnings, nil
}

// checkIncoming rejects datasets that could not be stored, before any index
// is touched.
func (r *Registry) checkIncoming(ds *core.Dataset) error {
	if ds == nil {
		return errors.Wrap(core.ErrInvalidDataset, "nil dataset")
	}
	if ds.Immutable() {
		return errors.Wrapf(core.ErrImmutable, "dataset %s:%s", ds.Name, ds.Identifier)
	}
	return ds.Validate()
}

// startChain handles a dataset whose name is not current. An id that already
// exists is replaced, which also drops DerivedFrom, so a stored snapshot is
// never overwritten. A DerivedFrom that still remains must resolve.
func (r *Registry) startChain(ds *core.Dataset) ([]Warning, error) {
	var warnings []Warning
	_, exists, err := r.GetByID(ds.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		old := ds.Identifier
		if err := ds.ReplaceIdentifier(); err != nil {
			return nil, err
		}
		warnings = append(warnings, r.warn(WarnReplacedIdentifier, ds, "identifier "+old+" already exists, replaced"))
	}
	if ds.DerivedFrom != "" {
		_, ok, err := r.GetByID(ds.DerivedFrom)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Wrapf(ErrDanglingDerivation, "dataset %s derived from %s", ds.Name, ds.DerivedFrom)
		}
	}
	return warnings, nil
}

func (r *Registry) updateTails(ds *core.Dataset) error {
	if ds.DerivedFrom != "" {
		if _, _, err := r.tails.Pop(ds.DerivedFrom); err != nil {
			return errors.Wrapf(err, "pop tail %s", ds.DerivedFrom)
		}
	}
	return r.tails.Add(ds)
}

func (r *Registry) warn(code WarningCode, ds *core.Dataset, msg string) Warning {
	w := Warning{Code: code, Name: ds.Name, Identifier: ds.Identifier, Message: msg}
	r.log.Warn(msg, "code", string(code), "name", ds.Name, "identifier", ds.Identifier)
	r.metrics.SoftWarning(string(code))
	return w
}

// GetByName returns the current snapshot of name. Unless immutable is set
// the result is a private copy the caller may change freely.
func (r *Registry) GetByName(name string, immutable bool) (*core.Dataset, bool, error) {
	ds, ok, err := r.current.Get(name)
	if err != nil || !ok {
		return nil, false, err
	}
	if immutable {
		return ds, true, nil
	}
	return ds.Copy(), true, nil
}

// GetByID returns any snapshot ever stored, removed or not.
func (r *Registry) GetByID(id string) (*core.Dataset, bool, error) {
	return entitystore.GetAs[*core.Dataset](r.db, id)
}

func (r *Registry) GetPreviousVersion(ds *core.Dataset) (*core.Dataset, bool, error) {
	if ds.DerivedFrom == "" {
		return nil, false, nil
	}
	return r.GetByID(ds.DerivedFrom)
}

// AllCurrent materializes every current snapshot, ordered by name.
func (r *Registry) AllCurrent() ([]*core.Dataset, error) {
	return entitystore.Collect(r.current.Values())
}

// AllTails materializes the newest snapshot of every chain, removed ones
// included, ordered by id.
func (r *Registry) AllTails() ([]*core.Dataset, error) {
	return entitystore.Collect(r.tails.Values())
}

// History returns the derivation chain of name, newest first. Removed
// datasets are found through their tail.
func (r *Registry) History(name string) ([]*core.Dataset, error) {
	head, ok, err := r.current.Get(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		if head, err = r.removedTail(name); err != nil || head == nil {
			return nil, err
		}
	}

	chain := []*core.Dataset{head}
	seen := map[string]struct{}{head.ID: {}}
	for ds := head; ds.DerivedFrom != ""; {
		if _, loop := seen[ds.DerivedFrom]; loop {
			r.log.Warn("derivation chain loops", "name", name, "at", ds.DerivedFrom)
			break
		}
		prev, ok, err := r.GetByID(ds.DerivedFrom)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.log.Warn("derivation chain is broken", "name", name, "missing", ds.DerivedFrom)
			break
		}
		seen[prev.ID] = struct{}{}
		chain = append(chain, prev)
		ds = prev
	}
	return chain, nil
}

// removedTail finds the most recently created tail called name.
func (r *Registry) removedTail(name string) (*core.Dataset, error) {
	var newest *core.Dataset
	for ds, err := range r.tails.Values() {
		if err != nil {
			return nil, err
		}
		if ds.Name != name {
			continue
		}
		if newest == nil || ds.DateCreated.After(newest.DateCreated) {
			newest = ds
		}
	}
	return newest, nil
}
