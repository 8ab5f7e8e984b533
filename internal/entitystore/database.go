package entitystore

import (
	"context"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"lineage/internal/logger"
	"lineage/internal/metrics"
)

// Options tunes a Database.
type Options struct {
	// CacheSize bounds the number of materialized committed objects kept in
	// memory. Zero disables the cache.
	CacheSize int
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
}

// indexer is the type-erased view of an Index used at commit/discard time.
// All methods run with Database.mu held for writing.
type indexer interface {
	pending() ([]byte, bool, error)
	markCommitted()
	rollback()
}

// Database is the set of persisted objects plus the named indexes over them.
//
// Reads may run concurrently with each other. Writers must be serialized by the
// caller (the project holds an advisory lock for the whole mutating sequence).
type Database struct {
	mu       sync.RWMutex
	backend  Backend
	registry *Registry
	cache    *lru.Cache[string, Object]
	dirty    map[string]Object
	indexes  map[string]indexer

	log     *logger.Logger
	metrics *metrics.Metrics
}

func Open(backend Backend, registry *Registry, opts Options) (*Database, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	db := &Database{
		backend:  backend,
		registry: registry,
		dirty:    make(map[string]Object),
		indexes:  make(map[string]indexer),
		log:      logger.OrNop(opts.Logger),
		metrics:  opts.Metrics,
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, Object](opts.CacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "create object cache")
		}
		db.cache = cache
	}
	return db, nil
}

// Add registers obj for the next commit, replacing any object with the same id.
func (db *Database) Add(obj Object) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.addLocked(obj)
	return err
}

// addLocked validates obj completely before touching any state.
func (db *Database) addLocked(obj Object) (string, error) {
	if obj == nil {
		return "", errors.Wrap(ErrInvalidObject, "nil object")
	}
	id := obj.ObjectID()
	if strings.TrimSpace(id) == "" {
		return "", errors.Wrapf(ErrInvalidObject, "%s without id", obj.ObjectType())
	}
	if !db.registry.knows(obj.ObjectType()) {
		return "", errors.Wrapf(ErrUnknownType, "add %s %q", obj.ObjectType(), id)
	}
	oid := OIDFor(id)
	db.dirty[oid] = obj
	if db.cache != nil {
		db.cache.Remove(oid)
	}
	return oid, nil
}

// Get looks an object up by domain id. A miss is (nil, false, nil).
func (db *Database) Get(id string) (Object, bool, error) {
	obj, err := db.load(OIDFor(id))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

// GetAs is Get with a type assertion.
func GetAs[T Object](db *Database, id string) (T, bool, error) {
	var zero T
	obj, ok, err := db.Get(id)
	if err != nil || !ok {
		return zero, ok, err
	}
	v, ok := obj.(T)
	if !ok {
		return zero, false, errors.Wrapf(ErrInvalidObject, "%s is a %s", id, obj.ObjectType())
	}
	return v, true, nil
}

// Dirty returns the number of objects added since the last commit.
func (db *Database) Dirty() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.dirty)
}

func (db *Database) load(oid string) (Object, error) {
	db.mu.RLock()
	obj, ok := db.dirty[oid]
	db.mu.RUnlock()
	if ok {
		return obj, nil
	}

	if db.cache != nil {
		if obj, ok := db.cache.Get(oid); ok {
			db.metrics.CacheHit()
			return obj, nil
		}
		db.metrics.CacheMiss()
	}

	data, err := db.backend.Get(objectKey(oid))
	if err != nil {
		return nil, err
	}
	obj, err = db.registry.decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "materialize %s", oid)
	}
	if f, ok := obj.(Freezer); ok {
		f.Freeze()
	}
	db.metrics.GhostLoaded()
	if db.cache != nil {
		db.cache.Add(oid, obj)
	}
	return obj, nil
}

// Commit persists every object added since the last commit together with all
// changed indexes in a single backend batch. On error nothing is marked
// committed and the uncommitted state is kept so the caller can Discard.
//
// Committed objects implementing Freezer are frozen.
func (db *Database) Commit(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	batch := Batch{Puts: make(map[string][]byte, len(db.dirty)+len(db.indexes))}
	for oid, obj := range db.dirty {
		data, err := db.registry.encode(obj)
		if err != nil {
			return errors.Wrap(err, "commit")
		}
		batch.Puts[objectKey(oid)] = data
	}
	for name, ix := range db.indexes {
		data, changed, err := ix.pending()
		if err != nil {
			return errors.Wrapf(err, "commit index %s", name)
		}
		if changed {
			batch.Puts[indexKey(name)] = data
		}
	}
	if batch.empty() {
		return nil
	}
	if err := db.backend.Apply(ctx, batch); err != nil {
		return errors.Wrap(err, "commit")
	}

	for oid, obj := range db.dirty {
		if f, ok := obj.(Freezer); ok {
			f.Freeze()
		}
		if db.cache != nil {
			db.cache.Add(oid, obj)
		}
	}
	for _, ix := range db.indexes {
		ix.markCommitted()
	}
	db.log.Debug("committed snapshot", "objects", len(db.dirty), "records", len(batch.Puts))
	db.dirty = make(map[string]Object)
	db.metrics.Committed()
	return nil
}

// Discard drops everything added since the last commit and rolls every index
// back to its committed contents.
func (db *Database) Discard() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.dirty = make(map[string]Object)
	for _, ix := range db.indexes {
		ix.rollback()
	}
	db.metrics.Discarded()
}

func (db *Database) Close() error {
	return db.backend.Close()
}
