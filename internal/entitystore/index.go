package entitystore

import (
	"encoding/json"
	"iter"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var indexNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Handle is a ghost: it holds only an OID until Get is first called, then
// memoizes the materialized object.
type Handle[T Object] struct {
	db  *Database
	oid string

	mu     sync.Mutex
	loaded bool
	value  T
}

func (h *Handle[T]) OID() string { return h.oid }

// Loaded reports whether the handle has been materialized.
func (h *Handle[T]) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded
}

func (h *Handle[T]) Get() (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loaded {
		return h.value, nil
	}
	var zero T
	obj, err := h.db.load(h.oid)
	if err != nil {
		return zero, errors.Wrapf(err, "load %s", h.oid)
	}
	v, ok := obj.(T)
	if !ok {
		return zero, errors.Wrapf(ErrInvalidObject, "%s is a %s", h.oid, obj.ObjectType())
	}
	h.value = v
	h.loaded = true
	return v, nil
}

// Index is a named, persisted key -> object mapping.
//
// Entries loaded from the backend stay ghosts until read. Iterating Values
// materializes every member, so existence checks must use Get or Contains.
type Index[T Object] struct {
	db    *Database
	name  string
	keyFn func(T) string

	// Guarded by db.mu.
	entries   map[string]*Handle[T]
	committed map[string]string
	changed   bool
}

type indexRecord struct {
	Name    string            `json:"name"`
	Entries map[string]string `json:"entries"`
}

// OpenIndex returns the index called name, loading its committed entries as
// ghosts. Opening the same name twice returns the same index.
func OpenIndex[T Object](db *Database, name string, keyFn func(T) string) (*Index[T], error) {
	if !indexNameRe.MatchString(name) {
		return nil, errors.Errorf("invalid index name %q", name)
	}
	if keyFn == nil {
		return nil, errors.New("key function is required")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if existing, ok := db.indexes[name]; ok {
		ix, ok := existing.(*Index[T])
		if !ok {
			return nil, errors.Wrapf(ErrIndexTypeClash, "index %s", name)
		}
		return ix, nil
	}

	committed := make(map[string]string)
	data, err := db.backend.Get(indexKey(name))
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, errors.Wrapf(err, "load index %s", name)
	default:
		var rec indexRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, errors.Wrapf(err, "decode index %s", name)
		}
		for k, oid := range rec.Entries {
			committed[k] = oid
		}
	}

	ix := &Index[T]{db: db, name: name, keyFn: keyFn, committed: committed}
	ix.entries = ix.ghosts(committed)
	db.indexes[name] = ix
	return ix, nil
}

func (ix *Index[T]) ghosts(entries map[string]string) map[string]*Handle[T] {
	out := make(map[string]*Handle[T], len(entries))
	for k, oid := range entries {
		out[k] = &Handle[T]{db: ix.db, oid: oid}
	}
	return out
}

func (ix *Index[T]) Name() string { return ix.name }

// Add inserts or overwrites obj under its key. Either the object and the index
// entry are both registered, or neither is.
func (ix *Index[T]) Add(obj T) error {
	key := ix.keyFn(obj)
	if strings.TrimSpace(key) == "" {
		return errors.Wrapf(ErrInvalidObject, "index %s: empty key for %s", ix.name, obj.ObjectID())
	}

	ix.db.mu.Lock()
	defer ix.db.mu.Unlock()

	oid, err := ix.db.addLocked(obj)
	if err != nil {
		return errors.Wrapf(err, "index %s", ix.name)
	}
	ix.entries[key] = &Handle[T]{db: ix.db, oid: oid, loaded: true, value: obj}
	ix.changed = true
	return nil
}

// Handle returns the entry for key without materializing it.
func (ix *Index[T]) Handle(key string) (*Handle[T], bool) {
	ix.db.mu.RLock()
	defer ix.db.mu.RUnlock()
	h, ok := ix.entries[key]
	return h, ok
}

// Get materializes the entry for key. A miss is (zero, false, nil).
func (ix *Index[T]) Get(key string) (T, bool, error) {
	var zero T
	h, ok := ix.Handle(key)
	if !ok {
		return zero, false, nil
	}
	v, err := h.Get()
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (ix *Index[T]) Contains(key string) bool {
	_, ok := ix.Handle(key)
	return ok
}

// Pop removes and returns the entry for key. The entry is only removed once it
// has been materialized successfully.
func (ix *Index[T]) Pop(key string) (T, bool, error) {
	var zero T
	h, ok := ix.Handle(key)
	if !ok {
		return zero, false, nil
	}
	v, err := h.Get()
	if err != nil {
		return zero, false, err
	}

	ix.db.mu.Lock()
	defer ix.db.mu.Unlock()
	if cur, ok := ix.entries[key]; ok && cur == h {
		delete(ix.entries, key)
		ix.changed = true
	}
	return v, true, nil
}

// Keys returns all keys, sorted.
func (ix *Index[T]) Keys() []string {
	ix.db.mu.RLock()
	defer ix.db.mu.RUnlock()
	return ix.sortedKeysLocked()
}

func (ix *Index[T]) sortedKeysLocked() []string {
	keys := make([]string, 0, len(ix.entries))
	for k := range ix.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (ix *Index[T]) Len() int {
	ix.db.mu.RLock()
	defer ix.db.mu.RUnlock()
	return len(ix.entries)
}

// Values yields every member in key order, materializing each one only when
// the iteration reaches it.
func (ix *Index[T]) Values() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		ix.db.mu.RLock()
		keys := ix.sortedKeysLocked()
		handles := make([]*Handle[T], 0, len(keys))
		for _, k := range keys {
			handles = append(handles, ix.entries[k])
		}
		ix.db.mu.RUnlock()

		for _, h := range handles {
			v, err := h.Get()
			if !yield(v, err) {
				return
			}
		}
	}
}

func (ix *Index[T]) pending() ([]byte, bool, error) {
	if !ix.changed {
		return nil, false, nil
	}
	rec := indexRecord{Name: ix.name, Entries: make(map[string]string, len(ix.entries))}
	for k, h := range ix.entries {
		rec.Entries[k] = h.oid
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (ix *Index[T]) markCommitted() {
	committed := make(map[string]string, len(ix.entries))
	for k, h := range ix.entries {
		committed[k] = h.oid
	}
	ix.committed = committed
	ix.changed = false
}

func (ix *Index[T]) rollback() {
	ix.entries = ix.ghosts(ix.committed)
	ix.changed = false
}

// Collect drains a Values sequence, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	out := make([]T, 0)
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
