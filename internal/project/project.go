// Package project wires the provenance components of one project checkout
// over a single entity store.
package project

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"lineage/internal/config"
	"lineage/internal/core"
	"lineage/internal/dag"
	"lineage/internal/datasets"
	"lineage/internal/entitystore"
	"lineage/internal/execlog"
	"lineage/internal/logger"
	"lineage/internal/metrics"
)

// Project is the entry point for a command layer. Mutations stay in memory
// until Commit; the caller holds the project's advisory lock for the whole
// mutating sequence.
type Project struct {
	Datasets *datasets.Registry
	Graph    *dag.Graph
	Log      *execlog.Log

	root    string
	db      *entitystore.Database
	log     *logger.Logger
	metrics *metrics.Metrics
}

// Open opens the store selected by cfg. reg may be nil, in which case no
// metrics are registered.
func Open(cfg config.Config, log *logger.Logger, reg prometheus.Registerer) (*Project, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	log = logger.OrNop(log)
	root, err := filepath.Abs(cfg.Project.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve project root %s", cfg.Project.Root)
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	backend, err := openBackend(cfg.Store, root, log)
	if err != nil {
		return nil, err
	}
	types := entitystore.NewRegistry()
	core.RegisterTypes(types)

	db, err := entitystore.Open(backend, types, entitystore.Options{
		CacheSize: cfg.Store.CacheSize,
		Logger:    log,
		Metrics:   m,
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	p := &Project{root: root, db: db, log: log, metrics: m}
	if p.Datasets, err = datasets.New(db, datasets.Options{Logger: log, Metrics: m}); err != nil {
		_ = db.Close()
		return nil, err
	}
	if p.Graph, err = dag.New(db, dag.Options{Root: root, Logger: log, Metrics: m}); err != nil {
		_ = db.Close()
		return nil, err
	}
	if p.Log, err = execlog.New(db, execlog.Options{Logger: log, Metrics: m}); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("project opened", "root", root, "backend", string(cfg.Store.Backend))
	return p, nil
}

func openBackend(cfg config.StoreConfig, root string, log *logger.Logger) (entitystore.Backend, error) {
	path := cfg.Path
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	switch cfg.Backend {
	case config.BackendMemory:
		return entitystore.NewMemoryBackend(), nil
	case config.BackendBadger:
		return entitystore.OpenBadger(entitystore.BadgerConfig{
			Path:       path,
			SyncWrites: cfg.SyncWrites,
			Logger:     log.With("component", "badger"),
		})
	case config.BackendFile:
		return entitystore.NewFileBackend(path)
	default:
		return nil, errors.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func (p *Project) Root() string { return p.root }

// Record inserts plan into the graph (or finds its structural twin) and
// appends the activities as executions of the resulting plan. After an error
// the caller must Discard.
func (p *Project) Record(plan *core.Plan, activities ...*core.Activity) (*core.Plan, error) {
	node, err := p.Graph.Add(plan)
	if err != nil {
		return nil, err
	}
	for _, a := range activities {
		if a != nil {
			a.PlanID = node.ID
		}
	}
	if err := p.Log.Add(activities...); err != nil {
		return nil, err
	}
	return node, nil
}

// Commit persists every change since the last commit atomically.
func (p *Project) Commit(ctx context.Context) error {
	return p.db.Commit(ctx)
}

// Discard drops every uncommitted change.
func (p *Project) Discard() {
	p.db.Discard()
	p.Graph.Reset()
	p.Log.Reset()
	p.log.Debug("uncommitted changes discarded")
}

func (p *Project) Close() error {
	p.log.Sync()
	return p.db.Close()
}
