package project

import (
	"github.com/pkg/errors"

	"lineage/internal/core"
)

// Checksummer reports the current content checksum of a path. A missing path
// is ("", false, nil).
type Checksummer interface {
	Checksum(path, revision string) (string, bool, error)
}

// Status compares the provenance record against actual content.
type Status struct {
	// Modified holds usages whose content changed; Checksum is the new one.
	Modified []core.PlanUsage
	// Deleted holds usages whose path no longer exists.
	Deleted []core.PlanUsage
	Rerun   []*core.Plan
	Blocked []*core.Plan
	// Cycle is set when the dependency graph is not a DAG.
	Cycle []string
}

func (s *Status) UpToDate() bool {
	return len(s.Rerun) == 0 && len(s.Blocked) == 0
}

// Status checks every input the latest execution of each plan used and
// returns the plans that are stale as a result.
func (p *Project) Status(cs Checksummer, revision string) (*Status, error) {
	usages, err := p.Log.LatestPlanUsages()
	if err != nil {
		return nil, err
	}

	st := &Status{}
	for _, u := range usages {
		sum, ok, err := cs.Checksum(u.Path, revision)
		if err != nil {
			return nil, errors.Wrapf(err, "checksum %s", u.Path)
		}
		switch {
		case !ok:
			st.Deleted = append(st.Deleted, u)
		case sum != u.Checksum:
			st.Modified = append(st.Modified, core.PlanUsage{PlanID: u.PlanID, Path: u.Path, Checksum: sum})
		}
	}

	if st.Cycle, err = p.Graph.Cycle(); err != nil {
		return nil, err
	}
	if st.Cycle != nil {
		p.log.Warn("dependency graph has a cycle", "cycle", st.Cycle)
	}

	if st.Rerun, st.Blocked, err = p.Graph.GetDownstream(st.Modified, st.Deleted); err != nil {
		return nil, err
	}
	return st, nil
}
