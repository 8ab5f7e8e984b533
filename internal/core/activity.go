package core

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Usage is a path and checksum an activity consumed.
type Usage struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}

// Generation is a path and checksum an activity produced.
type Generation struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}

// Activity is one execution of a plan. The plan is referenced by id only.
//
// Order is assigned by the execution log on append; zero means unassigned.
type Activity struct {
	ID            string       `json:"id"`
	PlanID        string       `json:"plan_id"`
	Order         int64        `json:"order"`
	StartedAt     time.Time    `json:"started_at"`
	EndedAt       time.Time    `json:"ended_at"`
	Usages        []Usage      `json:"usages,omitempty"`
	Generations   []Generation `json:"generations,omitempty"`
	Invalidations []string     `json:"invalidations,omitempty"`
}

func NewActivity(planID string, started, ended time.Time) *Activity {
	return &Activity{
		ID:        newActivityID(),
		PlanID:    planID,
		StartedAt: started.UTC(),
		EndedAt:   ended.UTC(),
	}
}

func (a *Activity) ObjectID() string   { return a.ID }
func (a *Activity) ObjectType() string { return TypeActivity }

func (a *Activity) Validate() error {
	var err error
	if strings.TrimSpace(a.ID) == "" {
		err = multierr.Append(err, errors.Wrap(ErrInvalidActivity, "id is required"))
	}
	if strings.TrimSpace(a.PlanID) == "" {
		err = multierr.Append(err, errors.Wrap(ErrInvalidActivity, "plan id is required"))
	}
	if !a.EndedAt.IsZero() && a.EndedAt.Before(a.StartedAt) {
		err = multierr.Append(err, errors.Wrap(ErrInvalidActivity, "ended before it started"))
	}
	for i, u := range a.Usages {
		if u.Path == "" {
			err = multierr.Append(err, errors.Wrapf(ErrInvalidActivity, "usages[%d] has no path", i))
		}
	}
	for i, g := range a.Generations {
		if g.Path == "" {
			err = multierr.Append(err, errors.Wrapf(ErrInvalidActivity, "generations[%d] has no path", i))
		}
	}
	return err
}

// PlanUsage is one (plan, path, checksum) row of the provenance record.
type PlanUsage struct {
	PlanID   string
	Path     string
	Checksum string
}
