package core

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"lineage/internal/entitystore"
)

// Type tags of the persisted objects.
const (
	TypeDataset  = "dataset"
	TypePlan     = "plan"
	TypeActivity = "activity"
)

// RegisterTypes binds every domain type to its codec tag.
func RegisterTypes(r *entitystore.Registry) {
	entitystore.Register[Dataset](r, TypeDataset)
	entitystore.Register[Plan](r, TypePlan)
	entitystore.Register[Activity](r, TypeActivity)
}

// NewIdentifier mints a random 32-char hex identifier.
func NewIdentifier() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

func DatasetID(identifier string) string { return "/datasets/" + identifier }

func newDatasetFileID() string { return "/dataset-files/" + NewIdentifier() }

func newPlanID() string { return "/plans/" + NewIdentifier() }

func newActivityID() string { return "/activities/" + NewIdentifier() }

var nonSlugRun = regexp.MustCompile(`[^a-z0-9_.-]+`)

// Slug lowercases s and collapses every run of characters outside
// [a-z0-9_.-] into a single "-".
func Slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlugRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-._")
}

// ValidateName rejects dataset names that are not already slugs.
func ValidateName(name string) error {
	if name == "" || name != Slug(name) {
		return errors.Wrapf(ErrInvalidDataset, "invalid dataset name %q", name)
	}
	return nil
}

// DefaultName derives a dataset name from its title, appending a version
// suffix when given.
func DefaultName(title, version string) string {
	const (
		maxLength        = 24
		maxVersionLength = 10
	)
	if ValidateName(title) == nil {
		return title
	}
	name := Slug(title)
	if len(name) > maxLength {
		name = name[:maxLength]
	}
	if version != "" {
		v := Slug(version)
		if len(v) > maxVersionLength {
			v = v[:maxVersionLength]
		}
		if keep := maxLength - (len(v) + 1); len(name) > keep {
			name = name[:keep]
		}
		name = name + "_" + v
	}
	return Slug(name)
}
