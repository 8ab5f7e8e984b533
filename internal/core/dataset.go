package core

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Person is a dataset creator. Two creators are the same person when their
// emails match.
type Person struct {
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Affiliation string `json:"affiliation,omitempty"`
}

// DatasetFile is one file record of a dataset snapshot.
//
// ID is random on purpose: the same path can be added and removed many times
// and every addition must be a distinct record.
type DatasetFile struct {
	ID          string     `json:"id"`
	Path        string     `json:"path"`
	Checksum    string     `json:"checksum"`
	DateAdded   time.Time  `json:"date_added"`
	DateRemoved *time.Time `json:"date_removed,omitempty"`
	Source      string     `json:"source,omitempty"`
	External    bool       `json:"external,omitempty"`
}

func NewDatasetFile(path, checksum string, added time.Time) DatasetFile {
	return DatasetFile{
		ID:        newDatasetFileID(),
		Path:      path,
		Checksum:  checksum,
		DateAdded: added.UTC(),
	}
}

func (f DatasetFile) IsRemoved() bool { return f.DateRemoved != nil }

// IsEqualTo compares content. ID is excluded.
func (f DatasetFile) IsEqualTo(o DatasetFile) bool {
	return f.Path == o.Path &&
		f.Checksum == o.Checksum &&
		f.DateAdded.Equal(o.DateAdded) &&
		timePtrEqual(f.DateRemoved, o.DateRemoved) &&
		f.Source == o.Source &&
		f.External == o.External
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func timePtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}

// Metadata holds the user-editable dataset fields. Zero values mean "leave
// unchanged".
type Metadata struct {
	Creators    []Person
	Description string
	Keywords    []string
	Title       string
}

// Dataset is one snapshot of a dataset.
type Dataset struct {
	ID                string        `json:"id"`
	Identifier        string        `json:"identifier"`
	InitialIdentifier string        `json:"initial_identifier"`
	Name              string        `json:"name"`
	Title             string        `json:"title,omitempty"`
	Description       string        `json:"description,omitempty"`
	Keywords          []string      `json:"keywords,omitempty"`
	Creators          []Person      `json:"creators,omitempty"`
	Files             []DatasetFile `json:"files,omitempty"`
	DerivedFrom       string        `json:"derived_from,omitempty"`
	SameAs            string        `json:"same_as,omitempty"`
	Version           string        `json:"version,omitempty"`
	License           string        `json:"license,omitempty"`
	DateCreated       time.Time     `json:"date_created"`
	DatePublished     *time.Time    `json:"date_published,omitempty"`
	DateRemoved       *time.Time    `json:"date_removed,omitempty"`

	immutable bool
}

// NewDataset creates the first snapshot of a dataset. An empty name is derived
// from the title.
func NewDataset(name, title string, created time.Time) (*Dataset, error) {
	if name == "" {
		if strings.TrimSpace(title) == "" {
			return nil, errors.Wrap(ErrInvalidDataset, "either name or title must be set")
		}
		name = DefaultName(title, "")
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	identifier := NewIdentifier()
	return &Dataset{
		ID:                DatasetID(identifier),
		Identifier:        identifier,
		InitialIdentifier: identifier,
		Name:              name,
		Title:             title,
		DateCreated:       created.UTC(),
	}, nil
}

func (d *Dataset) ObjectID() string   { return d.ID }
func (d *Dataset) ObjectType() string { return TypeDataset }

// Freeze makes the snapshot read-only. It is called when the snapshot is
// committed or superseded.
func (d *Dataset) Freeze()         { d.immutable = true }
func (d *Dataset) Immutable() bool { return d.immutable }

func (d *Dataset) IsRemoved() bool { return d.DateRemoved != nil }

func (d *Dataset) mutable() error {
	if d.immutable {
		return errors.Wrapf(ErrImmutable, "dataset %s:%s", d.Name, d.Identifier)
	}
	return nil
}

// Copy returns a mutable deep copy.
func (d *Dataset) Copy() *Dataset {
	c := *d
	c.immutable = false
	c.Keywords = append([]string(nil), d.Keywords...)
	c.Creators = append([]Person(nil), d.Creators...)
	c.Files = make([]DatasetFile, len(d.Files))
	for i, f := range d.Files {
		if f.DateRemoved != nil {
			f.DateRemoved = timePtr(*f.DateRemoved)
		}
		c.Files[i] = f
	}
	if d.DatePublished != nil {
		c.DatePublished = timePtr(*d.DatePublished)
	}
	if d.DateRemoved != nil {
		c.DateRemoved = timePtr(*d.DateRemoved)
	}
	return &c
}

// LiveFiles returns the records that have not been removed.
func (d *Dataset) LiveFiles() []DatasetFile {
	out := make([]DatasetFile, 0, len(d.Files))
	for _, f := range d.Files {
		if !f.IsRemoved() {
			out = append(out, f)
		}
	}
	return out
}

// FindFile returns the live record for path.
func (d *Dataset) FindFile(path string) (DatasetFile, bool) {
	for _, f := range d.Files {
		if f.Path == path && !f.IsRemoved() {
			return f, true
		}
	}
	return DatasetFile{}, false
}

// AddOrUpdateFiles adds new records and replaces live records whose checksum
// or add-time changed. Unchanged records are kept as they are.
func (d *Dataset) AddOrUpdateFiles(files ...DatasetFile) error {
	if err := d.mutable(); err != nil {
		return err
	}
	for _, f := range files {
		if strings.TrimSpace(f.Path) == "" {
			return errors.Wrap(ErrInvalidDataset, "file path is required")
		}
	}
	for _, f := range files {
		idx := d.liveIndex(f.Path)
		switch {
		case idx < 0:
			d.Files = append(d.Files, f)
		case f.Checksum != d.Files[idx].Checksum || !f.DateAdded.Equal(d.Files[idx].DateAdded):
			d.Files = append(d.Files[:idx], d.Files[idx+1:]...)
			d.Files = append(d.Files, f)
		}
	}
	return nil
}

func (d *Dataset) liveIndex(path string) int {
	for i, f := range d.Files {
		if f.Path == path && !f.IsRemoved() {
			return i
		}
	}
	return -1
}

// UnlinkFile marks the live record for path as removed at the given time.
func (d *Dataset) UnlinkFile(path string, missingOK bool, at time.Time) (DatasetFile, bool, error) {
	if err := d.mutable(); err != nil {
		return DatasetFile{}, false, err
	}
	idx := d.liveIndex(path)
	if idx < 0 {
		if missingOK {
			return DatasetFile{}, false, nil
		}
		return DatasetFile{}, false, errors.Wrapf(ErrFileNotFound, "%s", path)
	}
	d.Files[idx].DateRemoved = timePtr(at)
	return d.Files[idx], true, nil
}

// UpdateMetadata applies the non-zero fields of m.
func (d *Dataset) UpdateMetadata(m Metadata) error {
	if err := d.mutable(); err != nil {
		return err
	}
	if len(m.Creators) > 0 {
		d.Creators = append([]Person(nil), m.Creators...)
	}
	if m.Description != "" {
		d.Description = m.Description
	}
	if len(m.Keywords) > 0 {
		d.Keywords = append([]string(nil), m.Keywords...)
	}
	if m.Title != "" {
		d.Title = m.Title
	}
	return nil
}

// UpdateFilesFrom rebuilds the file list against the current snapshot.
//
// A live record whose checksum and add-time match the current record for the
// same path is replaced by the current record, keeping its id. Every current
// live path missing from d is carried over as a removed record. Records d
// already had as removed stay in front.
func (d *Dataset) UpdateFilesFrom(current *Dataset, at time.Time) error {
	if err := d.mutable(); err != nil {
		return err
	}
	currentFiles := make(map[string]DatasetFile)
	currentOrder := make([]string, 0)
	currentIDs := make(map[string]struct{})
	for _, f := range current.LiveFiles() {
		if _, dup := currentFiles[f.Path]; !dup {
			currentOrder = append(currentOrder, f.Path)
		}
		currentFiles[f.Path] = f
		currentIDs[f.ID] = struct{}{}
	}

	files := make([]DatasetFile, 0, len(d.Files))
	for _, f := range d.Files {
		if _, carried := currentIDs[f.ID]; f.IsRemoved() && !carried {
			files = append(files, f)
		}
	}
	for _, f := range d.LiveFiles() {
		cur, ok := currentFiles[f.Path]
		delete(currentFiles, f.Path)
		if ok && f.IsEqualTo(cur) {
			files = append(files, cur)
			continue
		}
		files = append(files, f)
	}
	for _, p := range currentOrder {
		removed, ok := currentFiles[p]
		if !ok {
			continue
		}
		removed.DateRemoved = timePtr(at)
		files = append(files, removed)
	}
	d.Files = files
	return nil
}

// DeriveFrom makes d the successor of prev: a fresh identifier, DerivedFrom
// set to prev's id, and creator appended unless a creator with the same email
// is already listed.
func (d *Dataset) DeriveFrom(prev *Dataset, creator *Person, now time.Time) error {
	if err := d.mutable(); err != nil {
		return err
	}
	if prev == nil {
		return errors.Wrap(ErrInvalidDataset, "cannot derive from nil")
	}
	d.assignNewIdentifier()
	d.InitialIdentifier = prev.InitialIdentifier
	d.DerivedFrom = prev.ID
	d.SameAs = ""
	d.DateCreated = now.UTC()
	d.DatePublished = nil
	if creator != nil && creator.Email != "" && !d.hasCreator(creator.Email) {
		d.Creators = append(d.Creators, *creator)
	}
	return nil
}

func (d *Dataset) hasCreator(email string) bool {
	for _, c := range d.Creators {
		if c.Email == email {
			return true
		}
	}
	return false
}

// ReplaceIdentifier starts a new chain: fresh identifier and no predecessor.
func (d *Dataset) ReplaceIdentifier() error {
	if err := d.mutable(); err != nil {
		return err
	}
	d.DerivedFrom = ""
	d.assignNewIdentifier()
	return nil
}

func (d *Dataset) assignNewIdentifier() {
	identifier := NewIdentifier()
	d.Identifier = identifier
	d.InitialIdentifier = identifier
	d.ID = DatasetID(identifier)
}

// Remove tombstones the snapshot.
func (d *Dataset) Remove(at time.Time) error {
	if err := d.mutable(); err != nil {
		return err
	}
	d.DateRemoved = timePtr(at)
	return nil
}

func (d *Dataset) Validate() error {
	var err error
	if vErr := ValidateName(d.Name); vErr != nil {
		err = multierr.Append(err, vErr)
	}
	if strings.TrimSpace(d.Identifier) == "" {
		err = multierr.Append(err, errors.Wrap(ErrInvalidDataset, "identifier is required"))
	} else if d.ID != DatasetID(d.Identifier) {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidDataset, "id %q does not match identifier %q", d.ID, d.Identifier))
	}
	if d.DerivedFrom == d.ID && d.ID != "" {
		err = multierr.Append(err, errors.Wrap(ErrInvalidDataset, "dataset derived from itself"))
	}
	live := make(map[string]struct{})
	for i, f := range d.Files {
		if strings.TrimSpace(f.Path) == "" {
			err = multierr.Append(err, errors.Wrapf(ErrInvalidDataset, "files[%d].path is required", i))
			continue
		}
		if f.IsRemoved() {
			continue
		}
		if _, dup := live[f.Path]; dup {
			err = multierr.Append(err, errors.Wrapf(ErrInvalidDataset, "duplicate live file %q", f.Path))
		}
		live[f.Path] = struct{}{}
	}
	return err
}
