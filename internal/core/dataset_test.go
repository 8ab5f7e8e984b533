package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDataset(t *testing.T, name string) *Dataset {
	t.Helper()
	ds, err := NewDataset(name, "", t0)
	require.NoError(t, err)
	return ds
}

func TestNewDataset_DerivesNameFromTitle(t *testing.T) {
	ds, err := NewDataset("", "My Climate Data!", t0)
	require.NoError(t, err)
	require.Equal(t, "my-climate-data", ds.Name)
	require.Equal(t, DatasetID(ds.Identifier), ds.ID)
	require.Equal(t, ds.Identifier, ds.InitialIdentifier)
	require.Len(t, ds.Identifier, 32)
}

func TestNewDataset_RejectsMissingNameAndTitle(t *testing.T) {
	_, err := NewDataset("", "  ", t0)
	require.ErrorIs(t, err, ErrInvalidDataset)

	_, err = NewDataset("Not A Slug", "", t0)
	require.ErrorIs(t, err, ErrInvalidDataset)
}

func TestDefaultName(t *testing.T) {
	require.Equal(t, "ds1", DefaultName("ds1", ""))
	require.Equal(t, "a-very-long-title-that-g", DefaultName("A very long title that goes on", ""))
	require.Equal(t, "my-data_1.0", DefaultName("My Data", "1.0"))

	name := DefaultName("A very long title that goes on", "2024.01.01-rc1")
	require.LessOrEqual(t, len(name), 24)
	require.Equal(t, "a-very-long-t_2024.01.01", name)
}

func TestDataset_AddOrUpdateFiles(t *testing.T) {
	ds := newTestDataset(t, "ds1")
	a := NewDatasetFile("a.csv", "c1", t0)
	require.NoError(t, ds.AddOrUpdateFiles(a))

	// Same content is a no-op.
	same := a
	same.ID = "/dataset-files/other"
	require.NoError(t, ds.AddOrUpdateFiles(same))
	require.Len(t, ds.Files, 1)
	require.Equal(t, a.ID, ds.Files[0].ID)

	changed := NewDatasetFile("a.csv", "c2", t0.Add(time.Hour))
	require.NoError(t, ds.AddOrUpdateFiles(changed))
	require.Len(t, ds.Files, 1)
	require.Equal(t, "c2", ds.Files[0].Checksum)

	require.ErrorIs(t, ds.AddOrUpdateFiles(DatasetFile{}), ErrInvalidDataset)
}

func TestDataset_UnlinkFile(t *testing.T) {
	ds := newTestDataset(t, "ds1")
	require.NoError(t, ds.AddOrUpdateFiles(NewDatasetFile("a.csv", "c1", t0)))

	removed, ok, err := ds.UnlinkFile("a.csv", false, t0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, removed.IsRemoved())
	require.Empty(t, ds.LiveFiles())
	require.Len(t, ds.Files, 1, "removed records are retained")

	_, ok, err = ds.UnlinkFile("a.csv", true, t0)
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = ds.UnlinkFile("a.csv", false, t0)
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestDataset_FrozenRejectsMutation(t *testing.T) {
	ds := newTestDataset(t, "ds1")
	ds.Freeze()
	require.True(t, ds.Immutable())

	require.ErrorIs(t, ds.AddOrUpdateFiles(NewDatasetFile("a.csv", "c", t0)), ErrImmutable)
	require.ErrorIs(t, ds.UpdateMetadata(Metadata{Title: "x"}), ErrImmutable)
	require.ErrorIs(t, ds.Remove(t0), ErrImmutable)
	require.ErrorIs(t, ds.ReplaceIdentifier(), ErrImmutable)

	c := ds.Copy()
	require.False(t, c.Immutable())
	require.NoError(t, c.UpdateMetadata(Metadata{Title: "x"}))
	require.Empty(t, ds.Title)
}

func TestDataset_CopyIsDeep(t *testing.T) {
	ds := newTestDataset(t, "ds1")
	ds.Keywords = []string{"k"}
	require.NoError(t, ds.AddOrUpdateFiles(NewDatasetFile("a.csv", "c", t0)))
	_, _, err := ds.UnlinkFile("a.csv", false, t0)
	require.NoError(t, err)

	c := ds.Copy()
	c.Keywords[0] = "changed"
	*c.Files[0].DateRemoved = t0.Add(time.Hour)
	require.Equal(t, "k", ds.Keywords[0])
	require.True(t, ds.Files[0].DateRemoved.Equal(t0))
}

func TestDataset_UpdateFilesFrom_IdenticalReusesRecords(t *testing.T) {
	current := newTestDataset(t, "ds1")
	a := NewDatasetFile("a.csv", "c1", t0)
	b := NewDatasetFile("b.csv", "c2", t0)
	require.NoError(t, current.AddOrUpdateFiles(a, b))

	incoming := current.Copy()
	for i := range incoming.Files {
		incoming.Files[i].ID = "/dataset-files/fresh"
	}
	require.NoError(t, incoming.UpdateFilesFrom(current, t0.Add(time.Hour)))

	require.Len(t, incoming.Files, 2)
	require.Equal(t, a.ID, incoming.Files[0].ID)
	require.Equal(t, b.ID, incoming.Files[1].ID)
}

func TestDataset_UpdateFilesFrom_TombstonesMissingPaths(t *testing.T) {
	current := newTestDataset(t, "ds1")
	require.NoError(t, current.AddOrUpdateFiles(
		NewDatasetFile("a.csv", "c1", t0),
		NewDatasetFile("b.csv", "c2", t0),
	))

	incoming := current.Copy()
	_, _, err := incoming.UnlinkFile("a.csv", false, t0)
	require.NoError(t, err)
	incoming.Files = incoming.LiveFiles()

	at := t0.Add(time.Hour)
	require.NoError(t, incoming.UpdateFilesFrom(current, at))

	require.Len(t, incoming.Files, 2)
	require.Equal(t, "b.csv", incoming.Files[0].Path)
	require.Equal(t, "a.csv", incoming.Files[1].Path)
	require.True(t, incoming.Files[1].DateRemoved.Equal(at))
	require.False(t, current.Files[0].IsRemoved(), "current snapshot must not change")
}

func TestDataset_DeriveFrom(t *testing.T) {
	prev := newTestDataset(t, "ds1")
	prev.Creators = []Person{{Name: "A", Email: "a@example.com"}}

	next := prev.Copy()
	require.NoError(t, next.DeriveFrom(prev, &Person{Name: "A again", Email: "a@example.com"}, t0))
	require.NotEqual(t, prev.Identifier, next.Identifier)
	require.Equal(t, prev.ID, next.DerivedFrom)
	require.Equal(t, prev.InitialIdentifier, next.InitialIdentifier)
	require.Len(t, next.Creators, 1)

	third := next.Copy()
	require.NoError(t, third.DeriveFrom(next, &Person{Name: "B", Email: "b@example.com"}, t0))
	require.Len(t, third.Creators, 2)
	require.Equal(t, next.ID, third.DerivedFrom)
}

func TestDataset_ReplaceIdentifierDropsChain(t *testing.T) {
	ds := newTestDataset(t, "ds1")
	old := ds.ID
	ds.DerivedFrom = "/datasets/unknown"
	require.NoError(t, ds.ReplaceIdentifier())
	require.Empty(t, ds.DerivedFrom)
	require.NotEqual(t, old, ds.ID)
	require.Equal(t, ds.Identifier, ds.InitialIdentifier)
}

func TestDataset_ValidateCollectsAllProblems(t *testing.T) {
	ds := &Dataset{
		Name: "Bad Name",
		Files: []DatasetFile{
			{Path: "a"},
			{Path: "a"},
			{Path: ""},
		},
	}
	err := ds.Validate()
	require.ErrorIs(t, err, ErrInvalidDataset)
	require.Len(t, multierr.Errors(err), 4)

	require.NoError(t, newTestDataset(t, "ok").Validate())
}
