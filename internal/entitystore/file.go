package entitystore

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// FileBackend stores one file per record under:
//
//	<baseDir>/<key>.json
//
// Every record write is atomic and durable (file sync + atomic rename + dir sync).
// A batch is applied objects first, then indexes, then deletes, so a crash
// part-way through leaves at most object records no index refers to yet.
type FileBackend struct {
	baseDir string
}

func NewFileBackend(baseDir string) (*FileBackend, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("baseDir is required")
	}
	if err := ensureDirDurable(baseDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "ensure base dir")
	}
	return &FileBackend{baseDir: baseDir}, nil
}

func (f *FileBackend) recordPath(key string) string {
	return filepath.Join(f.baseDir, filepath.FromSlash(key)+".json")
}

func (f *FileBackend) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(f.recordPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "read %s", key)
	}
	return data, nil
}

// Keys walks the record tree. os.ReadDir sorts by filename, and the result is
// sorted again so nested prefixes order the same way as the other backends.
func (f *FileBackend) Keys(prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := filepath.WalkDir(f.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		rel, err := filepath.Rel(f.baseDir, path)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), ".json")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *FileBackend) Apply(ctx context.Context, batch Batch) error {
	keys := make([]string, 0, len(batch.Puts))
	for k := range batch.Puts {
		keys = append(keys, k)
	}
	// Lexical order would put "idx/" before "obj/"; objects must land first.
	sort.Slice(keys, func(i, j int) bool {
		ai, aj := strings.HasPrefix(keys[i], "idx/"), strings.HasPrefix(keys[j], "idx/")
		if ai != aj {
			return !ai
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeFileAtomicDurable(f.recordPath(k), batch.Puts[k], 0o644); err != nil {
			return errors.Wrapf(err, "write %s", k)
		}
	}
	for _, k := range batch.Deletes {
		if err := os.Remove(f.recordPath(k)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "delete %s", k)
		}
	}
	return nil
}

func (f *FileBackend) Close() error { return nil }

func ensureDirDurable(dir string, perm os.FileMode) error {
	if err := os.MkdirAll(dir, perm); err != nil {
		return err
	}
	if err := fsyncDir(dir); err != nil {
		return err
	}
	parent := filepath.Dir(dir)
	if parent != dir {
		if err := fsyncDir(parent); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomicDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
