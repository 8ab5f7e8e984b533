// Package workspace computes content checksums of project paths.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

var ErrRevisionUnsupported = errors.New("only the working tree can be checksummed")

// Checksummer hashes file contents under a root directory.
//
// A file's checksum is the sha256 of its bytes. A directory's checksum covers
// every regular file below it: sorted relative paths, each followed by its
// content, all length-prefixed. Metadata such as mtime never counts.
type Checksummer struct {
	root string
}

func NewChecksummer(root string) *Checksummer {
	return &Checksummer{root: root}
}

// Checksum returns the checksum of path at revision. Revision "" is the
// working tree. A missing path is ("", false, nil).
func (c *Checksummer) Checksum(path, revision string) (string, bool, error) {
	if revision != "" {
		return "", false, errors.Wrapf(ErrRevisionUnsupported, "revision %q", revision)
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(c.root, path)
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "stat %s", path)
	}

	h := sha256.New()
	if info.IsDir() {
		err = hashDir(h, full)
	} else {
		err = hashFile(h, full)
	}
	if err != nil {
		return "", false, err
	}
	return hex.EncodeToString(h.Sum(nil)), true, nil
}

func hashFile(h io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	return nil
}

func hashDir(h hash.Hash, dir string) error {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "walk %s", dir)
	}
	sort.Strings(files)

	writeField := func(data []byte) {
		length := uint64(len(data))
		lengthBytes := []byte{
			byte(length >> 56),
			byte(length >> 48),
			byte(length >> 40),
			byte(length >> 32),
			byte(length >> 24),
			byte(length >> 16),
			byte(length >> 8),
			byte(length),
		}
		h.Write(lengthBytes)
		h.Write(data)
	}

	writeField([]byte(strconv.Itoa(len(files))))
	for _, p := range files {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		writeField([]byte(filepath.ToSlash(rel)))

		content := sha256.New()
		if err := hashFile(content, p); err != nil {
			return err
		}
		writeField(content.Sum(nil))
	}
	return nil
}
