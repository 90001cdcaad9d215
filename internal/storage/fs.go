package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/aislemap/internal/apperr"
	"github.com/starford/aislemap/internal/models"
)

// Extensions lists the accepted document file extensions in lookup order.
var Extensions = []string{".yaml", ".yml", ".json"}

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the store directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// IsDocument reports whether name carries an accepted document extension.
func IsDocument(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	return extRank(name) < len(Extensions)
}

// DocumentID returns the id of a document file name.
func DocumentID(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// validName rejects names that could leave the store root or hide as dotfiles.
func validName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("storage: empty %s", kind)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return fmt.Errorf("storage: invalid %s: %q", kind, name)
	}
	return nil
}

func (f *FS) collectionPath(collection string) (string, error) {
	if err := validName("collection", collection); err != nil {
		return "", err
	}
	return filepath.Join(f.root, collection), nil
}

// Dir returns the collection directory, creating it on first use.
func (f *FS) Dir(collection string) (string, error) {
	dir, err := f.collectionPath(collection)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: mkdir %s: %w", collection, err)
	}
	return dir, nil
}

// locate returns the existing file of a document, or "" when it has none.
func (f *FS) locate(collection, id string) (string, error) {
	dir, err := f.collectionPath(collection)
	if err != nil {
		return "", err
	}
	if err := validName("id", id); err != nil {
		return "", err
	}
	for _, ext := range Extensions {
		p := filepath.Join(dir, id+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// List returns metadata for every document in the collection, sorted by id.
// A collection that does not exist yet is empty.
func (f *FS) List(collection string) ([]models.DocumentMeta, error) {
	dir, err := f.collectionPath(collection)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.DocumentMeta{}, nil
		}
		return nil, fmt.Errorf("storage: list %s: %w", collection, err)
	}

	// One file per id, chosen in Extensions order like locate.
	chosen := make(map[string]os.DirEntry, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsDocument(e.Name()) {
			continue
		}
		id := DocumentID(e.Name())
		if prev, dup := chosen[id]; dup && extRank(prev.Name()) <= extRank(e.Name()) {
			continue
		}
		chosen[id] = e
	}

	out := make([]models.DocumentMeta, 0, len(chosen))
	for id, e := range chosen {
		info, err := e.Info()
		if err != nil {
			continue // removed between ReadDir and Info
		}
		out = append(out, models.DocumentMeta{
			Collection: collection,
			ID:         id,
			File:       e.Name(),
			Size:       info.Size(),
			UpdatedAt:  info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func extRank(name string) int {
	ext := filepath.Ext(name)
	for i, e := range Extensions {
		if ext == e {
			return i
		}
	}
	return len(Extensions)
}

// Read returns the raw bytes of a document.
func (f *FS) Read(collection, id string) ([]byte, error) {
	p, err := f.locate(collection, id)
	if err != nil {
		return nil, err
	}
	if p == "" {
		return nil, fmt.Errorf("storage: read %s/%s: %w", collection, id, apperr.ErrNotFound)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: read %s/%s: %w", collection, id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s/%s: %w", collection, id, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename. An existing
// document keeps its file extension; new documents are written as .yaml.
func (f *FS) Write(collection, id string, content []byte) error {
	p, err := f.locate(collection, id)
	if err != nil {
		return err
	}
	dir, err := f.Dir(collection)
	if err != nil {
		return err
	}
	if p == "" {
		p = filepath.Join(dir, id+Extensions[0])
	}

	tmp, err := os.CreateTemp(dir, ".aislemap-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a document from its collection.
func (f *FS) Delete(collection, id string) error {
	p, err := f.locate(collection, id)
	if err != nil {
		return err
	}
	if p == "" {
		return fmt.Errorf("storage: delete %s/%s: %w", collection, id, apperr.ErrNotFound)
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: delete %s/%s: %w", collection, id, apperr.ErrNotFound)
		}
		return fmt.Errorf("storage: delete %s/%s: %w", collection, id, err)
	}
	return nil
}
