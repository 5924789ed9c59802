// Package storage implements the local blob store backing uploads,
// preprocessing artifacts and trained model files. Files are UUID-named,
// write-once and only removed by explicit delete.
package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store is a blob store rooted at a single directory.
type Store struct {
	root string
}

// NewStore creates the root directory if needed and returns a store.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Save writes r to a new UUID-named file with the given extension and
// returns the generated id and full path.
func (s *Store) Save(r io.Reader, ext string) (string, string, error) {
	id := uuid.New().String()
	path := filepath.Join(s.root, id+ext)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", "", fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("close blob: %w", err)
	}
	return id, path, nil
}

// Path returns the full path for a named file in the store.
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, name)
}

// Open opens a named file for reading.
func (s *Store) Open(name string) (*os.File, error) {
	return os.Open(filepath.Join(s.root, name))
}

// Exists reports whether a named file exists.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.root, name))
	return err == nil
}

// Delete removes a named file.
func (s *Store) Delete(name string) error {
	if err := os.Remove(filepath.Join(s.root, name)); err != nil {
		return fmt.Errorf("delete blob %s: %w", name, err)
	}
	return nil
}

// WriteBytes writes data to the named file, replacing any previous content.
func (s *Store) WriteBytes(name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(s.root, name), data, 0o644); err != nil {
		return fmt.Errorf("write blob %s: %w", name, err)
	}
	return nil
}

// WriteJSON atomically writes v as JSON to the named file: the document is
// staged to a temp file and renamed into place, so readers never observe a
// partial artifact.
func (s *Store) WriteJSON(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.root, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("flush %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.root, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}

// ReadJSON reads the named file into v.
func (s *Store) ReadJSON(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.root, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
