package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ContentStore keeps pasted text and uploads on disk until their document is done with them.
type ContentStore struct {
	dir string
}

func NewContentStore(dir string) (*ContentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create content dir: %w", err)
	}
	return &ContentStore{dir: dir}, nil
}

// Save writes at most limit bytes and fails if r holds more.
func (c *ContentStore) Save(id string, ext string, r io.Reader, limit int64) (string, error) {
	path := filepath.Join(c.dir, id+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > limit {
		err = fmt.Errorf("content exceeds %d bytes", limit)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func (c *ContentStore) Owns(ref string) bool {
	if c == nil || ref == "" {
		return false
	}
	rel, err := filepath.Rel(c.dir, ref)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// Copy duplicates an owned file for a new document id, other refs are returned as is.
func (c *ContentStore) Copy(ref string, id string) (string, error) {
	if !c.Owns(ref) {
		return ref, nil
	}
	src, err := os.Open(ref)
	if err != nil {
		return "", err
	}
	defer src.Close()
	return c.Save(id, filepath.Ext(ref), src, 1<<40)
}

func (c *ContentStore) Remove(ref string) {
	if c.Owns(ref) {
		_ = os.Remove(ref)
	}
}
