package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const identityFilename = "identity.json"

// FileKV keeps every key in a single JSON document that is replaced
// atomically on each write. It suits devices where SQLite is unwanted.
type FileKV struct {
	mu  sync.Mutex
	dir string
}

var _ KV = (*FileKV)(nil)

// OpenFileKV prepares dir for use, creating it with owner-only permissions.
func OpenFileKV(dir string) (*FileKV, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: identity directory not specified", ErrStorageUnavailable)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create identity directory: %v", ErrStorageUnavailable, err)
	}
	return &FileKV{dir: dir}, nil
}

// Path resolves the backing JSON document.
func (f *FileKV) Path() string {
	return filepath.Join(f.dir, identityFilename)
}

func (f *FileKV) load() (map[string]string, error) {
	doc := make(map[string]string)

	data, err := os.ReadFile(f.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorageUnavailable, identityFilename, err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", identityFilename, err)
	}
	return doc, nil
}

// save persists the document through a temp file and rename.
func (f *FileKV) save(doc map[string]string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", identityFilename, err)
	}

	tmp, err := os.CreateTemp(f.dir, "identity-*.json")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrStorageUnavailable, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write temp file: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close temp file: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmpPath, f.Path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: replace %s: %v", ErrStorageUnavailable, identityFilename, err)
	}
	return nil
}

func (f *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	encoded, ok := doc[key]
	if !ok {
		return nil, ErrNotFound
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return value, nil
}

func (f *FileKV) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	encoded := base64.StdEncoding.EncodeToString(value)
	if current, ok := doc[key]; ok && current == encoded {
		return nil
	}
	doc[key] = encoded
	return f.save(doc)
}

func (f *FileKV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return f.save(doc)
}

