package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk layout of the file backend.
type fileDocument struct {
	UpdatedAt time.Time         `yaml:"updated_at"`
	Values    map[string]string `yaml:"values"`
}

// File persists all keys in a single YAML document, rewritten on every mutation.
type File struct {
	path string

	mu     sync.Mutex
	doc    fileDocument
	closed bool
}

// OpenFile loads the document at path. A missing file is an empty store.
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("kvstore: file path is required")
	}

	f := &File{path: path, doc: fileDocument{Values: make(map[string]string)}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &f.doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if f.doc.Values == nil {
		f.doc.Values = make(map[string]string)
	}
	return f, nil
}

// Path returns the backing file location.
func (f *File) Path() string {
	return f.path
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	v, ok := f.doc.Values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(v), nil
}

func (f *File) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	prev, had := f.doc.Values[key]
	f.doc.Values[key] = string(value)
	if err := f.flushLocked(); err != nil {
		if had {
			f.doc.Values[key] = prev
		} else {
			delete(f.doc.Values, key)
		}
		return err
	}
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if _, ok := f.doc.Values[key]; !ok {
		return nil
	}
	delete(f.doc.Values, key)
	return f.flushLocked()
}

func (f *File) Keys(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(f.doc.Values))
	for k := range f.doc.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// flushLocked writes through a temp file and rename so readers never see a partial document.
func (f *File) flushLocked() error {
	f.doc.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(&f.doc)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".gasflow-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

var _ Backend = (*File)(nil)
