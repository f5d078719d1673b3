package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"tabmirror/internal/common"
)

const (
	// MetaDir holds the mirror's persisted state inside the base directory.
	// It is committed with the mirror so a fresh clone carries the change
	// detection state.
	MetaDir   = ".tabmirror"
	indexName = "index.yaml"
	lockName  = ".tabmirror.lock"
)

// Entry is the persisted record of one mirrored file. The fingerprint is
// the remote fingerprint observed at download time and is the sole basis
// for future change detection; the content hash is the xxhash of the bytes
// actually written, used to detect out-of-band local edits.
type Entry struct {
	Path        string    `yaml:"path"`
	RemoteID    string    `yaml:"remote_id"`
	Kind        string    `yaml:"kind"`
	Fingerprint string    `yaml:"fingerprint"`
	ContentHash string    `yaml:"content_hash"`
	ModTime     time.Time `yaml:"mod_time"`
}

// Index is the persisted entry set for a mirror directory
type Index struct {
	mu       sync.Mutex
	entries  map[string]Entry
	lastSync time.Time
}

type indexFile struct {
	LastSync time.Time        `yaml:"last_sync"`
	Entries  map[string]Entry `yaml:"entries"`
}

// NewIndex returns an empty index
func NewIndex() *Index {
	return &Index{entries: map[string]Entry{}}
}

// LoadIndex reads the index from the mirror base directory. A missing
// index file yields an empty index, not an error: that is the first-run
// state.
func LoadIndex(baseDir string) (*Index, error) {
	path := filepath.Join(baseDir, MetaDir, indexName)
	data, err := os.ReadFile(path) // #nosec G304 - path is under the configured base dir
	if os.IsNotExist(err) {
		return NewIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror index: %w", err)
	}

	var f indexFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse mirror index: %w", err)
	}

	idx := NewIndex()
	idx.lastSync = f.LastSync
	for k, v := range f.Entries {
		idx.entries[k] = v
	}
	return idx, nil
}

// Save atomically persists the index under the base directory
func (ix *Index) Save(baseDir string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.saveLocked(baseDir)
}

func (ix *Index) saveLocked(baseDir string) error {
	dir := filepath.Join(baseDir, MetaDir)
	if err := os.MkdirAll(dir, common.DirPermissionNormal); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	f := indexFile{LastSync: ix.lastSync, Entries: ix.entries}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("failed to marshal mirror index: %w", err)
	}

	tmp, err := os.CreateTemp(dir, indexName+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp index: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, indexName)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace mirror index: %w", err)
	}
	return nil
}

// Lookup returns the entry for a relative mirror path
func (ix *Index) Lookup(path string) (Entry, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	e, ok := ix.entries[path]
	return e, ok
}

// Record stores an entry and persists the index. The caller has already
// renamed the content file into place; persisting immediately afterwards
// keeps the fingerprint/content pair consistent across a crash, erring on
// the safe side (a stale index entry only causes a re-download).
func (ix *Index) Record(baseDir string, e Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries[e.Path] = e
	return ix.saveLocked(baseDir)
}

// Remove drops entries by path without persisting
func (ix *Index) Remove(paths ...string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, p := range paths {
		delete(ix.entries, p)
	}
}

// Entries returns a copy of all entries
func (ix *Index) Entries() []Entry {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([]Entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		out = append(out, e)
	}
	return out
}

// Len returns the number of entries
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.entries)
}

// LastSync returns the completion time of the last successful run
func (ix *Index) LastSync() time.Time {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.lastSync
}

// MarkSynced records the run completion time
func (ix *Index) MarkSynced(t time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.lastSync = t
}
