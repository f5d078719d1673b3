package mirror

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"

	"tabmirror/internal/catalog"
	"tabmirror/internal/common"
	"tabmirror/pkg/errors"
)

// Writer persists downloaded content into the mirror directory and keeps
// the index in step with it
type Writer struct {
	baseDir   string
	index     *Index
	overwrite bool
}

// NewWriter creates a writer over a mirror directory and its index
func NewWriter(baseDir string, index *Index, overwrite bool) *Writer {
	return &Writer{baseDir: baseDir, index: index, overwrite: overwrite}
}

// Write streams one item's content to its deterministic path and records
// the new index entry. The content lands via temp-file-then-rename so a
// crash mid-write never leaves a truncated file behind a fingerprint that
// claims success.
//
// When overwrite is disabled and the on-disk file no longer matches what
// change detection saw at planning time, the write is refused with a
// conflict error and the existing file is left untouched.
func (w *Writer) Write(item catalog.Item, r io.Reader) (int64, error) {
	rel := ItemPath(item)
	target := filepath.Join(w.baseDir, rel)

	if _, err := common.ValidatePath(target, w.baseDir); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeFileOperation,
			fmt.Sprintf("refusing to write outside the mirror root: %s", rel))
	}

	if err := w.checkConflict(rel, target); err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(target), common.DirPermissionNormal); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create mirror directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tabmirror-dl-*")
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create temp file")
	}

	digest := xxhash.New()
	n, err := io.Copy(io.MultiWriter(tmp, digest), r)
	if err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return 0, errors.NetworkError(fmt.Sprintf("download of %s was interrupted", rel), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to flush temp file")
	}
	if err := os.Chmod(tmp.Name(), common.FilePermissionNormal); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to set file permissions")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, errors.Wrap(err, errors.ErrCodeFileOperation,
			fmt.Sprintf("failed to move %s into place", rel))
	}

	entry := Entry{
		Path:        rel,
		RemoteID:    item.ID,
		Kind:        string(item.Kind),
		Fingerprint: item.Fingerprint,
		ContentHash: fmt.Sprintf("%016x", digest.Sum64()),
		ModTime:     time.Now(),
	}
	if err := w.index.Record(w.baseDir, entry); err != nil {
		return n, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to persist mirror index")
	}

	return n, nil
}

// checkConflict detects local files that changed between planning and
// write-back. The change detector classified this item using the index
// entry; if the bytes on disk no longer hash to that entry, someone else
// touched the file and last-writer-wins only applies when overwrite is
// enabled.
func (w *Writer) checkConflict(rel, target string) error {
	if w.overwrite {
		return nil
	}

	_, statErr := os.Stat(target)
	if os.IsNotExist(statErr) {
		return nil
	}
	if statErr != nil {
		return errors.Wrap(statErr, errors.ErrCodeFileOperation, "failed to stat existing file")
	}

	onDisk, err := HashFile(target)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to hash existing file")
	}

	expected, ok := w.index.Lookup(rel)
	if !ok || expected.ContentHash != onDisk {
		return errors.ConflictError(rel)
	}
	return nil
}

// DeleteOrphans removes the given entries' files and drops them from the
// index, returning how many were deleted
func (w *Writer) DeleteOrphans(orphans []Entry) (int, error) {
	deleted := 0
	var removed []string
	for _, o := range orphans {
		target := filepath.Join(w.baseDir, o.Path)
		if _, err := common.ValidatePath(target, w.baseDir); err != nil {
			continue
		}
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return deleted, errors.Wrap(err, errors.ErrCodeFileOperation,
				fmt.Sprintf("failed to delete orphan %s", o.Path))
		}
		removed = append(removed, o.Path)
		deleted++
	}
	w.index.Remove(removed...)
	if deleted > 0 {
		if err := w.index.Save(w.baseDir); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// HashFile returns the xxhash of a file's content in the index's format
func HashFile(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - callers validate the path
	if err != nil {
		return "", err
	}
	defer f.Close()

	digest := xxhash.New()
	if _, err := io.Copy(digest, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", digest.Sum64()), nil
}
