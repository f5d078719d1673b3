package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"tabmirror/internal/common"
	"tabmirror/pkg/errors"
)

// Lock is a simple lock-file guard. Only one run is assumed active against
// a given mirror directory at a time; the lock makes that assumption
// explicit instead of silently relied upon.
type Lock struct {
	path string
}

// AcquireLock creates the lock file, failing if another run holds it
func AcquireLock(baseDir string) (*Lock, error) {
	if err := os.MkdirAll(baseDir, common.DirPermissionNormal); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create mirror directory")
	}

	path := filepath.Join(baseDir, lockName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, common.FilePermissionSecure)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.New(errors.ErrCodeMirrorLocked,
				fmt.Sprintf("mirror directory is locked by another run (%s)", path)).
				WithSeverity(errors.SeverityCritical).
				WithSuggestions(
					"Wait for the other run to finish",
					"Delete the lock file if no other run is active",
				)
		}
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create lock file")
	}

	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	_ = f.Close()
	return &Lock{path: path}, nil
}

// Release removes the lock file
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
