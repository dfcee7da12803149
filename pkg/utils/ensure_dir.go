package utils

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// EnsureDirForFile creates the parent directory of the given file if
// it does not exist yet. The job log and changelog paths are often
// configured under directories that only exist on production hosts.
func EnsureDirForFile(file string) error {
	dir := filepath.Dir(file)
	_, err := os.Stat(dir)
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return errors.Wrapf(os.MkdirAll(dir, 0700), "mkdir %s", dir)
	default:
		return errors.Wrapf(err, "stat %s", dir)
	}
}
