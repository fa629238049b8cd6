package audiofile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// AtomicFile is written under a temporary name and appears at its final
// path only on Commit.
type AtomicFile struct {
	*os.File
	FinalPath string
	done      bool
}

// CreateAtomic creates a temporary file next to path. A failure to create
// it matches ErrNotFound.
func CreateAtomic(path string) (*AtomicFile, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, uuid.New().String()))
	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to create the output file for '%s': %w", ErrNotFound, path, err)
	}
	return &AtomicFile{
		File:      f,
		FinalPath: path,
	}, nil
}

// Commit closes the file and moves it to its final path.
func (f *AtomicFile) Commit() error {
	if f.done {
		return fmt.Errorf("the file '%s' is already finalized", f.FinalPath)
	}
	f.done = true
	if err := f.File.Close(); err != nil {
		_ = os.Remove(f.File.Name())
		return fmt.Errorf("unable to close '%s': %w", f.File.Name(), err)
	}
	if err := os.Rename(f.File.Name(), f.FinalPath); err != nil {
		_ = os.Remove(f.File.Name())
		return fmt.Errorf("unable to rename '%s' to '%s': %w", f.File.Name(), f.FinalPath, err)
	}
	return nil
}

// Abort discards the file. It is a no-op after Commit.
func (f *AtomicFile) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	var mErr *multierror.Error
	if err := f.File.Close(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to close '%s': %w", f.File.Name(), err))
	}
	if err := os.Remove(f.File.Name()); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to remove '%s': %w", f.File.Name(), err))
	}
	return mErr.ErrorOrNil()
}
