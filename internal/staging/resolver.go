package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"mediaconv/internal/services"
)

const jobDirPrefix = "job-"

// Resolver maps job identifiers to working directories under root.
type Resolver struct {
	root string
}

// NewResolver returns a resolver rooted at root.
func NewResolver(root string) *Resolver {
	return &Resolver{root: strings.TrimSpace(root)}
}

// Root returns the staging root.
func (r *Resolver) Root() string {
	return r.root
}

// JobDir returns the working directory path for id without touching disk.
func (r *Resolver) JobDir(id int64) string {
	return filepath.Join(r.root, jobDirPrefix+strconv.FormatInt(id, 10))
}

// TempDirForJob returns the working directory for id, creating it on first
// use. Repeated calls return the same path. Failures are reported as
// services.ErrStorageUnavailable.
func (r *Resolver) TempDirForJob(id int64) (string, error) {
	if r.root == "" {
		return "", services.Wrap(services.ErrStorageUnavailable, "resolve staging dir", "Staging directory is not configured", nil)
	}
	dir := r.JobDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrStorageUnavailable, "create staging dir", "Cannot create working directory", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", services.Wrap(services.ErrStorageUnavailable, "stat staging dir", "Cannot access working directory", err)
	}
	if !info.IsDir() {
		return "", services.Wrap(services.ErrStorageUnavailable, "stat staging dir", "Working directory path is not a directory", fmt.Errorf("%s is a %s", dir, info.Mode().Type()))
	}
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return "", services.Wrap(services.ErrStorageUnavailable, "probe staging dir", "Working directory is not writable", &os.PathError{Op: "access", Path: dir, Err: err})
	}
	return dir, nil
}

// RemoveJobDir deletes the working directory for id. A missing directory is
// not an error.
func (r *Resolver) RemoveJobDir(id int64) error {
	if r.root == "" {
		return nil
	}
	return os.RemoveAll(r.JobDir(id))
}

// RemoveAllIgnoreError recursively deletes path and discards any error.
func RemoveAllIgnoreError(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	_ = os.RemoveAll(path)
}

// ParseJobDir extracts the job id from a job-<id> directory name.
func ParseJobDir(name string) (int64, bool) {
	raw, ok := strings.CutPrefix(name, jobDirPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// IsStorageUnavailable reports whether err came from the resolver.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, services.ErrStorageUnavailable)
}
